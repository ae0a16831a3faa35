// Package resolve turns tracked hostnames into their current IPv4 address
// through the operating system's resolver.
package resolve

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds a single lookup so one dead DNS name cannot stall a
// whole run. The worst case for a run is timeout times mapping count.
const DefaultTimeout = 5 * time.Second

// Resolver abstracts hostname resolution for the reconciler.
type Resolver interface {
	Resolve(ctx context.Context, hostname string) (string, error)
}

// SystemResolver resolves through the OS resolver (nsswitch, /etc/hosts and
// all), which is exactly what the rules should agree with.
type SystemResolver struct {
	Timeout time.Duration
}

// NewSystemResolver constructs a SystemResolver with the default timeout.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{Timeout: DefaultTimeout}
}

// Resolve returns the hostname's first current IPv4 address.
func (r *SystemResolver) Resolve(ctx context.Context, hostname string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", hostname)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", hostname, err)
	}

	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			return v4.String(), nil
		}
	}

	return "", fmt.Errorf("resolve %s: no IPv4 address in answer", hostname)
}
