package firewall

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/open4/dydns/internal/config"
)

// Protocols returns the protocols a mapping's rules must cover: the
// configured one, or both tcp and udp when the mapping leaves it
// unspecified.
func Protocols(m config.Mapping) []string {
	if m.Protocol == "" {
		return []string{"tcp", "udp"}
	}
	return []string{m.Protocol}
}

// InsertRules adds the allow rule(s) for a mapping at the head of the INPUT
// chain, one command per applicable protocol, each tagged with the mapping's
// comment for later discovery. Returns the number of rules inserted; a
// failed command is reported but does not stop the remaining protocol.
func InsertRules(ctx context.Context, executor Executor, binary string, mapping config.Mapping, address string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parsed := net.ParseIP(address)
	if parsed == nil || parsed.To4() == nil {
		return 0, fmt.Errorf("insert rule for %s: %q is not an IPv4 address", mapping.Hostname, address)
	}

	tag := Tag(mapping)
	inserted := 0
	var firstErr error

	for _, protocol := range Protocols(mapping) {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		args := []string{
			"-w", iptablesWaitSeconds,
			"-I", "INPUT", "1",
			"-i", mapping.Interface,
			"-s", address + "/32",
			"-p", protocol,
			"--dport", mapping.Port,
			"-m", "comment", "--comment", tag,
			"-j", "ACCEPT",
		}

		logger.Info("inserting rule",
			slog.String("tag", tag),
			slog.String("source", address),
			slog.String("protocol", protocol),
		)

		if err := executor.Run(ctx, binary, args...); err != nil {
			err = fmt.Errorf("insert %s rule for %s: %w", protocol, mapping.Hostname, err)
			logger.Error("rule insert failed",
				slog.String("tag", tag),
				slog.String("protocol", protocol),
				slog.Any("error", err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserted++
	}

	return inserted, firstErr
}
