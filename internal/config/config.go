// Package config loads the mapping file that declares which dynamic-DNS
// hosts get firewall allow-rules. The file is INI-shaped: each section name
// is an interface:port:protocol triple and each key inside it is a hostname
// to track (values, if any, are ignored).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultPath is the system-wide mapping file consulted when no file sits
// beside the executable and no explicit path was given.
const DefaultPath = "/etc/dydns.conf"

// FileName is the mapping file looked up beside the executable.
const FileName = "dydns.conf"

// Mapping is one desired allow-rule source: traffic on Interface to Port
// over Protocol is accepted from whatever Hostname currently resolves to.
type Mapping struct {
	Interface string
	Port      string
	Protocol  string // "tcp", "udp", or "" meaning both
	Hostname  string
}

// Key returns the interface:port:protocol triple the mapping came from.
func (m Mapping) Key() string {
	return fmt.Sprintf("%s:%s:%s", m.Interface, m.Port, m.Protocol)
}

// ResolvePath decides which mapping file to load: an explicit path wins,
// then a file next to the executable, then the system-wide default.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if exe, err := os.Executable(); err == nil {
		local := filepath.Join(filepath.Dir(exe), FileName)
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}

	return DefaultPath
}

// Load reads and validates the mapping file at path. Any problem with the
// file is fatal to the run: reconciling against a partial desired state
// could tear down rules the operator still wants.
func Load(path string) ([]Mapping, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file %s: %w", path, err)
	}

	var mappings []Mapping
	for _, section := range file.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			if len(section.Keys()) > 0 {
				return nil, fmt.Errorf("mapping file %s: hostnames outside a section", path)
			}
			continue
		}

		iface, port, proto, err := parseSectionName(name)
		if err != nil {
			return nil, fmt.Errorf("mapping file %s: %w", path, err)
		}

		for _, key := range section.Keys() {
			hostname := strings.TrimSpace(key.Name())
			if hostname == "" {
				continue
			}
			mappings = append(mappings, Mapping{
				Interface: iface,
				Port:      port,
				Protocol:  proto,
				Hostname:  hostname,
			})
		}
	}

	return mappings, nil
}

func parseSectionName(name string) (iface, port, proto string, err error) {
	parts := strings.Split(name, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("section %q is not interface:port:protocol", name)
	}

	iface = strings.TrimSpace(parts[0])
	port = strings.TrimSpace(parts[1])
	proto = strings.ToLower(strings.TrimSpace(parts[2]))

	if iface == "" {
		return "", "", "", fmt.Errorf("section %q has an empty interface", name)
	}
	if port == "" {
		return "", "", "", fmt.Errorf("section %q has an empty port", name)
	}
	switch proto {
	case "", "tcp", "udp":
	default:
		return "", "", "", fmt.Errorf("section %q has unsupported protocol %q", name, proto)
	}

	return iface, port, proto, nil
}
