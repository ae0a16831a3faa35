package firewall

import (
	"fmt"
	"strings"

	"github.com/open4/dydns/internal/config"
)

// Marker prefixes every comment this tool attaches to a rule. Rules without
// it are invisible to the reconciler. The value is shared with rules created
// by earlier releases and must not change.
const Marker = "open4-dydns"

// Tag derives the identifying comment for a mapping. The same mapping always
// yields the same tag, and distinct mappings never collide because the tag
// embeds every identity field verbatim.
func Tag(m config.Mapping) string {
	return fmt.Sprintf("%s %s:%s:%s %s", Marker, m.Interface, m.Port, m.Protocol, m.Hostname)
}

// ExtractTag pulls this tool's tag out of a raw rule line. The tag spans from
// the marker through the hostname; everything a comment could hold after the
// closing quote is ignored. ok is false for rules that do not carry the
// marker.
func ExtractTag(ruleLine string) (tag string, ok bool) {
	start := strings.Index(ruleLine, Marker)
	if start < 0 {
		return "", false
	}

	rest := ruleLine[start:]
	if end := strings.IndexByte(rest, '"'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}
