package firewall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Rule is one live INPUT-chain rule carrying this tool's marker, as reported
// by the platform tool's rule listing.
type Rule struct {
	// Spec holds the listing's argument tokens with comment quoting
	// stripped, e.g. ["-A", "INPUT", "-s", "203.0.113.5/32", ...]. Deletion
	// re-derives the command from these tokens.
	Spec []string
	// Source is the rule's source address without its netmask, or "" when
	// the rule matches no source.
	Source string
	// Tag is the decoded mapping identity from the rule's comment.
	Tag string
}

// Snapshot is the INPUT chain's tagged rules as of one listing. It is loaded
// once per run and read-only thereafter; appliers mutate the kernel table,
// never the snapshot.
type Snapshot struct {
	rules []*Rule
}

// LoadSnapshot lists the INPUT chain via the platform tool and keeps every
// rule that carries the marker. A listing failure is fatal to the caller's
// run: without ground truth no reconciliation is safe.
func LoadSnapshot(ctx context.Context, executor Executor, binary string) (*Snapshot, error) {
	output, err := executor.Output(ctx, binary, "-w", iptablesWaitSeconds, "-S", "INPUT")
	if err != nil {
		return nil, fmt.Errorf("list INPUT rules: %w", err)
	}

	snapshot := &Snapshot{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		tag, ok := ExtractTag(line)
		if !ok {
			continue
		}

		spec := splitRuleSpec(line)
		if len(spec) == 0 {
			continue
		}

		snapshot.rules = append(snapshot.rules, &Rule{
			Spec:   spec,
			Source: sourceOf(spec),
			Tag:    tag,
		})
	}

	return snapshot, nil
}

// Len reports the number of tagged rules in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.rules)
}

// Find returns every rule carrying the given tag, in listing order. A
// mapping with an unspecified protocol owns two rules under one tag, so
// callers must be prepared for more than one hit.
func (s *Snapshot) Find(tag string) []*Rule {
	var matches []*Rule
	for _, rule := range s.rules {
		if rule.Tag == tag {
			matches = append(matches, rule)
		}
	}
	return matches
}

// DeleteRule removes one rule from the live kernel table by replaying its
// original specification with the action token flipped to delete.
func DeleteRule(ctx context.Context, executor Executor, binary string, rule *Rule, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	spec, err := deleteSpec(rule.Spec)
	if err != nil {
		return err
	}

	logger.Info("deleting rule",
		slog.String("tag", rule.Tag),
		slog.String("source", rule.Source),
	)

	args := append([]string{"-w", iptablesWaitSeconds}, spec...)
	if err := executor.Run(ctx, binary, args...); err != nil {
		return fmt.Errorf("delete rule %q: %w", rule.Tag, err)
	}
	return nil
}

// deleteSpec flips an append/insert rule spec into the matching delete. An
// insert position after the chain name has no meaning to delete and is
// dropped.
func deleteSpec(spec []string) ([]string, error) {
	if len(spec) < 2 {
		return nil, fmt.Errorf("rule spec %v too short to delete", spec)
	}

	out := append([]string(nil), spec...)
	switch out[0] {
	case "-A":
		out[0] = "-D"
	case "-I":
		out[0] = "-D"
		if len(out) > 2 && isDigits(out[2]) {
			out = append(out[:2], out[3:]...)
		}
	case "-D":
	default:
		return nil, fmt.Errorf("rule spec %v has no insert action to flip", spec)
	}
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sourceOf(spec []string) string {
	for i, token := range spec {
		if token != "-s" && token != "--source" {
			continue
		}
		if i+1 >= len(spec) {
			return ""
		}
		source := spec[i+1]
		if slash := strings.IndexByte(source, '/'); slash >= 0 {
			source = source[:slash]
		}
		return source
	}
	return ""
}

// splitRuleSpec tokenizes one rule listing line. Comments are the only
// quoted field iptables emits; quotes group the tag into a single token and
// are stripped, matching the argv originally passed on insert.
func splitRuleSpec(line string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	escaped := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
			if !inQuotes {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		case r == ' ' && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return tokens
}
