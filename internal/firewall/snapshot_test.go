package firewall

import (
	"context"
	"errors"
	"testing"
)

const sampleListing = `-P INPUT ACCEPT
-A INPUT -i lo -j ACCEPT
-A INPUT -s 203.0.113.5/32 -i eth0 -p tcp -m tcp --dport 2222 -m comment --comment "open4-dydns eth0:2222:tcp foo.example.com" -j ACCEPT
-A INPUT -s 198.51.100.7/32 -i eth0 -p tcp -m tcp --dport 8080 -m comment --comment "open4-dydns eth0:8080: bar.example.com" -j ACCEPT
-A INPUT -s 198.51.100.7/32 -i eth0 -p udp -m udp --dport 8080 -m comment --comment "open4-dydns eth0:8080: bar.example.com" -j ACCEPT
-A INPUT -p tcp --dport 22 -m comment --comment "managed elsewhere" -j ACCEPT
`

func TestLoadSnapshotParsesTaggedRules(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{listOutput: sampleListing}

	snapshot, err := LoadSnapshot(context.Background(), exec, "iptables")
	if err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("expected 1 listing command, got %d", len(exec.calls))
	}
	call := exec.calls[0]
	wantArgs := []string{"-w", iptablesWaitSeconds, "-S", "INPUT"}
	if call.command != "iptables" || !equalSlices(call.args, wantArgs) {
		t.Fatalf("expected %s %v, got %s %v", "iptables", wantArgs, call.command, call.args)
	}

	if snapshot.Len() != 3 {
		t.Fatalf("expected 3 tagged rules, got %d", snapshot.Len())
	}

	rules := snapshot.Find("open4-dydns eth0:2222:tcp foo.example.com")
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule for tcp tag, got %d", len(rules))
	}
	if rules[0].Source != "203.0.113.5" {
		t.Fatalf("expected source 203.0.113.5, got %q", rules[0].Source)
	}
	if rules[0].Spec[0] != "-A" || rules[0].Spec[1] != "INPUT" {
		t.Fatalf("unexpected spec head: %v", rules[0].Spec[:2])
	}

	// The comment must survive tokenization as a single argv token.
	foundComment := false
	for _, token := range rules[0].Spec {
		if token == "open4-dydns eth0:2222:tcp foo.example.com" {
			foundComment = true
		}
	}
	if !foundComment {
		t.Fatalf("expected comment to be one token, spec: %v", rules[0].Spec)
	}
}

func TestSnapshotFindReturnsAllRulesForTag(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{listOutput: sampleListing}
	snapshot, err := LoadSnapshot(context.Background(), exec, "iptables")
	if err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}

	rules := snapshot.Find("open4-dydns eth0:8080: bar.example.com")
	if len(rules) != 2 {
		t.Fatalf("expected both fan-out rules for the tag, got %d", len(rules))
	}
	for _, rule := range rules {
		if rule.Source != "198.51.100.7" {
			t.Fatalf("expected source 198.51.100.7, got %q", rule.Source)
		}
	}

	if got := snapshot.Find("open4-dydns eth0:9999:tcp missing.example.com"); len(got) != 0 {
		t.Fatalf("expected no rules for unknown tag, got %d", len(got))
	}
}

func TestLoadSnapshotPropagatesListingFailure(t *testing.T) {
	t.Parallel()

	wantErr := &CommandError{Command: "iptables", Err: errors.New("exit status 3")}
	exec := &recordingExecutor{listErr: wantErr}

	if _, err := LoadSnapshot(context.Background(), exec, "iptables"); !errors.Is(err, wantErr) {
		t.Fatalf("expected listing error to propagate, got %v", err)
	}
}

func TestDeleteRuleFlipsActionToken(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{listOutput: sampleListing}
	snapshot, err := LoadSnapshot(context.Background(), exec, "iptables")
	if err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}

	rules := snapshot.Find("open4-dydns eth0:2222:tcp foo.example.com")
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	exec.calls = nil
	if err := DeleteRule(context.Background(), exec, "iptables", rules[0], discardLogger()); err != nil {
		t.Fatalf("DeleteRule returned error: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("expected 1 delete command, got %d", len(exec.calls))
	}

	call := exec.calls[0]
	wantArgs := []string{
		"-w", iptablesWaitSeconds,
		"-D", "INPUT",
		"-s", "203.0.113.5/32",
		"-i", "eth0",
		"-p", "tcp",
		"-m", "tcp",
		"--dport", "2222",
		"-m", "comment", "--comment", "open4-dydns eth0:2222:tcp foo.example.com",
		"-j", "ACCEPT",
	}
	if call.command != "iptables" || !equalSlices(call.args, wantArgs) {
		t.Fatalf("expected args %v, got %v", wantArgs, call.args)
	}
}

func TestDeleteSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    []string
		want    []string
		wantErr bool
	}{
		{
			name: "append",
			spec: []string{"-A", "INPUT", "-i", "eth0", "-j", "ACCEPT"},
			want: []string{"-D", "INPUT", "-i", "eth0", "-j", "ACCEPT"},
		},
		{
			name: "insert with position",
			spec: []string{"-I", "INPUT", "1", "-i", "eth0", "-j", "ACCEPT"},
			want: []string{"-D", "INPUT", "-i", "eth0", "-j", "ACCEPT"},
		},
		{
			name: "insert without position",
			spec: []string{"-I", "INPUT", "-i", "eth0", "-j", "ACCEPT"},
			want: []string{"-D", "INPUT", "-i", "eth0", "-j", "ACCEPT"},
		},
		{
			name:    "policy line",
			spec:    []string{"-P", "INPUT", "ACCEPT"},
			wantErr: true,
		},
		{
			name:    "too short",
			spec:    []string{"-A"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := deleteSpec(tc.spec)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for spec %v", tc.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("deleteSpec(%v) returned error: %v", tc.spec, err)
			}
			if !equalSlices(got, tc.want) {
				t.Fatalf("deleteSpec(%v) = %v, want %v", tc.spec, got, tc.want)
			}
		})
	}
}

func TestSourceOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec []string
		want string
	}{
		{name: "with mask", spec: []string{"-A", "INPUT", "-s", "203.0.113.5/32"}, want: "203.0.113.5"},
		{name: "without mask", spec: []string{"-A", "INPUT", "-s", "203.0.113.5"}, want: "203.0.113.5"},
		{name: "long flag", spec: []string{"-A", "INPUT", "--source", "10.0.0.1/8"}, want: "10.0.0.1"},
		{name: "no source", spec: []string{"-A", "INPUT", "-i", "lo"}, want: ""},
		{name: "dangling flag", spec: []string{"-A", "INPUT", "-s"}, want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := sourceOf(tc.spec); got != tc.want {
				t.Fatalf("sourceOf(%v) = %q, want %q", tc.spec, got, tc.want)
			}
		})
	}
}

func TestSplitRuleSpecKeepsQuotedCommentTogether(t *testing.T) {
	t.Parallel()

	line := `-A INPUT -m comment --comment "two words here" -j ACCEPT`
	want := []string{"-A", "INPUT", "-m", "comment", "--comment", "two words here", "-j", "ACCEPT"}

	if got := splitRuleSpec(line); !equalSlices(got, want) {
		t.Fatalf("splitRuleSpec(%q) = %v, want %v", line, got, want)
	}
}
