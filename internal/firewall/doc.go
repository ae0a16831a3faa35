// Package firewall is the tool's view of the kernel packet filter. It
// snapshots the INPUT chain through the iptables binary, attributes rules to
// mappings via the comment marker, and applies inserts and deletes. Only
// rules tagged by this tool are ever matched or removed; everything else in
// the chain is invisible here.
package firewall

// iptablesWaitSeconds bounds how long iptables blocks on the xtables lock.
const iptablesWaitSeconds = "5"
