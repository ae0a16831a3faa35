// Package reconcile compares the desired mappings (config plus live DNS)
// against the kernel's tagged INPUT rules and converges them, one mapping at
// a time. Each run snapshots the kernel table exactly once; the snapshot is
// never re-read mid-run.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/open4/dydns/internal/config"
	"github.com/open4/dydns/internal/firewall"
	"github.com/open4/dydns/internal/resolve"
)

// Action is the single decision the state machine produces for one mapping.
type Action int

const (
	// ActionNone leaves the kernel table untouched for this mapping.
	ActionNone Action = iota
	// ActionInsert adds rule(s) for a mapping with no live rule yet.
	ActionInsert
	// ActionDelete removes every live rule carrying the mapping's tag.
	ActionDelete
	// ActionReplace deletes the stale rule(s), then inserts for the new
	// address. There is no in-place update primitive.
	ActionReplace
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionDelete:
		return "delete"
	case ActionReplace:
		return "replace"
	default:
		return "none"
	}
}

// Plan decides what to do for one mapping. rules are the snapshot entries
// carrying the mapping's tag; address is the freshly resolved IPv4 address,
// or "" when resolution failed this run. An unresolved mapping never loses
// its existing rules: losing DNS must not be read as "remove access".
func Plan(rules []*firewall.Rule, address string, deleteAll bool) Action {
	if len(rules) == 0 {
		if deleteAll || address == "" {
			return ActionNone
		}
		return ActionInsert
	}

	if deleteAll {
		return ActionDelete
	}
	if address == "" {
		return ActionNone
	}

	for _, rule := range rules {
		if rule.Source != address {
			return ActionReplace
		}
	}
	return ActionNone
}

// Recorder receives counters from a run. Declared here so the reconciler
// does not depend on the metrics package.
type Recorder interface {
	AddInserts(count int)
	AddDeletes(count int)
	IncrementError(errorType string)
	SetManagedRules(count int)
	SetLastSync(unixSeconds float64)
}

// Result summarizes what one run did.
type Result struct {
	Inserted  int // rules added to the kernel table
	Deleted   int // rules removed from the kernel table
	Unchanged int // mappings already converged or skipped in teardown
	Failed    int // mappings left out of sync (resolution or apply failure)
}

// Engine runs one reconciliation pass over all configured mappings.
type Engine struct {
	Executor firewall.Executor
	Binary   string
	Resolver resolve.Resolver
	Logger   *slog.Logger
	Metrics  Recorder
}

// Run loads the kernel snapshot and reconciles every mapping against it,
// sequentially. Per-mapping failures are logged and counted but never abort
// the run; only a snapshot failure is fatal, since without ground truth no
// change is safe.
func (e *Engine) Run(ctx context.Context, mappings []config.Mapping, deleteAll bool) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	snapshot, err := firewall.LoadSnapshot(ctx, e.Executor, e.Binary)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.IncrementError("snapshot")
		}
		return Result{}, fmt.Errorf("load kernel snapshot: %w", err)
	}

	if e.Metrics != nil {
		e.Metrics.SetManagedRules(snapshot.Len())
	}

	logger.Debug("kernel snapshot loaded",
		slog.Int("tagged_rules", snapshot.Len()),
		slog.Int("mappings", len(mappings)),
		slog.Bool("delete_all", deleteAll),
	)

	var result Result
	for _, mapping := range mappings {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		e.syncMapping(ctx, snapshot, mapping, deleteAll, logger, &result)
	}

	if e.Metrics != nil {
		e.Metrics.SetLastSync(float64(time.Now().Unix()))
	}

	logger.Info("sync run complete",
		slog.Int("inserted", result.Inserted),
		slog.Int("deleted", result.Deleted),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("failed", result.Failed),
	)

	return result, nil
}

func (e *Engine) syncMapping(ctx context.Context, snapshot *firewall.Snapshot, mapping config.Mapping, deleteAll bool, logger *slog.Logger, result *Result) {
	tag := firewall.Tag(mapping)
	rules := snapshot.Find(tag)

	address := ""
	if !deleteAll {
		resolved, err := e.Resolver.Resolve(ctx, mapping.Hostname)
		if err != nil {
			logger.Error("hostname resolution failed; leaving mapping untouched",
				slog.String("tag", tag),
				slog.String("hostname", mapping.Hostname),
				slog.Any("error", err),
			)
			if e.Metrics != nil {
				e.Metrics.IncrementError("resolve")
			}
			result.Failed++
		} else {
			address = resolved
		}
	}

	action := Plan(rules, address, deleteAll)

	logger.Debug("mapping planned",
		slog.String("tag", tag),
		slog.String("address", address),
		slog.Int("live_rules", len(rules)),
		slog.String("action", action.String()),
	)

	switch action {
	case ActionNone:
		if address != "" || deleteAll {
			result.Unchanged++
		}

	case ActionDelete:
		deleted, ok := e.deleteRules(ctx, rules, logger)
		result.Deleted += deleted
		if !ok {
			result.Failed++
		}

	case ActionReplace:
		deleted, ok := e.deleteRules(ctx, rules, logger)
		result.Deleted += deleted
		if !ok {
			// A rule with the old address is still live; inserting now
			// would put two addresses under one tag. Leave the mapping
			// for the next run.
			result.Failed++
			return
		}
		e.insertRules(ctx, mapping, address, logger, result)

	case ActionInsert:
		e.insertRules(ctx, mapping, address, logger, result)
	}
}

// deleteRules removes every tagged rule, best-effort. ok is false when any
// delete failed.
func (e *Engine) deleteRules(ctx context.Context, rules []*firewall.Rule, logger *slog.Logger) (deleted int, ok bool) {
	ok = true
	for _, rule := range rules {
		if err := firewall.DeleteRule(ctx, e.Executor, e.Binary, rule, logger); err != nil {
			logger.Error("rule delete failed",
				slog.String("tag", rule.Tag),
				slog.String("source", rule.Source),
				slog.Any("error", err),
			)
			if e.Metrics != nil {
				e.Metrics.IncrementError("delete")
			}
			ok = false
			continue
		}
		deleted++
	}
	if e.Metrics != nil && deleted > 0 {
		e.Metrics.AddDeletes(deleted)
	}
	return deleted, ok
}

func (e *Engine) insertRules(ctx context.Context, mapping config.Mapping, address string, logger *slog.Logger, result *Result) {
	inserted, err := firewall.InsertRules(ctx, e.Executor, e.Binary, mapping, address, logger)
	result.Inserted += inserted
	if e.Metrics != nil && inserted > 0 {
		e.Metrics.AddInserts(inserted)
	}
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.IncrementError("insert")
		}
		result.Failed++
	}
}
