package firewall

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type execCall struct {
	command string
	args    []string
}

type recordingExecutor struct {
	calls      []execCall
	listOutput string
	listErr    error
	runErrors  map[string]error
}

func (r *recordingExecutor) Run(_ context.Context, command string, args ...string) error {
	call := execCall{
		command: command,
		args:    append([]string(nil), args...),
	}
	r.calls = append(r.calls, call)

	if r.runErrors != nil {
		key := command + " " + strings.Join(args, " ")
		if err, ok := r.runErrors[key]; ok {
			return err
		}
	}

	return nil
}

func (r *recordingExecutor) Output(_ context.Context, command string, args ...string) (string, error) {
	r.calls = append(r.calls, execCall{
		command: command,
		args:    append([]string(nil), args...),
	})

	if r.listErr != nil {
		return "", r.listErr
	}
	return r.listOutput, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
