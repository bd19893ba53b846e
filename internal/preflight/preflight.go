package preflight

import (
	"context"

	"bilisub/internal/config"
	"bilisub/internal/workflow"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional failures are reported but do not block startup.
	Optional bool
}

// Failed reports whether the check failed and is required.
func (r Result) Failed() bool { return !r.Passed && !r.Optional }

// RunAll executes every applicable check. Health checkers (the platform
// client, typically) are probed last since they touch the network.
func RunAll(ctx context.Context, cfg *config.Config, checkers ...workflow.HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		detail := status.Detail
		if status.Available {
			detail = status.Path
			if status.Version != "" {
				detail += " (" + status.Version + ")"
			}
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Detail:   detail,
			Optional: status.Optional,
		})
	}
	for _, checker := range checkers {
		if checker != nil {
			results = append(results, CheckHealth(ctx, checker))
		}
	}
	return results
}

// Failures returns the required checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}
