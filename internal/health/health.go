// Package health implements the composite health check: concurrent,
// per-check-timeout probes of every backing dependency, assembled into one
// JSON body keyed by check name.
package health

import (
	"context"
	"sync"
	"time"
)

// Checker is a single named dependency probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckResult is one dependency's outcome.
type CheckResult struct {
	Healthy        bool   `json:"healthy"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Note           string `json:"note,omitempty"`
}

// Report is the composite health body, checks keyed by name ("store", "ts",
// "cache", "mqtt").
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// DetailedReport extends Report with operational gauges for
// GET /health?detailed=true. Extra is left as a generic map so callers can
// attach whatever their domain considers worth surfacing (device counts,
// recent telemetry volume) without this package importing those domains.
type DetailedReport struct {
	Report
	Extra map[string]any `json:"extra"`
}

// criticalCheck names the dependency whose failure makes the whole system
// "down" rather than merely "degraded" — without the Credential Store there
// is no identity resolution and nothing else can function.
const criticalCheck = "store"

const perCheckTimeout = 3 * time.Second

type namedResult struct {
	name   string
	result CheckResult
}

// Run executes every checker concurrently with a bounded per-check timeout
// and assembles the composite report. A failure of the "store" check marks
// the whole report "down"; any other failure marks it "degraded".
func Run(ctx context.Context, checkers []Checker) Report {
	named := make([]namedResult, len(checkers))
	var wg sync.WaitGroup

	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, perCheckTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(cctx)
			elapsed := time.Since(start).Milliseconds()

			if err != nil {
				named[i] = namedResult{c.Name, CheckResult{Healthy: false, ResponseTimeMs: elapsed, Note: err.Error()}}
				return
			}
			named[i] = namedResult{c.Name, CheckResult{Healthy: true, ResponseTimeMs: elapsed}}
		}(i, c)
	}
	wg.Wait()

	checks := make(map[string]CheckResult, len(named))
	hasDown, hasDegraded := false, false
	for _, n := range named {
		checks[n.name] = n.result
		if !n.result.Healthy {
			if n.name == criticalCheck {
				hasDown = true
			} else {
				hasDegraded = true
			}
		}
	}

	status := "ok"
	switch {
	case hasDown:
		status = "down"
	case hasDegraded:
		status = "degraded"
	}

	return Report{Status: status, Checks: checks}
}
