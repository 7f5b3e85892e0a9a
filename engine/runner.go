/*
runner.go - Sequential batch runner for payroll runs

PURPOSE:
  The reference flow of a payroll run: workers are processed one at a
  time, and a single worker's failure is logged and skipped rather than
  aborting the batch. Each worker's calculation is independent (no shared
  mutable state), so a caller MAY fan out across goroutines; this runner
  keeps the sequential reference behavior.
*/
package engine

import (
	"context"
	"log"
)

// =============================================================================
// BATCH RUNNER
// =============================================================================

// WorkerFailure records one skipped worker in a batch run.
type WorkerFailure struct {
	WorkerID WorkerID
	Err      error
}

// RunResult is the outcome of a batch run: results for the workers that
// calculated cleanly, failures for the ones that did not.
type RunResult struct {
	Results  []*CalculationResult
	Failures []WorkerFailure
}

// Runner processes a batch of workers sequentially, log-and-skip on
// failure.
type Runner struct {
	Engine *Engine
}

// Run calculates every worker in order. The request template supplies the
// shared parameters (org, as-of date, period, jurisdiction); per-worker
// inputs come from the perWorker callback, which may return a customized
// request (hours, extra variables) or the template unchanged.
func (r *Runner) Run(ctx context.Context, workers []WorkerID, template CalculateRequest, perWorker func(WorkerID, CalculateRequest) CalculateRequest) RunResult {
	var out RunResult
	for _, workerID := range workers {
		req := template
		req.WorkerID = workerID
		if perWorker != nil {
			req = perWorker(workerID, req)
		}

		result, err := r.Engine.CalculateWorker(ctx, req)
		if err != nil {
			log.Printf("payroll run: worker %s skipped: %v", workerID, err)
			out.Failures = append(out.Failures, WorkerFailure{WorkerID: workerID, Err: err})
			continue
		}
		out.Results = append(out.Results, result)
	}
	return out
}
