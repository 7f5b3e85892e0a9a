/*
scheduler.go - Automated payroll run scheduler

PURPOSE:
  Periodically checks whether a payroll run is due and processes the
  configured roster through the batch runner. Keeps the reference
  sequential log-and-skip behavior: one broken worker never blocks the
  rest of the run.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The roster callback supplies workers and shared run parameters
  - Completed runs are reported through the OnRun callback for audit

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPayrollScheduler(eng, rosterFn)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CalculateBatch endpoint (manual runs)
  - engine/runner.go: the batch runner
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/payroll-engine/engine"
)

// RosterFunc supplies the workers due for a run plus the shared request
// parameters. Returning an empty worker list means nothing is due.
type RosterFunc func(now time.Time) ([]engine.WorkerID, engine.CalculateRequest)

// PayrollScheduler handles automated payroll runs.
type PayrollScheduler struct {
	Engine        *engine.Engine
	Roster        RosterFunc
	CheckInterval time.Duration
	Enabled       bool

	// OnRun receives each completed run's outcome, if set.
	OnRun func(engine.RunResult)

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(eng *engine.Engine, roster RosterFunc) *PayrollScheduler {
	return &PayrollScheduler{
		Engine:        eng,
		Roster:        roster,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run()

	log.Printf("[Scheduler] Started with check interval: %v", ps.CheckInterval)
}

// Stop stops the scheduler.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ps *PayrollScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start
	ps.checkAndProcess()

	for {
		select {
		case <-ps.ticker.C:
			ps.checkAndProcess()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PayrollScheduler) checkAndProcess() {
	now := time.Now()
	workers, req := ps.Roster(now)
	if len(workers) == 0 {
		return
	}

	log.Printf("[Scheduler] Running payroll for %d workers at %v", len(workers), now)

	runner := engine.Runner{Engine: ps.Engine}
	result := runner.Run(context.Background(), workers, req, nil)

	log.Printf("[Scheduler] Run complete: %d succeeded, %d skipped",
		len(result.Results), len(result.Failures))
	if ps.OnRun != nil {
		ps.OnRun(result)
	}
}
