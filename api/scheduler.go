/*
scheduler.go - Automated annual allocation scheduler

PURPOSE:
  Periodically makes sure every configured tenant has had its annual
  allocation run for the current year, so a new year's ledger rows exist
  without an operator calling /run-annual-allocation.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs each tenant at most once per year per process
  - A failed run is retried on the next tick
  - Only creates missing rows (Allocator.AllocateMissing), so a restart
    never resets allocated or carried_over on rows that already exist

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Tenants: Tenants to allocate for; empty disables the scheduler

USAGE:
  scheduler := NewAllocationScheduler(allocator, tenants, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAnnualAllocation endpoint (manual run)
  - leave/allocation.go: AllocateMissing
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// AllocationScheduler runs annual allocation when a year starts.
type AllocationScheduler struct {
	Allocator     *leave.Allocator
	Tenants       []string
	CheckInterval time.Duration
	Logger        *slog.Logger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	doneMu sync.Mutex
	done   map[string]int // tenant -> last allocated year
}

func NewAllocationScheduler(allocator *leave.Allocator, tenants []string, logger *slog.Logger) *AllocationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AllocationScheduler{
		Allocator:     allocator,
		Tenants:       tenants,
		CheckInterval: 1 * time.Hour,
		Logger:        logger,
		Now:           time.Now,
		done:          make(map[string]int),
	}
}

// Start begins the scheduler.
func (s *AllocationScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Tenants) == 0 {
		s.Logger.Info("allocation scheduler disabled, no tenants configured")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.Logger.Info("allocation scheduler started", "interval", s.CheckInterval.String(), "tenants", len(s.Tenants))
}

// Stop stops the scheduler and waits for an in-flight check.
func (s *AllocationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("allocation scheduler stopped")
	}
}

func (s *AllocationScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow creates the current year's missing rows for every tenant not yet
// done and returns how many tenants were processed.
func (s *AllocationScheduler) RunNow(ctx context.Context) int {
	year := s.Now().UTC().Year()
	processed := 0
	for _, tenantID := range s.Tenants {
		if s.allocated(tenantID, year) {
			continue
		}
		stats, err := s.Allocator.AllocateMissing(ctx, tenantID, year)
		if err != nil {
			s.Logger.Warn("scheduled annual allocation failed", "tenantId", tenantID, "year", year, "err", err)
			continue
		}
		if stats.Failed > 0 {
			s.Logger.Warn("scheduled annual allocation had failed rows, will retry",
				"tenantId", tenantID, "year", year, "failed", stats.Failed)
			continue
		}
		s.markAllocated(tenantID, year)
		processed++
	}
	return processed
}

func (s *AllocationScheduler) allocated(tenantID string, year int) bool {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	return s.done[tenantID] >= year
}

func (s *AllocationScheduler) markAllocated(tenantID string, year int) {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	s.done[tenantID] = year
}
