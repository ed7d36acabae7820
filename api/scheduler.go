/*
scheduler.go - Periodic index repair

PURPOSE:
  The index can fall behind the ledger when a rebuild fails after the
  ledger writes were committed. The engine remembers those windows; the
  repair scheduler periodically re-derives each of them from the ledgers.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Rebuilds only windows the engine reports as stale
  - A failed repair is logged and left stale for the next tick
  - Never touches the ledger

USAGE:
  scheduler := NewIndexRepairScheduler(engine, logger)
  scheduler.CheckInterval = 15 * time.Minute
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// IndexRepairScheduler rebuilds stale index windows on a ticker.
type IndexRepairScheduler struct {
	Engine        *attendance.Engine
	CheckInterval time.Duration
	Enabled       bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewIndexRepairScheduler creates a scheduler. It does nothing until Start.
func NewIndexRepairScheduler(engine *attendance.Engine, logger *slog.Logger) *IndexRepairScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexRepairScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger.With(slog.String("component", "index_repair")),
	}
}

// Start begins the scheduler.
func (s *IndexRepairScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.logger.Info("started", slog.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a running repair to finish.
func (s *IndexRepairScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *IndexRepairScheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunOnce repairs every stale window and returns how many were rebuilt.
func (s *IndexRepairScheduler) RunOnce(ctx context.Context) int {
	rebuilt := 0
	for _, w := range s.Engine.StaleWindows() {
		n, err := s.Engine.RebuildIndex(ctx, w.Batch, w.Day)
		if err != nil {
			s.logger.Error("repair failed",
				slog.String("batch", string(w.Batch)),
				slog.String("day", w.Day.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		rebuilt++
		s.logger.Info("repaired",
			slog.String("batch", string(w.Batch)),
			slog.String("day", w.Day.String()),
			slog.Int("records", n),
		)
	}
	return rebuilt
}
