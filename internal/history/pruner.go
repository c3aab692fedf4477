package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	pkgerrors "shieldflow/pkg/errors"
)

// PruneStore is the part of storage the pruner needs.
type PruneStore interface {
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

// Pruner periodically deletes history older than the retention period. The
// gocron scheduler only exists between Start and Stop.
type Pruner struct {
	scheduler gocron.Scheduler
	store     PruneStore
	clock     clockwork.Clock
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewPruner creates a pruner. A nil clock means the real one.
func NewPruner(store PruneStore, retention, interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Pruner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pruner{
		store:     store,
		clock:     clock,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the prune job and runs it once right away.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return pkgerrors.ErrSchedulerRunning
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(p.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() {
			if _, err := p.PruneNow(ctx); err != nil {
				p.logger.Warn("history prune failed", zap.Error(err))
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		scheduler.Shutdown()
		return fmt.Errorf("failed to create prune job: %w", err)
	}

	scheduler.Start()
	p.scheduler = scheduler
	p.running = true
	return nil
}

// Stop stops the scheduler
func (p *Pruner) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return pkgerrors.ErrSchedulerNotRunning
	}

	err := p.scheduler.Shutdown()
	p.scheduler = nil
	p.running = false
	if err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// PruneNow deletes history older than the retention period.
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.retention)
	n, err := p.store.PruneHistory(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("pruned history", zap.Int64("rows", n), zap.Time("before", cutoff))
	}
	return n, nil
}
