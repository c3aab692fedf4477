// Package history persists simulated sessions and prunes old history.
package history

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage/models"
)

// SessionStore is the part of storage the recorder writes to.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.SessionRecord) error
	EndSession(ctx context.Context, id int64, endedAt time.Time, durationSec int) error
	OpenSessionOwners(ctx context.Context) ([]int, error)
	CloseStaleSessions(ctx context.Context, ownerPID int, at time.Time) (int64, error)
}

// Recorder turns state changes into session records: one row is opened on
// entering Connected and closed on returning to Disconnected.
type Recorder struct {
	store  SessionStore
	logger *zap.Logger
	pid    int
	alive  func(pid int) bool

	mu      sync.Mutex
	current *models.SessionRecord
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store SessionStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:  store,
		logger: logger,
		pid:    os.Getpid(),
		alive:  processAlive,
	}
}

// Recover closes sessions whose owning process has exited without ending
// them. Sessions of live processes, this one included, are left alone.
func (r *Recorder) Recover(ctx context.Context, at time.Time) error {
	owners, err := r.store.OpenSessionOwners(ctx)
	if err != nil {
		return err
	}
	for _, pid := range owners {
		if pid == r.pid || r.alive(pid) {
			continue
		}
		n, err := r.store.CloseStaleSessions(ctx, pid, at)
		if err != nil {
			return err
		}
		r.logger.Info("closed stale sessions", zap.Int("owner", pid), zap.Int64("count", n))
	}
	return nil
}

// Attach subscribes the recorder to s. The returned func detaches it.
func (r *Recorder) Attach(s *sim.Simulator) func() {
	return s.OnStateChange(r.Observe)
}

// Observe handles one state change.
func (r *Recorder) Observe(change sim.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	switch change.To {
	case sim.Connected:
		session := &models.SessionRecord{
			ServerID:  change.Server.ID,
			Protocol:  string(change.Protocol),
			StartedAt: change.At,
			OwnerPID:  r.pid,
		}
		if err := r.store.CreateSession(ctx, session); err != nil {
			r.logger.Error("failed to record session", zap.String("server", change.Server.ID), zap.Error(err))
			return
		}
		r.current = session

	case sim.Disconnected:
		if r.current == nil {
			return
		}
		session := r.current
		r.current = nil
		if err := r.store.EndSession(ctx, session.ID, change.At, change.Duration); err != nil {
			r.logger.Error("failed to end session", zap.Int64("session", session.ID), zap.Error(err))
			return
		}
		r.logger.Debug("session recorded",
			zap.Int64("session", session.ID),
			zap.String("server", session.ServerID),
			zap.Int("duration", change.Duration))
	}
}

// Current returns the open session, if any.
func (r *Recorder) Current() *models.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	session := *r.current
	return &session
}
