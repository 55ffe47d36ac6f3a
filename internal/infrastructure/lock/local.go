// Package lock provides the per-audit mutual exclusion used by every mutating
// operation: an in-process implementation and a Redis-backed one for
// multi-instance deployments.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// LocalLocker serializes audits within one process. Each audit owns a
// one-slot channel; holders are counted so idle slots can be dropped.
type LocalLocker struct {
	mu      sync.Mutex
	slots   map[int64]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a locker that waits at most timeout for an audit
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		slots:   make(map[int64]*slot),
		timeout: timeout,
	}
}

func (l *LocalLocker) acquireSlot(auditID int64) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[auditID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[auditID] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) releaseSlot(auditID int64, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, auditID)
	}
}

// Lock implements port.AuditLocker
func (l *LocalLocker) Lock(ctx context.Context, auditID int64) (func(), error) {
	s := l.acquireSlot(auditID)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		l.releaseSlot(auditID, s)
		return nil, &entity.LockTimeoutError{AuditID: auditID, Waited: l.timeout}
	case <-ctx.Done():
		l.releaseSlot(auditID, s)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &entity.LockTimeoutError{AuditID: auditID, Waited: l.timeout}
		}
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.releaseSlot(auditID, s)
		})
	}, nil
}

var _ port.AuditLocker = (*LocalLocker)(nil)
