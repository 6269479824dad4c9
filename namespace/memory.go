package namespace

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/sandbox"
)

// Session is a live namespace kept in process memory
type Session struct {
	Namespace  sandbox.Namespace
	LastActive time.Time
}

// MemoryLifecycle keeps namespaces in process and evicts sessions idle longer
// than the timeout. Namespaces are lost on restart.
type MemoryLifecycle struct {
	logger   *zap.Logger
	sessions *cache.Cache
	locker   *Locker
	now      func() time.Time
}

// NewMemory creates a memory lifecycle. The janitor sweeps expired sessions
// every sweepInterval.
func NewMemory(logger *zap.Logger, timeout, sweepInterval time.Duration) *MemoryLifecycle {
	sessions := cache.New(timeout, sweepInterval)
	sessions.OnEvicted(func(key string, _ any) {
		logger.Info("Session removed", zap.String("notebook", key))
	})

	return &MemoryLifecycle{
		logger:   logger,
		sessions: sessions,
		locker:   NewLocker(),
		now:      time.Now,
	}
}

// Run calls fn with the notebook's session namespace, creating it on first
// use, and refreshes the session's expiry. A session created by a failing
// run is not kept, so a run racing the notebook's deletion leaves nothing
// behind.
func (m *MemoryLifecycle) Run(ctx context.Context, key Key, fn func(ns sandbox.Namespace) error) error {
	unlock, err := m.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	session, existed := m.session(key)
	session.LastActive = m.now()

	if err := fn(session.Namespace); err != nil {
		// Re-stored so a sweep during fn cannot drop a live session.
		if existed {
			m.sessions.SetDefault(key.String(), session)
		}
		return err
	}

	m.sessions.SetDefault(key.String(), session)
	return nil
}

// Discard drops the notebook's session
func (m *MemoryLifecycle) Discard(ctx context.Context, key Key) error {
	unlock, err := m.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	m.sessions.Delete(key.String())
	return nil
}

// Session returns the live session of a notebook, if any
func (m *MemoryLifecycle) Session(key Key) (*Session, bool) {
	v, ok := m.sessions.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Len reports the number of live sessions, including expired ones the
// janitor has not swept yet
func (m *MemoryLifecycle) Len() int {
	return m.sessions.ItemCount()
}

// Sweep evicts every expired session immediately
func (m *MemoryLifecycle) Sweep() {
	m.sessions.DeleteExpired()
}

func (m *MemoryLifecycle) session(key Key) (*Session, bool) {
	if s, ok := m.Session(key); ok {
		return s, true
	}
	m.logger.Debug("Starting session", zap.Stringer("notebook", key))
	return &Session{Namespace: sandbox.Namespace{}}, false
}
