package studio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const janitorInterval = time.Minute

// Store keeps every live session in memory. Nothing survives a restart.
type Store struct {
	models  Models
	notify  Notifier
	log     *zap.Logger
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore(models Models, notify Notifier, idleTTL time.Duration, log *zap.Logger) *Store {
	if notify == nil {
		notify = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		models:   models,
		notify:   notify,
		log:      log.Named("studio"),
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

func (st *Store) Create() *Session {
	id := uuid.NewString()
	sess := NewSession(id, st.models, st.notify, st.log)
	sess.now = st.now
	sess.touchLocked()

	st.mu.Lock()
	st.sessions[id] = sess
	n := len(st.sessions)
	st.mu.Unlock()

	st.log.Info("session created", zap.String("session", id), zap.Int("sessions", n))
	return sess
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with running
// extraction, generation or edit work are kept regardless of age.
func (st *Store) Sweep() int {
	if st.idleTTL <= 0 {
		return 0
	}
	cutoff := st.now().UTC().Add(-st.idleTTL)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, sess := range st.sessions {
		if !sess.idle(cutoff) {
			continue
		}
		delete(st.sessions, id)
		removed++
	}
	if removed > 0 {
		st.log.Info("idle sessions removed", zap.Int("removed", removed), zap.Int("remaining", len(st.sessions)))
	}
	return removed
}

// RunJanitor sweeps once a minute until ctx is done.
func (st *Store) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}

// Wait blocks until the dispatched generations of every session have finished.
func (st *Store) Wait() {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		sessions = append(sessions, sess)
	}
	st.mu.RUnlock()

	for _, sess := range sessions {
		sess.Wait()
	}
}
