package interview

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/kolloq/internal/observe"
)

// Info is the registry snapshot exposed over the admin surface.
type Info struct {
	ActiveSessions int      `json:"active_sessions"`
	IDs            []string `json:"ids"`
}

// Registry owns the live interview sessions, one Controller per session id.
// Creation is idempotent: Get on an existing id returns the same Controller.
type Registry struct {
	factory func(id string) *Controller
	metrics *observe.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewRegistry builds a Registry around the given session factory. metrics
// and logger may be nil.
func NewRegistry(factory func(id string) *Controller, metrics *observe.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		metrics:  metrics,
		logger:   logger.With("component", "session_registry"),
		sessions: make(map[string]*Controller),
	}
}

// Get returns the session for uid, constructing it on first use.
func (r *Registry) Get(ctx context.Context, uid string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx, uid)
}

func (r *Registry) getLocked(ctx context.Context, uid string) *Controller {
	if c, ok := r.sessions[uid]; ok {
		return c
	}
	c := r.factory(uid)
	r.sessions[uid] = c
	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, 1)
	}
	r.logger.Info("session created", "session_id", uid)
	return c
}

// Has reports whether a session exists for uid.
func (r *Registry) Has(uid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[uid]
	return ok
}

// Reset discards the session for uid, if any. The next Get builds a fresh
// Controller bound to the current script.
func (r *Registry) Reset(ctx context.Context, uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(ctx, uid)
}

func (r *Registry) resetLocked(ctx context.Context, uid string) {
	if _, ok := r.sessions[uid]; !ok {
		return
	}
	delete(r.sessions, uid)
	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, -1)
	}
	r.logger.Info("session reset", "session_id", uid)
}

// Start allocates a new session id and returns its fresh Controller. Defined
// as reset-then-get so that a recycled id never resumes old state.
func (r *Registry) Start(ctx context.Context) (string, *Controller) {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(ctx, id)
	return id, r.getLocked(ctx, id)
}

// Info lists the live sessions.
func (r *Registry) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Info{ActiveSessions: len(ids), IDs: ids}
}
