package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/streamscribe/streamscribe/internal/metrics"
)

// Registry is the process-wide directory of active sessions. Its map is
// the only cross-session shared mutable state; one mutex guards all
// reads and writes.
type Registry struct {
	sessions map[string]*Session
	mu       sync.Mutex

	logger  *slog.Logger
	metrics *metrics.Metrics // Optional
}

// NewRegistry creates an empty session registry
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  m,
	}
}

// Register adds a session, failing fast if the id is already active
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("session %s is already active", s.ID)
	}

	r.sessions[s.ID] = s

	if r.metrics != nil {
		r.metrics.RecordSessionStarted()
		r.metrics.SetActiveSessions(len(r.sessions))
	}

	r.logger.Info("Session registered",
		slog.String("session_id", s.ID),
		slog.Int("active_sessions", len(r.sessions)))

	return nil
}

// Unregister removes a session without stopping it. Returns false if
// the id is not registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}

	delete(r.sessions, id)

	if r.metrics != nil {
		r.metrics.SetActiveSessions(len(r.sessions))
	}

	r.logger.Info("Session unregistered",
		slog.String("session_id", id),
		slog.Int("active_sessions", len(r.sessions)))

	return true
}

// Get returns the session with the given id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	return s, exists
}

// List returns a snapshot of all active sessions ordered by id
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.GetInfo())
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos
}

// Len returns the number of active sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop stops one session and unregisters it. Returns false if the id is
// not registered.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	s, exists := r.sessions[id]
	r.mu.Unlock()

	if !exists {
		return false
	}

	// Stop outside the lock, shutdown waits for loop drains
	startTime := s.StartTime
	s.Stop()
	r.Unregister(id)

	if r.metrics != nil && !startTime.IsZero() {
		r.metrics.RecordSessionStopped(time.Since(startTime).Seconds())
	}

	r.logger.Info("Session stopped",
		slog.String("session_id", id),
		slog.Duration("duration", time.Since(startTime)))

	return true
}

// StopAll stops every active session and returns how many were stopped
func (r *Registry) StopAll() int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	stopped := 0
	for _, id := range ids {
		if r.Stop(id) {
			stopped++
		}
	}

	r.logger.Info("All sessions stopped", slog.Int("count", stopped))

	return stopped
}
