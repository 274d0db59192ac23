package wizard

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultDraftTTL = 15 * time.Minute

type draftEntry struct {
	controller *Controller
	lastSeen   time.Time
}

// Registry holds one wizard per kiosk session. Drafts live in memory only
// and are dropped after ttl without activity.
type Registry struct {
	ttl    time.Duration
	create func() *Controller
	logger *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*draftEntry
}

func NewRegistry(ttl time.Duration, create func() *Controller, logger *logrus.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		ttl:     ttl,
		create:  create,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*draftEntry),
	}
}

// Get returns the live wizard for a session and marks it active.
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}

	now := r.now()
	if now.Sub(e.lastSeen) > r.ttl {
		delete(r.entries, sessionID)
		return nil, false
	}

	e.lastSeen = now
	return e.controller, true
}

// Start replaces any wizard the session had with a fresh one.
func (r *Registry) Start(sessionID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.create()
	r.entries[sessionID] = &draftEntry{controller: c, lastSeen: r.now()}
	return c
}

func (r *Registry) GetOrStart(sessionID string) *Controller {
	if c, ok := r.Get(sessionID); ok {
		return c
	}
	return r.Start(sessionID)
}

func (r *Registry) Discard(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops idle drafts and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.entries, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.WithField("removed", removed).Debug("discarded idle request drafts")
	}
	return removed
}
