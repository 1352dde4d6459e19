package analytics

import (
	"log/slog"
	"sort"
	"sync"
)

// DefaultTrackerName is resolved when no tracker name is configured.
const DefaultTrackerName = "log"

// Registry resolves trackers by name. It is the only place where a tracker
// name turns into a Tracker; the rest of the code receives the capability.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]Tracker
}

// NewRegistry returns a registry with a LogTracker under DefaultTrackerName.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{trackers: make(map[string]Tracker)}
	r.Register(DefaultTrackerName, NewLogTracker(logger))
	return r
}

// Register binds name to t, replacing any previous binding.
func (r *Registry) Register(name string, t Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[name] = t
}

// Resolve returns the tracker registered as name. An empty name resolves
// DefaultTrackerName. A nil registry resolves nothing.
func (r *Registry) Resolve(name string) (Tracker, bool) {
	if r == nil {
		return nil, false
	}
	if name == "" {
		name = DefaultTrackerName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[name]
	if !ok || t == nil {
		return nil, false
	}
	return t, true
}

// Names lists the registered tracker names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.trackers))
	for name := range r.trackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
