package channel

import (
	"log/slog"
	"sync"
)

// Registry tracks a node's channels by filename, serialized by a single
// mutex that is never held across channel I/O (spec.md §5). A channel
// exists in the registry iff at least one session Room-references it; at
// most one channel exists per filename (spec.md §3 invariants).
type Registry struct {
	log      *slog.Logger
	mu       sync.Mutex
	channels map[string]*Channel
	creating map[string]*sync.Mutex
}

// NewRegistry creates an empty channel registry. If log is nil,
// slog.Default() is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log.With("component", "channel-registry"),
		channels: make(map[string]*Channel),
		creating: make(map[string]*sync.Mutex),
	}
}

// Get returns the channel for filename, and whether it exists.
func (r *Registry) Get(filename string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[filename]
	return c, ok
}

// GetOrCreate returns the existing channel for filename, or calls create
// to build one if none exists yet. The check and the insert are serialized
// per filename by a dedicated lock, so two concurrent SETUPs for the same
// filename cannot both pass the "not found" check and both run create:
// the second caller blocks until the first's create (and its Insert) has
// completed, then observes the first's channel via Get. The per-filename
// lock is held across create, but never across the registry's own mutex,
// so a slow dial/open for one filename cannot stall lookups for others.
func (r *Registry) GetOrCreate(filename string, create func() (*Channel, error)) (*Channel, error) {
	lock := r.creationLock(filename)
	lock.Lock()
	defer lock.Unlock()

	if c, ok := r.Get(filename); ok {
		return c, nil
	}

	c, err := create()
	if err != nil {
		return nil, err
	}
	r.Insert(c)
	return c, nil
}

func (r *Registry) creationLock(filename string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.creating[filename]
	if !ok {
		lock = &sync.Mutex{}
		r.creating[filename] = lock
	}
	return lock
}

// Insert installs a freshly built channel for filename, overwriting any
// existing entry. Most callers should use GetOrCreate instead, which
// serializes the check-then-insert; Insert is exposed directly for tests.
func (r *Registry) Insert(c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.Filename] = c
	r.log.Info("channel installed", "filename", c.Filename)
}

// Remove deletes the channel for filename from the registry. Called when
// a TEARDOWN empties the channel's Room set.
func (r *Registry) Remove(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, filename)
	r.log.Info("channel removed", "filename", filename)
}

// Count returns the number of live channels, for tests and diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
