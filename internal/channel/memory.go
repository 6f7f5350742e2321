package channel

import (
	"sync"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// Registry is an in-process channel transport. Handles opened from the same
// Registry by the same name share one segment. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	mu        sync.Mutex
	name      string
	buf       segment
	destroyed bool
	registry  *Registry
}

// NewRegistry creates an empty in-process transport.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*memEntry)}
}

// Open creates or attaches to the named channel.
func (r *Registry) Open(name string, cfg Config) (*Channel, error) {
	return open(r, name, cfg)
}

func (r *Registry) bind(name string, cfg Config) (backing, error) {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok {
		entry = &memEntry{name: name, buf: make(segment, segmentSize(cfg)), registry: r}
		entry.buf.init(cfg)
		r.entries[name] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := entry.buf.check(cfg); err != nil {
		return nil, err
	}
	return &memBacking{entry: entry}, nil
}

func (r *Registry) remove(e *memEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[e.name] == e {
		delete(r.entries, e.name)
	}
}

type memBacking struct {
	entry *memEntry
}

func (m *memBacking) lock() error {
	m.entry.mu.Lock()
	return nil
}

func (m *memBacking) unlock() error {
	m.entry.mu.Unlock()
	return nil
}

func (m *memBacking) bytes() []byte { return m.entry.buf }

// stale must be called with the lock held.
func (m *memBacking) stale() (bool, error) {
	return m.entry.destroyed, nil
}

// destroy must be called with the lock held.
func (m *memBacking) destroy() error {
	if m.entry.destroyed {
		return errors.ErrChannelClosed
	}
	m.entry.destroyed = true
	m.entry.registry.remove(m.entry)
	return nil
}

func (m *memBacking) close() error { return nil }
