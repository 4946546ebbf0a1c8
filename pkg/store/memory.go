package store

import (
	"context"
	"sync"
)

const watchBuffer = 128

// MemoryBackend is an in-process store shared by several sessions, the
// equivalent of one origin's localStorage shared by its tabs.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[*memoryWatcher]struct{}
}

type memoryWatcher struct {
	session *MemorySession
	keys    map[string]struct{}
	ch      chan Change
}

// MemorySession is one process's view of a MemoryBackend. Writes made
// through a session are reported to every other session's watchers.
type MemorySession struct {
	backend *MemoryBackend
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string]string),
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

// Session opens a new handle on the shared data.
func (m *MemoryBackend) Session() *MemorySession {
	return &MemorySession{backend: m}
}

// Put writes without any session, notifying every watcher.
func (m *MemoryBackend) Put(key, value string) {
	m.write(nil, key, value, false)
}

// Remove deletes key, notifying every watcher.
func (m *MemoryBackend) Remove(key string) {
	m.write(nil, key, "", true)
}

// Snapshot returns the raw value stored under key.
func (m *MemoryBackend) Snapshot(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryBackend) write(from *MemorySession, key, value string, deleted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if deleted {
		delete(m.data, key)
	} else {
		m.data[key] = value
	}

	change := Change{Key: key, Value: value, Deleted: deleted}
	for w := range m.watchers {
		if from != nil && w.session == from {
			continue
		}
		if _, ok := w.keys[key]; !ok {
			continue
		}
		// A full buffer drops the event; focus resync covers the gap.
		select {
		case w.ch <- change:
		default:
		}
	}
}

func (s *MemorySession) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.backend.Snapshot(key)
	return v, ok, nil
}

func (s *MemorySession) Set(_ context.Context, key, value string) error {
	s.backend.write(s, key, value, false)
	return nil
}

func (s *MemorySession) Watch(ctx context.Context, keys ...string) (<-chan Change, error) {
	w := &memoryWatcher{
		session: s,
		keys:    make(map[string]struct{}, len(keys)),
		ch:      make(chan Change, watchBuffer),
	}
	for _, k := range keys {
		w.keys[k] = struct{}{}
	}

	m := s.backend
	m.mu.Lock()
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, w)
		m.mu.Unlock()
		close(w.ch)
	}()

	return w.ch, nil
}
