package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in process memory. Several hubs may share one
// MemoryBackend to stand in for separate processes.
type MemoryBackend struct {
	mu       sync.Mutex
	entries  map[string]Entry
	watchers map[int]func(Change)
	nextID   int
	failErr  error
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries:  make(map[string]Entry),
		watchers: make(map[int]func(Change)),
	}
}

// FailWrites makes every later write fail with err. nil restores writes.
func (m *MemoryBackend) FailWrites(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *MemoryBackend) Load(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	return Entry{Value: append([]byte(nil), e.Value...), Version: e.Version}, nil
}

func (m *MemoryBackend) Save(ctx context.Context, key string, value []byte, writer string) (int64, error) {
	return m.write(ctx, key, -1, value, writer)
}

func (m *MemoryBackend) CompareAndSave(ctx context.Context, key string, expected int64, value []byte, writer string) (int64, error) {
	return m.write(ctx, key, expected, value, writer)
}

func (m *MemoryBackend) write(ctx context.Context, key string, expected int64, value []byte, writer string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.failErr != nil {
		err := m.failErr
		m.mu.Unlock()
		return 0, err
	}
	cur := m.entries[key]
	if expected >= 0 && cur.Version != expected {
		m.mu.Unlock()
		return 0, ErrVersionConflict
	}
	version := cur.Version + 1
	m.entries[key] = Entry{Value: append([]byte(nil), value...), Version: version}
	watchers := make([]func(Change), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	change := Change{Key: key, Version: version, Writer: writer}
	for _, fn := range watchers {
		fn(change)
	}
	return version, nil
}

// Watch delivers every write synchronously on the writer's goroutine.
func (m *MemoryBackend) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

func (m *MemoryBackend) Close() error { return nil }
