package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hub owns a Backend and the handles opened on it.
type Hub struct {
	backend Backend
	id      string // writer name in the backend's change feed
	logger  *slog.Logger

	mu      sync.Mutex
	handles map[*Handle]struct{}
	stop    func()
}

// NewHub wraps backend. A nil logger means slog.Default().
func NewHub(backend Backend, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		backend: backend,
		id:      uuid.NewString(),
		logger:  logger,
		handles: make(map[*Handle]struct{}),
	}
}

// Open returns a new handle for the named surface.
func (h *Hub) Open(name string) *Handle {
	handle := &Handle{
		hub:  h,
		name: name,
		subs: make(map[string]map[int]func([]byte)),
	}
	h.mu.Lock()
	h.handles[handle] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("store handle opened", "surface", name)
	return handle
}

// Start follows the backend change feed so that writes from other processes
// reach local subscribers. Calling Start twice is a no-op.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	stop, err := h.backend.Watch(ctx, func(c Change) { h.onChange(ctx, c) })
	if err != nil {
		cancel()
		return err
	}
	h.stop = func() {
		stop()
		cancel()
	}
	return nil
}

// Close stops the change feed, detaches all handles and closes the backend.
func (h *Hub) Close() error {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.handles = make(map[*Handle]struct{})
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	return h.backend.Close()
}

func (h *Hub) detach(handle *Handle) {
	h.mu.Lock()
	delete(h.handles, handle)
	h.mu.Unlock()
}

func (h *Hub) onChange(ctx context.Context, c Change) {
	// Own writes were already fanned out by Handle.Set
	if c.Writer == h.id {
		return
	}
	entry, err := h.backend.Load(ctx, c.Key)
	if err != nil {
		h.logger.Warn("reload after external write failed", "key", c.Key, "error", err)
		return
	}
	h.logger.Debug("external write", "key", c.Key, "version", c.Version)
	h.fanout(c.Key, entry.Value, nil)
}

// fanout delivers value to every subscriber of key except those of skip.
// Callbacks run synchronously on the caller's goroutine.
func (h *Hub) fanout(key string, value []byte, skip *Handle) {
	h.mu.Lock()
	targets := make([]*Handle, 0, len(h.handles))
	for handle := range h.handles {
		if handle != skip {
			targets = append(targets, handle)
		}
	}
	h.mu.Unlock()

	var fns []func([]byte)
	for _, handle := range targets {
		fns = append(fns, handle.subscribers(key)...)
	}
	for _, fn := range fns {
		fn(value)
	}
}
