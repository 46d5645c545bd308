package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

var errHandleClosed = stderrors.New("store handle closed")

// Handle is one surface's view of the store. It implements ClipStore and
// Versioned.
type Handle struct {
	hub  *Hub
	name string

	mu     sync.Mutex
	subs   map[string]map[int]func([]byte)
	nextID int
	closed bool
}

var (
	_ ClipStore = (*Handle)(nil)
	_ Versioned = (*Handle)(nil)
)

// Name returns the surface name given to Open.
func (h *Handle) Name() string { return h.name }

// Close drops all subscriptions and detaches the handle from its hub.
func (h *Handle) Close() {
	h.mu.Lock()
	h.closed = true
	h.subs = make(map[string]map[int]func([]byte))
	h.mu.Unlock()
	h.hub.detach(h)
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Get reads the clips collection. An absent key is an empty collection.
func (h *Handle) Get(ctx context.Context) ([]clip.Item, error) {
	items, _, err := h.GetVersioned(ctx)
	return items, err
}

// GetVersioned reads the clips collection along with its version.
func (h *Handle) GetVersioned(ctx context.Context) ([]clip.Item, int64, error) {
	if h.isClosed() {
		return nil, 0, errors.NewStorage("get clips", errHandleClosed)
	}
	entry, err := h.hub.backend.Load(ctx, KeyClips)
	if err != nil {
		return nil, 0, errors.NewStorage("get clips", err)
	}
	items, err := decodeClips(entry.Value)
	if err != nil {
		return nil, 0, errors.NewStorage("decode clips", err)
	}
	return items, entry.Version, nil
}

// Set replaces the clips collection and notifies every other handle.
func (h *Handle) Set(ctx context.Context, items []clip.Item) error {
	data, err := encodeClips(items)
	if err != nil {
		return errors.NewStorage("encode clips", err)
	}
	return h.put(ctx, KeyClips, data)
}

// CompareAndSet replaces the clips collection only if its version is still
// expected. Returns ErrVersionConflict otherwise.
func (h *Handle) CompareAndSet(ctx context.Context, expected int64, items []clip.Item) (int64, error) {
	if h.isClosed() {
		return 0, errors.NewStorage("set clips", errHandleClosed)
	}
	data, err := encodeClips(items)
	if err != nil {
		return 0, errors.NewStorage("encode clips", err)
	}
	version, err := h.hub.backend.CompareAndSave(ctx, KeyClips, expected, data, h.hub.id)
	if stderrors.Is(err, ErrVersionConflict) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, errors.NewStorage("set clips", err)
	}
	h.hub.fanout(KeyClips, data, h)
	return version, nil
}

// Subscribe registers fn for clips written through other handles or other
// processes.
func (h *Handle) Subscribe(fn func([]clip.Item)) func() {
	return h.SubscribeKey(KeyClips, func(raw []byte) {
		items, err := decodeClips(raw)
		if err != nil {
			h.hub.logger.Warn("dropping undecodable clips update", "surface", h.name, "error", err)
			return
		}
		fn(items)
	})
}

// SubscribeKey registers fn for raw writes to key made elsewhere.
func (h *Handle) SubscribeKey(key string, fn func(raw []byte)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}
	}
	id := h.nextID
	h.nextID++
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]func([]byte))
	}
	h.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], id)
			h.mu.Unlock()
		})
	}
}

func (h *Handle) subscribers(key string) []func([]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fns := make([]func([]byte), 0, len(h.subs[key]))
	for _, fn := range h.subs[key] {
		fns = append(fns, fn)
	}
	return fns
}

// Value decodes the JSON value stored under key into dst. found is false
// when the key was never written; dst is left untouched.
func (h *Handle) Value(ctx context.Context, key string, dst any) (bool, error) {
	if h.isClosed() {
		return false, errors.NewStorage("get "+key, errHandleClosed)
	}
	entry, err := h.hub.backend.Load(ctx, key)
	if err != nil {
		return false, errors.NewStorage("get "+key, err)
	}
	if entry.Version == 0 || len(entry.Value) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		return false, errors.NewStorage("decode "+key, err)
	}
	return true, nil
}

// SetValue stores v as JSON under key and notifies other handles.
func (h *Handle) SetValue(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewStorage("encode "+key, err)
	}
	return h.put(ctx, key, data)
}

func (h *Handle) put(ctx context.Context, key string, data []byte) error {
	if h.isClosed() {
		return errors.NewStorage("set "+key, errHandleClosed)
	}
	if _, err := h.hub.backend.Save(ctx, key, data, h.hub.id); err != nil {
		return errors.NewStorage("set "+key, err)
	}
	h.hub.fanout(key, data, h)
	return nil
}

func decodeClips(raw []byte) ([]clip.Item, error) {
	if len(raw) == 0 {
		return []clip.Item{}, nil
	}
	var items []clip.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []clip.Item{}
	}
	return items, nil
}

func encodeClips(items []clip.Item) ([]byte, error) {
	if items == nil {
		items = []clip.Item{}
	}
	return json.Marshal(items)
}
