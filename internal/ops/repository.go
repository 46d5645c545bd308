package ops

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/config"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/store"
)

// Repository is one surface's live view of the clips collection. It keeps a
// projection in memory, mirrors writes made elsewhere, and persists its own
// mutations through the store.
//
// Mutations apply to the projection first and then persist. If the write
// fails the projection is restored and a STORAGE_ERROR is returned.
type Repository struct {
	store   store.ClipStore
	cfg     *config.Config
	baseDir string
	logger  *slog.Logger

	// writeMu serializes mutations; mu guards the projection.
	writeMu sync.Mutex

	mu          sync.Mutex
	clips       []clip.Item
	gen         uint64
	listeners   map[int]func([]clip.Item)
	nextID      int
	unsubscribe func()
}

// Open hydrates a repository with a single read and subscribes to changes.
func Open(ctx context.Context, s store.ClipStore, opts Options) (*Repository, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Repository{
		store:     s,
		cfg:       cfg,
		baseDir:   opts.BaseDir,
		logger:    logger,
		listeners: make(map[int]func([]clip.Item)),
	}

	items, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	r.clips = items
	r.unsubscribe = s.Subscribe(r.onExternal)
	return r, nil
}

// Close stops mirroring external writes.
func (r *Repository) Close() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// OnChange registers fn for every projection change, local or external.
func (r *Repository) OnChange(fn func([]clip.Item)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Refresh re-reads the collection from the store. A projection replaced by
// an external change during the read is left alone.
func (r *Repository) Refresh(ctx context.Context) error {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	items, err := r.store.Get(ctx)
	if err != nil {
		return asStorageError("refresh", err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return nil
	}
	r.clips = items
	r.gen++
	r.mu.Unlock()
	r.notify(items)
	return nil
}

// settle runs after a successful write of next. The hub does not echo a
// surface's own writes, so if an external change replaced the projection
// while the write was in flight, nothing else would bring it back in line
// with the store.
func (r *Repository) settle(ctx context.Context, op string, gen uint64, next []clip.Item) {
	r.mu.Lock()
	moved := r.gen != gen
	r.mu.Unlock()
	if !moved {
		return
	}
	r.logger.Debug("clips changed during write, resyncing", "op", op)
	if err := r.Refresh(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("resync after write failed", "op", op, "error", err)
		r.replace(next)
	}
}

func (r *Repository) onExternal(items []clip.Item) {
	r.logger.Debug("clips changed elsewhere", "count", len(items))
	r.replace(items)
}

// replace installs items as the projection and returns its generation.
func (r *Repository) replace(items []clip.Item) uint64 {
	r.mu.Lock()
	r.clips = items
	r.gen++
	gen := r.gen
	r.mu.Unlock()
	r.notify(items)
	return gen
}

func (r *Repository) notify(items []clip.Item) {
	r.mu.Lock()
	fns := make([]func([]clip.Item), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(clip.CloneAll(items))
	}
}

func (r *Repository) snapshot() []clip.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clip.CloneAll(r.clips)
}

// mutateFunc derives the next collection from the current one. It may modify
// current in place; callers always pass a private copy.
type mutateFunc func(current []clip.Item) ([]clip.Item, error)

// commit applies mutate to the projection and persists the result.
func (r *Repository) commit(ctx context.Context, op string, mutate mutateFunc) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := r.snapshot()
	next, err := mutate(clip.CloneAll(prev))
	if err != nil {
		return err
	}

	gen := r.replace(next)
	if err := r.store.Set(ctx, next); err != nil {
		r.revert(gen, prev)
		r.logger.Warn("persist failed, reverted", "op", op, "error", err)
		return asStorageError(op, err)
	}
	r.settle(ctx, op, gen, next)
	return nil
}

// readModifyWrite re-reads the stored collection before mutating it. A
// versioned store gets compare-and-set with bounded retry; otherwise the
// narrower get-then-set window is the only protection.
func (r *Repository) readModifyWrite(ctx context.Context, op string, mutate mutateFunc) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := r.snapshot()

	versioned, ok := r.store.(store.Versioned)
	if !ok {
		current, err := r.store.Get(ctx)
		if err != nil {
			return asStorageError(op, err)
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		gen := r.replace(next)
		if err := r.store.Set(ctx, next); err != nil {
			r.revert(gen, prev)
			r.logger.Warn("persist failed, reverted", "op", op, "error", err)
			return asStorageError(op, err)
		}
		r.settle(ctx, op, gen, next)
		return nil
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		current, version, err := versioned.GetVersioned(ctx)
		if err != nil {
			return asStorageError(op, err)
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		gen := r.replace(next)
		_, err = versioned.CompareAndSet(ctx, version, next)
		if err == nil {
			r.settle(ctx, op, gen, next)
			return nil
		}
		r.revert(gen, prev)
		if !stderrors.Is(err, store.ErrVersionConflict) {
			r.logger.Warn("persist failed, reverted", "op", op, "error", err)
			return asStorageError(op, err)
		}
		r.logger.Debug("concurrent write, retrying", "op", op, "attempt", attempt+1)
	}
	return errors.NewConflict(op + ": clips changed concurrently, retries exhausted")
}

// revert restores prev unless an external write replaced the projection
// after gen was installed.
func (r *Repository) revert(gen uint64, prev []clip.Item) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.clips = prev
	r.gen++
	r.mu.Unlock()
	r.notify(prev)
}

func asStorageError(op string, err error) error {
	if errors.Is(err, errors.ErrStorage) {
		return err
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.NewCancelled(op)
	}
	return errors.NewStorage(op, err)
}

// Clips returns the whole collection in order.
func (r *Repository) Clips() []clip.Item {
	return r.snapshot()
}

// Staging returns the staging partition in collection order.
func (r *Repository) Staging() []clip.Item {
	return clip.Staging(r.snapshot())
}

// Archived returns the archived partition in collection order.
func (r *Repository) Archived() []clip.Item {
	return clip.Archived(r.snapshot())
}

// Get returns the clip with id.
func (r *Repository) Get(id string) (clip.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := clip.IndexOf(r.clips, id); i >= 0 {
		return r.clips[i].Clone(), nil
	}
	return clip.Item{}, errors.NewNotFound(id)
}

// Find returns the clips with the given ids, in the order requested.
// Missing ids are skipped.
func (r *Repository) Find(ids []string) []clip.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]clip.Item, 0, len(ids))
	for _, id := range ids {
		if i := clip.IndexOf(r.clips, id); i >= 0 {
			out = append(out, r.clips[i].Clone())
		}
	}
	return out
}
