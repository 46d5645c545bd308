// Package store is the device-local clip store shared by every surface.
//
// A Hub owns one durable Backend. Each surface (CLI invocation, MCP server,
// web panel) opens its own Handle from the hub. A write through one handle is
// pushed synchronously to the subscribers of every other handle; writes made
// by other processes arrive through the backend's change feed.
package store

import (
	"context"
	"errors"

	"github.com/hpungsan/ctxbridge/internal/clip"
)

// Well-known keys of the flat namespace.
const (
	KeyClips              = "clips"
	KeyTemplates          = "templates"
	KeyAIPrompts          = "ai_prompts"
	KeyOpenAIAPIKey       = "openai_api_key"
	KeyOpenAIBaseURL      = "openai_base_url"
	KeyOpenAIModel        = "openai_model"
	KeyExtensionEnabled   = "extensionEnabled"
	KeyOnboardingComplete = "onboardingComplete"
)

// ErrVersionConflict is returned by CompareAndSave and CompareAndSet when the
// stored version moved since it was read.
var ErrVersionConflict = errors.New("version conflict")

// ClipStore is the durable home of the clips collection for one surface.
type ClipStore interface {
	Get(ctx context.Context) ([]clip.Item, error)
	Set(ctx context.Context, items []clip.Item) error
	// Subscribe registers fn for writes made by other surfaces. The returned
	// func removes the subscription.
	Subscribe(fn func([]clip.Item)) (unsubscribe func())
}

// Versioned is implemented by stores that can detect concurrent writers.
type Versioned interface {
	GetVersioned(ctx context.Context) ([]clip.Item, int64, error)
	CompareAndSet(ctx context.Context, expected int64, items []clip.Item) (int64, error)
}

// Entry is a stored value and its version. Version 0 means the key is absent.
type Entry struct {
	Value   []byte
	Version int64
}

// Change announces a committed write.
type Change struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
	Writer  string `json:"writer"`
}

// Backend is the durable key-value layer under a Hub.
type Backend interface {
	Load(ctx context.Context, key string) (Entry, error)
	Save(ctx context.Context, key string, value []byte, writer string) (int64, error)
	// CompareAndSave writes only if the stored version equals expected
	// (0 = absent). Returns ErrVersionConflict otherwise.
	CompareAndSave(ctx context.Context, key string, expected int64, value []byte, writer string) (int64, error)
	// Watch starts delivering changes committed by any writer. Delivery is
	// live when Watch returns and ends when stop is called or ctx is done.
	Watch(ctx context.Context, fn func(Change)) (stop func(), err error)
	Close() error
}
