// Package notify relays best-effort messages between surfaces: the side
// panel, per-tab content surfaces and the background role that owns the
// context menu and keyboard shortcut.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hpungsan/ctxbridge/internal/clip"
)

// Kind identifies a message.
type Kind string

const (
	// KindParsePage asks a content surface to capture its whole page.
	KindParsePage Kind = "parse_page"

	// KindClipAdded tells the side panel a clip was captured.
	KindClipAdded Kind = "clip_added"
)

// MenuSavePage is the context menu entry that triggers a page capture.
const MenuSavePage = "save-page-content"

// SurfacePanel is the side panel's receiver name.
const SurfacePanel = "panel"

// TabSurface returns the receiver name of a tab's content surface.
func TabSurface(tabID string) string {
	return "tab:" + tabID
}

// Message is what travels between surfaces.
type Message struct {
	Kind  Kind       `json:"type"`
	TabID string     `json:"tab_id,omitempty"`
	Clip  *clip.Item `json:"payload,omitempty"`
}

// Receiver handles a message addressed to one surface.
type Receiver func(ctx context.Context, msg Message) error

// Relay routes messages to registered surfaces. Delivery is point-to-point
// and best effort: an absent or failing receiver is logged, never returned.
type Relay struct {
	logger *slog.Logger

	mu        sync.Mutex
	receivers map[string]registration
	nextID    int
	panels    int
	activeTab string
}

type registration struct {
	id int
	fn Receiver
}

// NewRelay returns an empty relay.
func NewRelay(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{logger: logger, receivers: make(map[string]registration)}
}

// Register installs fn as the receiver for name, replacing any previous one.
// The returned function removes it again, unless it was replaced meanwhile.
func (r *Relay) Register(name string, fn Receiver) (unregister func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.receivers[name] = registration{id: id, fn: fn}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.receivers[name]; ok && cur.id == id {
			delete(r.receivers, name)
		}
	}
}

// Send delivers msg to the receiver registered under to. It reports whether
// the receiver accepted it.
func (r *Relay) Send(ctx context.Context, to string, msg Message) bool {
	r.mu.Lock()
	reg, ok := r.receivers[to]
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("no receiver", "to", to, "kind", msg.Kind)
		return false
	}
	if err := reg.fn(ctx, msg); err != nil {
		r.logger.Debug("delivery failed", "to", to, "kind", msg.Kind, "error", err)
		return false
	}
	return true
}

// Connect records an open side panel connection.
func (r *Relay) Connect() {
	r.mu.Lock()
	r.panels++
	r.mu.Unlock()
}

// Disconnect records a closed side panel connection.
func (r *Relay) Disconnect() {
	r.mu.Lock()
	if r.panels > 0 {
		r.panels--
	}
	r.mu.Unlock()
}

// PanelConnected reports whether at least one side panel is open.
func (r *Relay) PanelConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.panels > 0
}

// Activate marks tabID as the focused tab.
func (r *Relay) Activate(tabID string) {
	r.mu.Lock()
	r.activeTab = tabID
	r.mu.Unlock()
}

// ActiveTab returns the focused tab, or "" if none was activated.
func (r *Relay) ActiveTab() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeTab
}

// ContextMenu handles a click on menuID in tabID. Only MenuSavePage is
// known; it asks the tab to capture its page.
func (r *Relay) ContextMenu(ctx context.Context, menuID, tabID string) bool {
	if menuID != MenuSavePage {
		r.logger.Debug("ignoring context menu", "menu", menuID)
		return false
	}
	return r.parsePage(ctx, tabID)
}

// Shortcut handles the capture keyboard shortcut in tabID.
func (r *Relay) Shortcut(ctx context.Context, tabID string) bool {
	return r.parsePage(ctx, tabID)
}

func (r *Relay) parsePage(ctx context.Context, tabID string) bool {
	if tabID == "" {
		tabID = r.ActiveTab()
	}
	if tabID == "" {
		r.logger.Debug("parse page without a target tab")
		return false
	}
	return r.Send(ctx, TabSurface(tabID), Message{Kind: KindParsePage, TabID: tabID})
}

// ClipAdded tells the side panel about a new clip.
func (r *Relay) ClipAdded(ctx context.Context, it clip.Item) bool {
	it = it.Clone()
	return r.Send(ctx, SurfacePanel, Message{Kind: KindClipAdded, Clip: &it})
}
