package web

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/notify"
	"github.com/hpungsan/ctxbridge/internal/ops"
)

// Event names on the streams.
const (
	eventClips     = "clips"
	eventSynthesis = "synthesis"
)

const (
	streamBuffer      = 32
	keepAliveInterval = 25 * time.Second
)

var (
	errNoPanel    = stderrors.New("no panel connected")
	errStreamFull = stderrors.New("stream buffer full")
)

type event struct {
	Name string
	Data any
}

// broker fans panel events out to every open panel stream. A slow stream
// loses events rather than stalling the publisher.
type broker struct {
	mu   sync.Mutex
	subs map[int]chan event
	next int
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan event)}
}

func (b *broker) subscribe() (<-chan event, func()) {
	ch := make(chan event, streamBuffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *broker) publish(ev event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broker) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// clipsPayload is the "clips" event body.
type clipsPayload struct {
	Staging     []ops.ClipSummary `json:"staging"`
	Archived    int               `json:"archived"`
	TotalTokens int               `json:"total_tokens"`
}

func clipsEvent(items []clip.Item) clipsPayload {
	staging := clip.Staging(items)
	out := clipsPayload{
		Staging:  make([]ops.ClipSummary, 0, len(staging)),
		Archived: len(items) - len(staging),
	}
	for _, it := range staging {
		out.Staging = append(out.Staging, ops.Summarize(it))
		out.TotalTokens += it.TokenEstimate
	}
	return out
}

// toPanel receives relay messages addressed to the side panel.
func (s *Server) toPanel(_ context.Context, msg notify.Message) error {
	if s.panel.size() == 0 {
		return errNoPanel
	}
	s.panel.publish(event{Name: string(msg.Kind), Data: msg})
	return nil
}

// handlePanelEvents streams clip changes, new-clip notices and synthesis
// progress to a side panel. The stream opens with the current state.
func (s *Server) handlePanelEvents(w http.ResponseWriter, r *http.Request) {
	ch, unsubscribe := s.panel.subscribe()
	defer unsubscribe()
	s.deps.Relay.Connect()
	defer s.deps.Relay.Disconnect()

	s.stream(w, r, ch, []event{
		{Name: eventClips, Data: clipsEvent(s.deps.Repo.Clips())},
		{Name: eventSynthesis, Data: s.synthesisState(nil)},
	})
}

// handleTabEvents is the channel a content surface listens on for
// parse_page requests.
func (s *Server) handleTabEvents(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tab")
	ch := make(chan event, streamBuffer)
	unregister := s.deps.Relay.Register(notify.TabSurface(tabID), func(_ context.Context, msg notify.Message) error {
		select {
		case ch <- event{Name: string(msg.Kind), Data: msg}:
			return nil
		default:
			return errStreamFull
		}
	})
	defer unregister()

	s.stream(w, r, ch, nil)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, ch <-chan event, initial []event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		renderError(w, errors.NewInternal(stderrors.New("streaming unsupported")))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	for _, ev := range initial {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case ev := <-ch:
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.deps.Relay.Activate(chi.URLParam(r, "tab"))
	w.WriteHeader(http.StatusNoContent)
}

// MenuRequest is the body of POST /tabs/{tab}/parse.
type MenuRequest struct {
	MenuID string `json:"menu_id,omitempty"`
}

// handleParse is the "Save page content" context-menu click. It relays a
// parse_page request to the tab's content surface.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req MenuRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	if req.MenuID == "" {
		req.MenuID = notify.MenuSavePage
	}
	delivered := s.deps.Relay.ContextMenu(r.Context(), req.MenuID, chi.URLParam(r, "tab"))
	renderJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

// ShortcutRequest is the body of POST /shortcut. An empty tab means the
// active tab.
type ShortcutRequest struct {
	TabID string `json:"tab_id,omitempty"`
}

func (s *Server) handleShortcut(w http.ResponseWriter, r *http.Request) {
	var req ShortcutRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	delivered := s.deps.Relay.Shortcut(r.Context(), req.TabID)
	renderJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}
