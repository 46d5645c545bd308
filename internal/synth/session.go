package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/settings"
)

// Strategy names how a draft was produced.
type Strategy string

const (
	StrategyJoin   Strategy = "join"
	StrategyRefine Strategy = "ai_refine"
)

// ClipType is the type tag a confirmed draft is stored with.
func (s Strategy) ClipType() clip.Type {
	if s == StrategyRefine {
		return clip.TypeAIResponse
	}
	return clip.TypeText
}

// State of a Session.
type State int

const (
	StateIdle State = iota
	StatePending
	StateReady
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	}
	return "idle"
}

// Draft is an unconfirmed synthesis result.
type Draft struct {
	Strategy  Strategy `json:"strategy"`
	Text      string   `json:"text"`
	SourceIDs []string `json:"source_ids"`

	// TemplateUsed is the template id for Join, or "ai:<prompt id>" for AI Refine.
	TemplateUsed string `json:"template_used"`

	Title string `json:"title"`
}

// Archiver persists a confirmed result together with archiving its sources.
// *ops.Repository satisfies it.
type Archiver interface {
	SynthesizeAndArchive(ctx context.Context, result clip.Item, sourceIDs []string) error
}

// Session holds one surface's synthesis draft. At most one draft exists at
// a time; it is either confirmed or discarded, never replaced silently.
type Session struct {
	engine *Engine
	logger *slog.Logger

	mu    sync.Mutex
	state State
	draft Draft
	gen   uint64
}

// NewSession returns an idle session. engine may be nil when only Join is used.
func NewSession(engine *Engine, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{engine: engine, logger: logger}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loading reports whether an AI Refine call is in flight.
func (s *Session) Loading() bool {
	return s.State() == StatePending
}

// Draft returns a copy of the current draft. ok is false unless the session
// is ready.
func (s *Session) Draft() (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return Draft{}, false
	}
	return cloneDraft(s.draft), true
}

func (s *Session) busy() error {
	switch s.state {
	case StatePending:
		return errors.NewConflict("a synthesis is already in progress")
	case StateReady:
		return errors.NewConflict("an unconfirmed synthesis draft exists; confirm or discard it first")
	}
	return nil
}

// Join renders the items through tmpl and holds the result as the draft.
func (s *Session) Join(items []clip.Item, tmpl settings.Template) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.busy(); err != nil {
		return Draft{}, err
	}

	text, err := Join(items, tmpl)
	if err != nil {
		return Draft{}, err
	}
	s.gen++
	s.state = StateReady
	s.draft = Draft{
		Strategy:     StrategyJoin,
		Text:         text,
		SourceIDs:    clip.IDs(items),
		TemplateUsed: tmpl.ID,
		Title:        fmt.Sprintf("Joined %d clips (%s)", len(items), tmpl.Name),
	}
	return cloneDraft(s.draft), nil
}

// Refine runs AI Refine and holds the result as the draft. The session is
// pending while the call runs. If the session was discarded in the
// meantime, the late result is dropped and a cancellation error returned.
func (s *Session) Refine(ctx context.Context, items []clip.Item, instr Instruction) (Draft, error) {
	gen, err := s.begin()
	if err != nil {
		return Draft{}, err
	}
	text, err := s.engine.Refine(ctx, items, instr)
	return s.finish(gen, items, instr, text, err)
}

// RefineAsync enters the pending state and returns at once; the call runs
// in the background and done, if set, receives its outcome.
func (s *Session) RefineAsync(ctx context.Context, items []clip.Item, instr Instruction, done func(Draft, error)) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	items = clip.CloneAll(items)
	go func() {
		text, err := s.engine.Refine(ctx, items, instr)
		d, err := s.finish(gen, items, instr, text, err)
		if done != nil {
			done(d, err)
		}
	}()
	return nil
}

func (s *Session) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.busy(); err != nil {
		return 0, err
	}
	if s.engine == nil {
		return 0, errors.NewSynthesis(errNotConfigured)
	}
	s.gen++
	s.state = StatePending
	return s.gen, nil
}

func (s *Session) finish(gen uint64, items []clip.Item, instr Instruction, text string, err error) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debug("dropping stale ai refine result", "instruction", instr.Name)
		return Draft{}, errors.NewCancelled("ai refine")
	}
	if err != nil {
		s.state = StateIdle
		return Draft{}, err
	}
	s.state = StateReady
	s.draft = Draft{
		Strategy:     StrategyRefine,
		Text:         text,
		SourceIDs:    clip.IDs(items),
		TemplateUsed: "ai:" + instr.Name,
		Title:        fmt.Sprintf("AI Refine of %d clips (%s)", len(items), instr.Name),
	}
	return cloneDraft(s.draft), nil
}

// Edit replaces the draft text.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return errors.NewValidation("no synthesis draft to edit")
	}
	s.draft.Text = text
	return nil
}

// Discard drops the draft, or abandons an in-flight AI Refine. Nothing is written.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = StateIdle
	s.draft = Draft{}
}

// Confirm stores the draft as a new staging clip and archives its sources in
// one write. On failure the draft is kept so the caller can retry.
func (s *Session) Confirm(ctx context.Context, repo Archiver) (clip.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return clip.Item{}, errors.NewValidation("no synthesis draft to confirm")
	}
	if strings.TrimSpace(s.draft.Text) == "" {
		return clip.Item{}, errors.NewValidation("synthesis result is empty")
	}

	item, err := clip.New(clip.NewInput{
		Type:        s.draft.Strategy.ClipType(),
		Content:     s.draft.Text,
		SourceTitle: s.draft.Title,
	})
	if err != nil {
		return clip.Item{}, errors.NewInternal(err)
	}
	item.IsSynthesized = true
	item.ParentIDs = append([]string{}, s.draft.SourceIDs...)
	item.TemplateUsed = s.draft.TemplateUsed

	if err := repo.SynthesizeAndArchive(ctx, item, s.draft.SourceIDs); err != nil {
		s.logger.Warn("synthesis confirm failed; draft kept", "error", err)
		return clip.Item{}, err
	}

	s.gen++
	s.state = StateIdle
	s.draft = Draft{}
	return item, nil
}

func cloneDraft(d Draft) Draft {
	d.SourceIDs = append([]string(nil), d.SourceIDs...)
	return d
}
