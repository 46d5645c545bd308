package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/llm"
	"github.com/hpungsan/ctxbridge/internal/settings"
)

// Source is the clip view synthesis reads from. *ops.Repository satisfies it.
type Source interface {
	Staging() []clip.Item
	Find(ids []string) []clip.Item
}

// Store is a Source that can also persist a confirmed result.
type Store interface {
	Source
	Archiver
}

// Library resolves templates and preset prompts. *settings.Settings satisfies it.
type Library interface {
	Template(ctx context.Context, id string) (settings.Template, error)
	Prompt(ctx context.Context, id string) (settings.Prompt, error)
}

// Select returns the staged clips named by ids, in that order. Empty ids
// selects every staged clip.
func Select(src Source, ids []string) ([]clip.Item, error) {
	if len(ids) == 0 {
		items := src.Staging()
		if len(items) == 0 {
			return nil, errors.NewValidation("nothing to synthesize: staging is empty")
		}
		return items, nil
	}
	if dups := clip.DuplicateIDs(idItems(ids)); len(dups) > 0 {
		return nil, errors.NewValidation(fmt.Sprintf("duplicate clip id %s", dups[0]))
	}

	items := src.Find(ids)
	if len(items) != len(ids) {
		found := make(map[string]bool, len(items))
		for _, it := range items {
			found[it.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, errors.NewNotFound(id)
			}
		}
	}
	for _, it := range items {
		if it.Status != clip.StatusStaging {
			return nil, errors.NewValidation(fmt.Sprintf("clip %s is %s, not staging", it.ID, it.Status))
		}
	}
	return items, nil
}

func idItems(ids []string) []clip.Item {
	items := make([]clip.Item, len(ids))
	for i, id := range ids {
		items[i] = clip.Item{ID: id}
	}
	return items
}

// Request describes one synthesis from a request/response surface.
type Request struct {
	Strategy Strategy `json:"strategy"`
	IDs      []string `json:"ids,omitempty"`

	// TemplateID selects the Join template. Empty means the first template.
	TemplateID string `json:"template_id,omitempty"`

	// PromptID selects a preset prompt; Instruction, when set, wins over it.
	PromptID    string `json:"prompt_id,omitempty"`
	Instruction string `json:"instruction,omitempty"`

	// Confirm stores the result and archives its sources. Without it the
	// draft is only returned.
	Confirm bool `json:"confirm,omitempty"`
}

// Outcome is the result of Run.
type Outcome struct {
	Draft     Draft      `json:"draft"`
	Confirmed bool       `json:"confirmed"`
	Clip      *clip.Item `json:"clip,omitempty"`
}

// Run produces a draft in sess and confirms it when asked.
func Run(ctx context.Context, sess *Session, lib Library, repo Store, req Request) (*Outcome, error) {
	items, err := Select(repo, req.IDs)
	if err != nil {
		return nil, err
	}

	var draft Draft
	switch req.Strategy {
	case StrategyJoin, "":
		tmpl, err := lib.Template(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		draft, err = sess.Join(items, tmpl)
		if err != nil {
			return nil, err
		}
	case StrategyRefine:
		instr, err := ResolveInstruction(ctx, lib, req.PromptID, req.Instruction)
		if err != nil {
			return nil, err
		}
		draft, err = sess.Refine(ctx, items, instr)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewValidation(fmt.Sprintf("unknown strategy %q (use join or ai_refine)", req.Strategy))
	}

	out := &Outcome{Draft: draft}
	if !req.Confirm {
		return out, nil
	}
	item, err := sess.Confirm(ctx, repo)
	if err != nil {
		return nil, err
	}
	out.Confirmed = true
	out.Clip = &item
	return out, nil
}

// ResolveInstruction picks the custom instruction when given, else the
// preset prompt.
func ResolveInstruction(ctx context.Context, lib Library, promptID, custom string) (Instruction, error) {
	if custom != "" || promptID == "" {
		return Custom(custom), nil
	}
	p, err := lib.Prompt(ctx, promptID)
	if err != nil {
		return Instruction{}, err
	}
	return Preset(p), nil
}

// Credentials loads the text-generation settings. *settings.Settings satisfies it.
type Credentials interface {
	OpenAI(ctx context.Context) (settings.OpenAI, error)
}

// SettingsGenerator reads the credentials on every call, so a key set by
// another surface takes effect without a restart.
type SettingsGenerator struct {
	Credentials Credentials
	Timeout     time.Duration
}

func (g SettingsGenerator) Generate(ctx context.Context, instruction, content string) (string, error) {
	o, err := g.Credentials.OpenAI(ctx)
	if err != nil {
		return "", err
	}
	if !o.Configured() {
		return "", errNotConfigured
	}
	cfg := o.LLMConfig()
	cfg.Timeout = g.Timeout
	client, err := llm.New(cfg)
	if err != nil {
		return "", err
	}
	return client.Generate(ctx, instruction, content)
}
