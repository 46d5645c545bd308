package synth

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/settings"
)

// Generator is the text-generation collaborator. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, instruction, content string) (string, error)
}

// Instruction is what AI Refine asks the collaborator to do: a preset
// prompt or a custom text.
type Instruction struct {
	// Name is the preset prompt id, or "custom".
	Name string
	Text string
}

// Preset builds an instruction from a stored prompt.
func Preset(p settings.Prompt) Instruction {
	return Instruction{Name: p.ID, Text: p.Prompt}
}

// Custom builds an instruction from user text.
func Custom(text string) Instruction {
	return Instruction{Name: "custom", Text: text}
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// RequestsPerMinute throttles Refine. 0 disables throttling.
	RequestsPerMinute int

	// Timeout bounds one Refine call. 0 means no extra bound.
	Timeout time.Duration

	Logger *slog.Logger
}

// Engine runs AI Refine against a Generator.
type Engine struct {
	gen     Generator
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine returns an engine. gen may be nil when no credentials are
// configured; Refine then fails with SYNTHESIS_ERROR.
func NewEngine(gen Generator, opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return &Engine{gen: gen, limiter: limiter, timeout: opts.Timeout, logger: logger}
}

var errNotConfigured = stderrors.New("text generation is not configured (set openai_api_key)")

// Refine asks the collaborator to transform the items according to instr
// and returns its text verbatim. Invalid input is rejected before the
// collaborator is called.
func (e *Engine) Refine(ctx context.Context, items []clip.Item, instr Instruction) (string, error) {
	if len(items) == 0 {
		return "", errors.NewValidation("nothing to synthesize: no clips selected")
	}
	if strings.TrimSpace(instr.Text) == "" {
		return "", errors.NewValidation("instruction is empty")
	}
	if e.gen == nil {
		return "", errors.NewSynthesis(errNotConfigured)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", errors.NewCancelled("ai refine")
		}
		return "", errors.NewSynthesis(err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := e.gen.Generate(ctx, instr.Text, BuildContext(items))
	if err != nil {
		e.logger.Warn("ai refine failed", "instruction", instr.Name, "error", err)
		return "", errors.NewSynthesis(err)
	}
	e.logger.Debug("ai refine done", "instruction", instr.Name, "items", len(items), "elapsed", time.Since(started))
	return text, nil
}
