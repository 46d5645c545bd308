package capture

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/notify"
)

// Repository is where captured clips go. *ops.Repository satisfies it.
type Repository interface {
	// AddUnique stores item unless a staged clip with the same source URL
	// and content exists, in which case that clip is returned instead.
	AddUnique(ctx context.Context, item clip.Item) (clip.Item, bool, error)
}

// Switch reports whether capturing is turned on. *settings.Settings satisfies it.
type Switch interface {
	ExtensionEnabled(ctx context.Context) (bool, error)
}

// Options configures a Producer. Every field is optional.
type Options struct {
	Switch   Switch
	Relay    *notify.Relay
	Adapters []Adapter
	Logger   *slog.Logger
}

// Producer builds clips from captured material and adds them to the
// repository.
type Producer struct {
	repo      Repository
	extractor *Extractor
	sw        Switch
	relay     *notify.Relay
	adapters  []Adapter
	logger    *slog.Logger
}

// NewProducer returns a producer. A nil Adapters list means DefaultAdapters.
func NewProducer(repo Repository, extractor *Extractor, opts Options) *Producer {
	if extractor == nil {
		extractor = NewExtractor()
	}
	adapters := opts.Adapters
	if adapters == nil {
		adapters = DefaultAdapters()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		repo:      repo,
		extractor: extractor,
		sw:        opts.Switch,
		relay:     opts.Relay,
		adapters:  adapters,
		logger:    logger,
	}
}

// Result is the outcome of a capture.
type Result struct {
	Clip clip.Item `json:"clip"`

	// Duplicate is true when an identical staged clip already existed; it is
	// returned instead and nothing is written.
	Duplicate bool `json:"duplicate"`

	// Notified is true when the side panel received clip_added.
	Notified bool `json:"notified"`
}

// SelectionInput is a user selection on a page.
type SelectionInput struct {
	// HTML of the selected range. Text is used when HTML is empty.
	HTML string `json:"html"`
	Text string `json:"text,omitempty"`

	// Type defaults to text. Use code for a code selection.
	Type clip.Type `json:"type,omitempty"`

	URL     string `json:"url"`
	Title   string `json:"title"`
	Favicon string `json:"favicon,omitempty"`
}

// CaptureSelection converts a selection to Markdown and stages it.
func (p *Producer) CaptureSelection(ctx context.Context, in SelectionInput) (*Result, error) {
	if err := p.checkEnabled(ctx); err != nil {
		return nil, err
	}

	typ := in.Type
	if typ == "" {
		typ = clip.TypeText
	}
	if typ != clip.TypeText && typ != clip.TypeCode {
		return nil, errors.NewValidation("selection type must be text or code")
	}

	content := in.Text
	var raw string
	if strings.TrimSpace(in.HTML) != "" {
		md, err := p.extractor.Markdown(in.HTML, in.URL)
		if err != nil {
			return nil, errors.NewCapture("could not convert selection: " + err.Error())
		}
		content = md
		raw = p.extractor.Sanitize(in.HTML)
	}

	return p.save(ctx, clip.NewInput{
		Type:        typ,
		Content:     content,
		RawHTML:     raw,
		SourceURL:   in.URL,
		SourceTitle: in.Title,
		Favicon:     in.Favicon,
	})
}

// PageInput is a whole document.
type PageInput struct {
	HTML    string `json:"html"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Favicon string `json:"favicon,omitempty"`
}

// CapturePage extracts the readable part of a page and stages it.
func (p *Producer) CapturePage(ctx context.Context, in PageInput) (*Result, error) {
	if err := p.checkEnabled(ctx); err != nil {
		return nil, err
	}

	page, err := p.extractor.Page(in.HTML, in.URL)
	if err != nil {
		return nil, errors.NewCapture("failed to parse page content: " + err.Error())
	}

	title := page.Title
	if title == "" {
		title = in.Title
	}
	favicon := in.Favicon
	if favicon == "" {
		favicon = page.Favicon
	}

	return p.save(ctx, clip.NewInput{
		Type:        clip.TypePageContent,
		Content:     page.Content,
		SourceURL:   in.URL,
		SourceTitle: title,
		Favicon:     favicon,
	})
}

// AdapterFor returns the first adapter matching url.
func (p *Producer) AdapterFor(url string) (Adapter, bool) {
	for _, a := range p.adapters {
		if a.Match(url) {
			return a, true
		}
	}
	return nil, false
}

// CaptureAdapter captures an assistant reply through the site adapter that
// matches the payload URL.
func (p *Producer) CaptureAdapter(ctx context.Context, payload Payload) (*Result, error) {
	if err := p.checkEnabled(ctx); err != nil {
		return nil, err
	}

	a, ok := p.AdapterFor(payload.URL)
	if !ok {
		return nil, errors.NewCapture("no site adapter for " + payload.URL)
	}
	input, err := a.Capture(p.extractor, payload)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("adapter capture", "adapter", a.Name(), "url", payload.URL)
	return p.save(ctx, input)
}

func (p *Producer) checkEnabled(ctx context.Context) error {
	if p.sw == nil {
		return nil
	}
	enabled, err := p.sw.ExtensionEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return errors.NewCapture("capture is disabled")
	}
	return nil
}

func (p *Producer) save(ctx context.Context, input clip.NewInput) (*Result, error) {
	input.Content = strings.TrimSpace(input.Content)
	if input.Content == "" {
		return nil, errors.NewCapture("nothing to capture: extracted content is empty")
	}

	item, err := clip.New(input)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	stored, added, err := p.repo.AddUnique(ctx, item)
	if err != nil {
		return nil, err
	}
	if !added {
		p.logger.Debug("duplicate capture", "id", stored.ID, "url", stored.Metadata.SourceURL)
		return &Result{Clip: stored, Duplicate: true}, nil
	}

	res := &Result{Clip: item}
	if p.relay != nil {
		res.Notified = p.relay.ClipAdded(ctx, item)
	}
	p.logger.Info("clip captured", "id", item.ID, "type", item.Type, "tokens", item.TokenEstimate)
	return res, nil
}
