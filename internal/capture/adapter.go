package capture

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// Payload is the material a content surface hands to a site adapter: the
// page address and title plus the HTML of the conversation (or any part of
// it containing the wanted reply).
type Payload struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	HTML    string `json:"html"`
	Favicon string `json:"favicon,omitempty"`
}

// Adapter captures assistant replies on one chat site.
type Adapter interface {
	Name() string
	Match(url string) bool

	// Capture picks the most recent assistant reply in p.HTML.
	Capture(ex *Extractor, p Payload) (clip.NewInput, error)
}

// DefaultAdapters returns the built-in site adapters.
func DefaultAdapters() []Adapter {
	return []Adapter{ChatGPT{}, Claude{}}
}

// ChatGPT reads replies from chatgpt.com and chat.openai.com.
type ChatGPT struct{}

func (ChatGPT) Name() string { return "ChatGPT" }

func (ChatGPT) Match(url string) bool {
	return strings.Contains(url, "chatgpt.com") || strings.Contains(url, "chat.openai.com")
}

func (a ChatGPT) Capture(ex *Extractor, p Payload) (clip.NewInput, error) {
	doc, err := html.Parse(strings.NewReader(p.HTML))
	if err != nil {
		return clip.NewInput{}, errors.NewCapture("could not parse conversation: " + err.Error())
	}

	messages := findAll(doc, func(n *html.Node) bool {
		return attr(n, "data-message-author-role") == "assistant"
	})
	var body *html.Node
	for i := len(messages) - 1; i >= 0 && body == nil; i-- {
		body = first(messages[i], func(n *html.Node) bool { return hasClass(n, "markdown") })
	}
	if body == nil {
		return clip.NewInput{}, errors.NewCapture("no assistant reply found on " + a.Name())
	}
	return replyInput(ex, body, p, p.Title)
}

// Claude reads replies from claude.ai.
type Claude struct{}

func (Claude) Name() string { return "Claude" }

func (Claude) Match(url string) bool {
	return strings.Contains(url, "claude.ai")
}

func (a Claude) Capture(ex *Extractor, p Payload) (clip.NewInput, error) {
	doc, err := html.Parse(strings.NewReader(p.HTML))
	if err != nil {
		return clip.NewInput{}, errors.NewCapture("could not parse conversation: " + err.Error())
	}

	body := last(findAll(doc, func(n *html.Node) bool { return hasClass(n, "font-claude-message") }))
	if body == nil {
		body = last(findAll(doc, func(n *html.Node) bool { return hasClass(n, "whitespace-pre-wrap") }))
	}
	if body == nil {
		return clip.NewInput{}, errors.NewCapture("no assistant reply found on " + a.Name())
	}

	title := p.Title
	if title == "" {
		title = "Claude Chat"
	}
	return replyInput(ex, body, p, title)
}

func last(nodes []*html.Node) *html.Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[len(nodes)-1]
}

func replyInput(ex *Extractor, body *html.Node, p Payload, title string) (clip.NewInput, error) {
	fragment, err := innerHTML(body)
	if err != nil {
		return clip.NewInput{}, errors.NewCapture("could not read reply: " + err.Error())
	}
	content, err := ex.Markdown(fragment, p.URL)
	if err != nil {
		return clip.NewInput{}, errors.NewCapture("could not convert reply: " + err.Error())
	}
	return clip.NewInput{
		Type:        clip.TypeAIResponse,
		Content:     content,
		RawHTML:     ex.Sanitize(fragment),
		SourceURL:   p.URL,
		SourceTitle: title,
		Favicon:     p.Favicon,
	}, nil
}
