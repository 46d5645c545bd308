// Package settings gives typed access to the non-clip records of the store:
// synthesis templates, AI prompts, text-generation credentials and flags.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/llm"
	"github.com/hpungsan/ctxbridge/internal/store"
)

// DefaultTemplateID names the built-in template that cannot be removed.
const DefaultTemplateID = "default"

// Template is a Join template. Placeholders: {{source_title}},
// {{source_url}}, {{content}}.
type Template struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
}

// Prompt is a preset AI Refine instruction.
type Prompt struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Prompt    string `json:"prompt" yaml:"prompt"`
	IsDefault bool   `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

// OpenAI holds the text-generation credentials.
type OpenAI struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Configured reports whether an API key is present.
func (o OpenAI) Configured() bool { return strings.TrimSpace(o.APIKey) != "" }

// LLMConfig converts the credentials to a client configuration.
func (o OpenAI) LLMConfig() llm.Config {
	return llm.Config{APIKey: o.APIKey, BaseURL: o.BaseURL, Model: o.Model}
}

// ValueStore is the keyed JSON access Settings needs. *store.Handle
// satisfies it.
type ValueStore interface {
	Value(ctx context.Context, key string, dst any) (bool, error)
	SetValue(ctx context.Context, key string, v any) error
}

// Settings reads and writes settings records.
type Settings struct {
	store ValueStore
}

// New wraps s.
func New(s ValueStore) *Settings {
	return &Settings{store: s}
}

// DefaultTemplates returns the templates seeded on first use.
func DefaultTemplates() []Template {
	return []Template{
		{
			ID:      DefaultTemplateID,
			Name:    "Default",
			Content: "### Source: {{source_title}}\nURL: {{source_url}}\n\n{{content}}",
		},
		{
			ID:      "qa",
			Name:    "Q&A Format",
			Content: "### Question\n(From {{source_title}})\n\n### Answer\n{{content}}",
		},
	}
}

// DefaultPrompts returns the preset AI prompts used when none are stored.
func DefaultPrompts() []Prompt {
	return []Prompt{
		{
			ID:   "summarize",
			Name: "Summarize",
			Prompt: "You are a professional content summarizer. Analyze the following text snippets derived from web pages. \n" +
				"Goal: Create a concise summary that retains all key facts, named entities, and technical details.\n" +
				"Constraints:\n" +
				"1. Merge related points logically.\n" +
				"2. Remove promotional text, ads, or irrelevant web interface text.\n" +
				"3. Output ONLY the summary without introductory or concluding filler.",
			IsDefault: true,
		},
		{
			ID:   "context-polishing",
			Name: "Context Polishing",
			Prompt: "You are a data pre-processor for an LLM knowledge base. The user has clipped the following text fragment from a website. \n" +
				"Your task is to refine this text to make it a high-quality, self-contained context block.\n" +
				"Instructions:\n" +
				"1. Clean: Remove web artifacts (e.g., \"Read more\", \"Share this\", navigation links, ads).\n" +
				"2. Repair: Fix broken sentences at the start or end of the clip.\n" +
				"3. Clarify: Resolve ambiguous pronouns (e.g., change \"he said\" to \"Elon Musk said\" if the context allows) to make the text understandable without external context.\n" +
				"4. Format: Standardize the text into clear paragraphs or bullet points where appropriate.\n" +
				"5. Do NOT change the original factual meaning or tone.\n" +
				"Output ONLY the refined text.",
			IsDefault: true,
		},
		{
			ID:        "extract-key-points",
			Name:      "Extract Key Points",
			Prompt:    "Identify and list the key takeaways, arguments, or data points from the following text. Use a markdown list format. Ignore conversational filler and web noise.",
			IsDefault: false,
		},
	}
}

// Templates returns the stored templates. On first use the defaults are
// written back so every surface sees the same ids.
func (s *Settings) Templates(ctx context.Context) ([]Template, error) {
	var templates []Template
	found, err := s.store.Value(ctx, store.KeyTemplates, &templates)
	if err != nil {
		return nil, err
	}
	if !found || len(templates) == 0 {
		templates = DefaultTemplates()
		if err := s.store.SetValue(ctx, store.KeyTemplates, templates); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

// Template returns the template with id. An empty id selects the first
// template.
func (s *Settings) Template(ctx context.Context, id string) (Template, error) {
	templates, err := s.Templates(ctx)
	if err != nil {
		return Template{}, err
	}
	if id == "" {
		return templates[0], nil
	}
	for _, t := range templates {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, errors.NewNotFound("template " + id)
}

// AddTemplate appends a new template with a generated id.
func (s *Settings) AddTemplate(ctx context.Context, name, content string) (Template, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(content) == "" {
		return Template{}, errors.NewValidation("template name and content are required")
	}
	templates, err := s.Templates(ctx)
	if err != nil {
		return Template{}, err
	}
	t := Template{ID: uuid.NewString(), Name: name, Content: content}
	templates = append(templates, t)
	if err := s.store.SetValue(ctx, store.KeyTemplates, templates); err != nil {
		return Template{}, err
	}
	return t, nil
}

// RemoveTemplate deletes a template. The default template is permanent.
func (s *Settings) RemoveTemplate(ctx context.Context, id string) error {
	if id == DefaultTemplateID {
		return errors.NewValidation("the default template cannot be removed")
	}
	templates, err := s.Templates(ctx)
	if err != nil {
		return err
	}
	kept := make([]Template, 0, len(templates))
	for _, t := range templates {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(templates) {
		return errors.NewNotFound("template " + id)
	}
	return s.store.SetValue(ctx, store.KeyTemplates, kept)
}

// Prompts returns the stored AI prompts, or the defaults when none are stored.
func (s *Settings) Prompts(ctx context.Context) ([]Prompt, error) {
	var prompts []Prompt
	found, err := s.store.Value(ctx, store.KeyAIPrompts, &prompts)
	if err != nil {
		return nil, err
	}
	if !found || len(prompts) == 0 {
		return DefaultPrompts(), nil
	}
	return prompts, nil
}

// Prompt returns the preset prompt with id.
func (s *Settings) Prompt(ctx context.Context, id string) (Prompt, error) {
	prompts, err := s.Prompts(ctx)
	if err != nil {
		return Prompt{}, err
	}
	for _, p := range prompts {
		if p.ID == id {
			return p, nil
		}
	}
	return Prompt{}, errors.NewNotFound("prompt " + id)
}

// SavePrompts replaces the stored prompt list.
func (s *Settings) SavePrompts(ctx context.Context, prompts []Prompt) error {
	for _, p := range prompts {
		if p.ID == "" || strings.TrimSpace(p.Prompt) == "" {
			return errors.NewValidation("prompt id and text are required")
		}
	}
	return s.store.SetValue(ctx, store.KeyAIPrompts, prompts)
}

// AddPrompt appends a preset prompt with a generated id.
func (s *Settings) AddPrompt(ctx context.Context, name, text string) (Prompt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Prompt{}, errors.NewValidation("prompt name is required")
	}
	prompts, err := s.Prompts(ctx)
	if err != nil {
		return Prompt{}, err
	}
	p := Prompt{ID: uuid.NewString(), Name: name, Prompt: strings.TrimSpace(text)}
	if err := s.SavePrompts(ctx, append(prompts, p)); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// RemovePrompt deletes a preset prompt. Removing the last one brings the
// defaults back.
func (s *Settings) RemovePrompt(ctx context.Context, id string) error {
	prompts, err := s.Prompts(ctx)
	if err != nil {
		return err
	}
	kept := make([]Prompt, 0, len(prompts))
	for _, p := range prompts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(prompts) {
		return errors.NewNotFound("prompt " + id)
	}
	return s.SavePrompts(ctx, kept)
}

// OpenAI returns the stored text-generation credentials.
func (s *Settings) OpenAI(ctx context.Context) (OpenAI, error) {
	var o OpenAI
	for key, dst := range map[string]*string{
		store.KeyOpenAIAPIKey:  &o.APIKey,
		store.KeyOpenAIBaseURL: &o.BaseURL,
		store.KeyOpenAIModel:   &o.Model,
	} {
		if _, err := s.store.Value(ctx, key, dst); err != nil {
			return OpenAI{}, err
		}
	}
	return o, nil
}

// ExtensionEnabled reports the capture switch. Absent means enabled.
func (s *Settings) ExtensionEnabled(ctx context.Context) (bool, error) {
	enabled := true
	if _, err := s.store.Value(ctx, store.KeyExtensionEnabled, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// keyKinds lists the keys Get and Set accept and how their values decode.
var keyKinds = map[string]string{
	store.KeyOpenAIAPIKey:       "string",
	store.KeyOpenAIBaseURL:      "string",
	store.KeyOpenAIModel:        "string",
	store.KeyExtensionEnabled:   "bool",
	store.KeyOnboardingComplete: "bool",
}

// Keys returns the scalar setting keys accepted by Get and Set.
func Keys() []string {
	return []string{
		store.KeyOpenAIAPIKey,
		store.KeyOpenAIBaseURL,
		store.KeyOpenAIModel,
		store.KeyExtensionEnabled,
		store.KeyOnboardingComplete,
	}
}

// Get returns a scalar setting as text. The API key is masked.
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	kind, ok := keyKinds[key]
	if !ok {
		return "", errors.NewValidation(fmt.Sprintf("unknown setting %q", key))
	}
	switch kind {
	case "bool":
		var v bool
		if key == store.KeyExtensionEnabled {
			v = true
		}
		if _, err := s.store.Value(ctx, key, &v); err != nil {
			return "", err
		}
		return fmt.Sprintf("%t", v), nil
	default:
		var v string
		if _, err := s.store.Value(ctx, key, &v); err != nil {
			return "", err
		}
		if key == store.KeyOpenAIAPIKey {
			return MaskSecret(v), nil
		}
		return v, nil
	}
}

// Set parses value according to the key's type and stores it.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	kind, ok := keyKinds[key]
	if !ok {
		return errors.NewValidation(fmt.Sprintf("unknown setting %q", key))
	}
	if kind == "bool" {
		var v bool
		if err := json.Unmarshal([]byte(strings.ToLower(strings.TrimSpace(value))), &v); err != nil {
			return errors.NewValidation(fmt.Sprintf("%s must be true or false", key))
		}
		return s.store.SetValue(ctx, key, v)
	}
	return s.store.SetValue(ctx, key, strings.TrimSpace(value))
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
