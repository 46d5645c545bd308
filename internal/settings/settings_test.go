package settings

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/store"
)

func newTestSettings(t *testing.T) (*Settings, *store.Handle) {
	t.Helper()
	hub := store.NewHub(store.NewMemoryBackend(), nil)
	t.Cleanup(func() { hub.Close() })
	h := hub.Open("settings")
	return New(h), h
}

func TestTemplates_SeedsDefaults(t *testing.T) {
	s, h := newTestSettings(t)
	ctx := context.Background()

	templates, err := s.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, DefaultTemplateID, templates[0].ID)
	assert.Equal(t, "qa", templates[1].ID)

	var stored []Template
	found, err := h.Value(ctx, store.KeyTemplates, &stored)
	require.NoError(t, err)
	assert.True(t, found, "defaults are written back")
}

func TestTemplate_Lookup(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()

	first, err := s.Template(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplateID, first.ID)

	qa, err := s.Template(ctx, "qa")
	require.NoError(t, err)
	assert.Equal(t, "Q&A Format", qa.Name)

	_, err = s.Template(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAddRemoveTemplate(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()

	added, err := s.AddTemplate(ctx, " Brief ", "{{content}}")
	require.NoError(t, err)
	assert.Equal(t, "Brief", added.Name)
	assert.NotEmpty(t, added.ID)

	_, err = s.AddTemplate(ctx, "", "x")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	require.NoError(t, s.RemoveTemplate(ctx, added.ID))
	assert.True(t, errors.Is(s.RemoveTemplate(ctx, added.ID), errors.ErrNotFound))
	assert.True(t, errors.Is(s.RemoveTemplate(ctx, DefaultTemplateID), errors.ErrValidation))

	templates, err := s.Templates(ctx)
	require.NoError(t, err)
	assert.Len(t, templates, 2)
}

func TestPrompts_Defaults(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()

	prompts, err := s.Prompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 3)
	assert.True(t, prompts[0].IsDefault)
	assert.False(t, prompts[2].IsDefault)

	p, err := s.Prompt(ctx, "extract-key-points")
	require.NoError(t, err)
	assert.Contains(t, p.Prompt, "markdown list")

	require.NoError(t, s.SavePrompts(ctx, []Prompt{{ID: "mine", Name: "Mine", Prompt: "Do it"}}))
	prompts, err = s.Prompts(ctx)
	require.NoError(t, err)
	assert.Len(t, prompts, 1)

	assert.True(t, errors.Is(s.SavePrompts(ctx, []Prompt{{ID: "x"}}), errors.ErrValidation))
}

func TestAddRemovePrompt(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()

	p, err := s.AddPrompt(ctx, " Translate ", "Translate to French.")
	require.NoError(t, err)
	assert.Equal(t, "Translate", p.Name)

	prompts, err := s.Prompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 4)
	assert.Equal(t, p.ID, prompts[3].ID)

	_, err = s.AddPrompt(ctx, "Empty", "  ")
	assert.True(t, errors.Is(err, errors.ErrValidation))
	_, err = s.AddPrompt(ctx, "", "text")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	require.NoError(t, s.RemovePrompt(ctx, p.ID))
	assert.True(t, errors.Is(s.RemovePrompt(ctx, p.ID), errors.ErrNotFound))

	for _, d := range DefaultPrompts() {
		require.NoError(t, s.RemovePrompt(ctx, d.ID))
	}
	prompts, err = s.Prompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), prompts)
}

func TestFlagsAndCredentials(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()

	enabled, err := s.ExtensionEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled, "absent flag means enabled")

	require.NoError(t, s.Set(ctx, store.KeyExtensionEnabled, "false"))
	enabled, err = s.ExtensionEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	done, err := s.Get(ctx, store.KeyOnboardingComplete)
	require.NoError(t, err)
	assert.Equal(t, "false", done)

	require.NoError(t, s.Set(ctx, store.KeyOpenAIAPIKey, "sk-abcdef1234"))
	require.NoError(t, s.Set(ctx, store.KeyOpenAIModel, "gpt-4o-mini"))

	o, err := s.OpenAI(ctx)
	require.NoError(t, err)
	assert.True(t, o.Configured())
	assert.Equal(t, "gpt-4o-mini", o.LLMConfig().Model)

	masked, err := s.Get(ctx, store.KeyOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "****1234", masked)

	assert.True(t, errors.Is(s.Set(ctx, "theme", "dark"), errors.ErrValidation))
	assert.True(t, errors.Is(s.Set(ctx, store.KeyOnboardingComplete, "maybe"), errors.ErrValidation))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****wxyz", MaskSecret("sk-wxyz"))
}

func TestImportTemplates(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()

	pack := `
templates:
  - id: qa
    name: Q&A v2
    content: "Q: {{source_title}}\nA: {{content}}"
  - name: Brief
    content: "**{{source_title}}**: {{content}}"
`
	result, err := s.ImportTemplates(ctx, strings.NewReader(pack))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Updated)

	templates, err := s.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 3)
	assert.Equal(t, "Q&A v2", templates[1].Name)
	assert.Equal(t, "Brief", templates[2].Name)
}

func TestImportTemplates_Invalid(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()

	tests := map[string]string{
		"empty":         ``,
		"unknown field": "templates:\n  - name: a\n    content: b\n    colour: red\n",
		"missing body":  "templates:\n  - name: a\n",
		"not yaml":      "templates: [",
	}
	for name, pack := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.ImportTemplates(ctx, strings.NewReader(pack))
			assert.True(t, errors.Is(err, errors.ErrValidation), "got %v", err)
		})
	}
}
