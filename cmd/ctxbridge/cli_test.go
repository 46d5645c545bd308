package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ctxbridge/internal/capture"
	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/config"
	"github.com/hpungsan/ctxbridge/internal/ops"
	"github.com/hpungsan/ctxbridge/internal/settings"
	"github.com/hpungsan/ctxbridge/internal/synth"
)

// setupServices opens services on an in-memory store.
func setupServices(t *testing.T) *services {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StoreBackend = config.BackendMemory
	logger, level := newLogger(cfg, io.Discard)

	svc, err := openServices(context.Background(), t.TempDir(), "cli-test", cfg, logger, level)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

// runCLI runs args with stdin (when non-empty) piped in and returns stdout.
func runCLI(t *testing.T, svc *services, stdin string, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	if stdin != "" {
		oldStdin := os.Stdin
		stdinR, stdinW, err := os.Pipe()
		require.NoError(t, err)
		os.Stdin = stdinR
		go func() {
			_, _ = stdinW.WriteString(stdin)
			stdinW.Close()
		}()
		defer func() { os.Stdin = oldStdin }()
	}

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	runErr := newCLIApp(svc).Run(append([]string{"ctxbridge"}, args...))

	w.Close()
	out := <-done
	os.Stdout = oldStdout
	return out, runErr
}

func seed(t *testing.T, svc *services, content string) clip.Item {
	t.Helper()
	it, err := clip.New(clip.NewInput{
		Content:     content,
		SourceURL:   "https://example.com/" + content,
		SourceTitle: "Title " + content,
	})
	require.NoError(t, err)
	require.NoError(t, svc.repo.Add(context.Background(), it))
	return it
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single", "a", []string{"a"}},
		{"multiple", "a,b,c", []string{"a", "b", "c"}},
		{"spaces", " a , b ", []string{"a", "b"}},
		{"empty entries filtered", "a,,b,", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseList(tt.input))
		})
	}
}

func TestCLICapture(t *testing.T) {
	svc := setupServices(t)

	out, err := runCLI(t, svc, "func main() {}", "capture", "--type=code", "--url=https://go.dev/play", "--title=Playground")
	require.NoError(t, err)

	var res capture.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, clip.TypeCode, res.Clip.Type)
	assert.Equal(t, "func main() {}", res.Clip.Content)
	assert.Equal(t, "Playground", res.Clip.Metadata.SourceTitle)
	assert.Len(t, svc.repo.Staging(), 1)
}

func TestCLICapture_HTMLAndPage(t *testing.T) {
	svc := setupServices(t)

	out, err := runCLI(t, svc, "<p>Use <strong>defer</strong></p>", "capture", "--html", "--url=https://go.dev/a")
	require.NoError(t, err)
	var res capture.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Use **defer**", res.Clip.Content)
	assert.NotEmpty(t, res.Clip.RawHTML)

	page := `<html><head><title>Effective Go</title></head><body><nav>skip</nav><main><p>Formatting matters</p></main></body></html>`
	out, err = runCLI(t, svc, page, "capture", "--mode=page", "--url=https://go.dev/doc/effective_go")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, clip.TypePageContent, res.Clip.Type)
	assert.Equal(t, "Effective Go", res.Clip.Metadata.SourceTitle)
	assert.Equal(t, "Formatting matters", res.Clip.Content)
}

func TestCLICapture_Disabled(t *testing.T) {
	svc := setupServices(t)
	require.NoError(t, svc.settings.Set(context.Background(), "extensionEnabled", "false"))

	_, err := runCLI(t, svc, "text", "capture")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[CAPTURE_ERROR]")
	assert.Empty(t, svc.repo.Clips())
}

func TestCLIList(t *testing.T) {
	svc := setupServices(t)
	for _, c := range []string{"a", "b", "c"} {
		seed(t, svc, c)
	}

	out, err := runCLI(t, svc, "", "list", "--limit=2")
	require.NoError(t, err)

	var output ops.ListOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	assert.Len(t, output.Items, 2)
	assert.Equal(t, 3, output.Pagination.Total)
	assert.True(t, output.Pagination.HasMore)
}

func TestCLIShow(t *testing.T) {
	svc := setupServices(t)
	it := seed(t, svc, "full body")

	out, err := runCLI(t, svc, "", "show", it.ID)
	require.NoError(t, err)
	var got clip.Item
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "full body", got.Content)

	out, err = runCLI(t, svc, "", "show", "--raw", it.ID)
	require.NoError(t, err)
	assert.Equal(t, "full body\n", out)
}

func TestCLIEdit(t *testing.T) {
	svc := setupServices(t)
	it := seed(t, svc, "before")

	_, err := runCLI(t, svc, "after", "edit", it.ID)
	require.NoError(t, err)

	got, err := svc.repo.Get(it.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Content)
}

func TestCLIDeleteArchiveRestore(t *testing.T) {
	svc := setupServices(t)
	a := seed(t, svc, "a")
	b := seed(t, svc, "b")
	c := seed(t, svc, "c")

	out, err := runCLI(t, svc, "", "archive", a.ID+","+b.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"archived":2}`, out)
	assert.Len(t, svc.repo.Archived(), 2)

	_, err = runCLI(t, svc, "", "restore", a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, a.ID}, clip.IDs(svc.repo.Staging()))

	out, err = runCLI(t, svc, "", "delete", a.ID, b.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":2}`, out)
	assert.Equal(t, []string{c.ID}, clip.IDs(svc.repo.Clips()))
}

func TestCLIReorder(t *testing.T) {
	svc := setupServices(t)
	a := seed(t, svc, "a")
	b := seed(t, svc, "b")

	out, err := runCLI(t, svc, "", "reorder", a.ID, b.ID)
	require.NoError(t, err)

	var got map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{a.ID, b.ID}, got["staging"])
}

func TestCLIClear(t *testing.T) {
	svc := setupServices(t)
	seed(t, svc, "a")

	_, err := runCLI(t, svc, "", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[VALIDATION_ERROR]")
	assert.Len(t, svc.repo.Clips(), 1)

	out, err := runCLI(t, svc, "", "clear", "--force")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":1}`, out)
	assert.Empty(t, svc.repo.Clips())
}

func TestCLISynthesize(t *testing.T) {
	svc := setupServices(t)
	a := seed(t, svc, "a")
	b := seed(t, svc, "b")

	t.Run("preview writes nothing", func(t *testing.T) {
		out, err := runCLI(t, svc, "", "synthesize", "--ids="+a.ID+","+b.ID)
		require.NoError(t, err)

		var outcome synth.Outcome
		require.NoError(t, json.Unmarshal([]byte(out), &outcome))
		assert.False(t, outcome.Confirmed)
		assert.Equal(t, synth.StrategyJoin, outcome.Draft.Strategy)
		assert.Contains(t, outcome.Draft.Text, "Title a")
		assert.Len(t, svc.repo.Staging(), 2)
	})

	t.Run("confirm archives sources", func(t *testing.T) {
		out, err := runCLI(t, svc, "", "synthesize", "--template=qa", "--confirm")
		require.NoError(t, err)

		var outcome synth.Outcome
		require.NoError(t, json.Unmarshal([]byte(out), &outcome))
		require.True(t, outcome.Confirmed)
		require.NotNil(t, outcome.Clip)
		assert.Equal(t, "qa", outcome.Clip.TemplateUsed)
		assert.Equal(t, []string{outcome.Clip.ID}, clip.IDs(svc.repo.Staging()))
		assert.Len(t, svc.repo.Archived(), 2)
	})

	t.Run("ai refine without a key", func(t *testing.T) {
		_, err := runCLI(t, svc, "", "synthesize", "--strategy=ai_refine", "--prompt=summarize")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "[SYNTHESIS_ERROR]")
	})
}

func TestCLIExport(t *testing.T) {
	svc := setupServices(t)
	seed(t, svc, "exported")

	out, err := runCLI(t, svc, "", "export", "--status=staging")
	require.NoError(t, err)

	var output ops.ExportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	assert.Equal(t, 1, output.Count)
	assert.Equal(t, ops.ExportsDir(svc.baseDir), filepath.Dir(output.Path))

	data, err := os.ReadFile(output.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "exported")
}

func TestCLITemplates(t *testing.T) {
	svc := setupServices(t)

	out, err := runCLI(t, svc, "**{{source_title}}**\n{{content}}", "templates", "add", "--name=Bold")
	require.NoError(t, err)
	var added settings.Template
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "Bold", added.Name)
	assert.NotEmpty(t, added.ID)

	out, err = runCLI(t, svc, "", "templates", "list")
	require.NoError(t, err)
	var templates []settings.Template
	require.NoError(t, json.Unmarshal([]byte(out), &templates))
	assert.Len(t, templates, len(settings.DefaultTemplates())+1)

	_, err = runCLI(t, svc, "", "templates", "remove", added.ID)
	require.NoError(t, err)

	_, err = runCLI(t, svc, "", "templates", "remove", settings.DefaultTemplateID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[VALIDATION_ERROR]")
}

func TestCLITemplatesImport(t *testing.T) {
	svc := setupServices(t)
	dir := ops.ExportsDir(svc.baseDir)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	path := filepath.Join(dir, "pack.yaml")
	pack := "templates:\n  - id: brief\n    name: Brief\n    content: \"{{content}}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(pack), 0o600))

	out, err := runCLI(t, svc, "", "templates", "import", "--path="+path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"added":1,"updated":0}`, out)

	_, err = runCLI(t, svc, "", "templates", "import", "--path=/etc/../etc/passwd.yaml")
	require.Error(t, err)
}

func TestCLISettings(t *testing.T) {
	svc := setupServices(t)

	out, err := runCLI(t, svc, "", "settings", "set", "openai_api_key", "sk-test-123456")
	require.NoError(t, err)
	assert.JSONEq(t, `{"openai_api_key":"****3456"}`, out)

	out, err = runCLI(t, svc, "", "settings", "get", "extensionEnabled")
	require.NoError(t, err)
	assert.JSONEq(t, `{"extensionEnabled":"true"}`, out)

	out, err = runCLI(t, svc, "", "settings", "list")
	require.NoError(t, err)
	var all map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.Len(t, all, len(settings.Keys()))

	_, err = runCLI(t, svc, "", "settings", "set", "nope", "1")
	require.Error(t, err)
}

func TestCLIPrompts(t *testing.T) {
	svc := setupServices(t)

	out, err := runCLI(t, svc, "", "prompts")
	require.NoError(t, err)
	var prompts []settings.Prompt
	require.NoError(t, json.Unmarshal([]byte(out), &prompts))
	assert.Len(t, prompts, len(settings.DefaultPrompts()))

	out, err = runCLI(t, svc, "Rewrite as a changelog entry.", "prompts", "add", "--name=Changelog")
	require.NoError(t, err)
	var added settings.Prompt
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "Rewrite as a changelog entry.", added.Prompt)

	p, err := svc.settings.Prompt(context.Background(), added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changelog", p.Name)

	_, err = runCLI(t, svc, "", "prompts", "remove", added.ID)
	require.NoError(t, err)
	_, err = runCLI(t, svc, "", "prompts", "remove", added.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[NOT_FOUND]")
}

func TestCLIErrorHandling(t *testing.T) {
	svc := setupServices(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"show missing", []string{"show", "missing"}, "[NOT_FOUND]"},
		{"show without id", []string{"show"}, "[VALIDATION_ERROR]"},
		{"archive without ids", []string{"archive"}, "[VALIDATION_ERROR]"},
		{"restore missing", []string{"restore", "missing"}, "[NOT_FOUND]"},
		{"bad list status", []string{"list", "--status=gone"}, "[VALIDATION_ERROR]"},
		{"bad strategy", []string{"synthesize", "--strategy=merge"}, "[VALIDATION_ERROR]"},
	}
	seed(t, svc, "x")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, svc, "", tt.args...)
			require.Error(t, err)
			assert.True(t, strings.HasPrefix(err.Error(), tt.want), err.Error())
		})
	}
}

func TestNewChangeLine(t *testing.T) {
	a, err := clip.New(clip.NewInput{Content: "aaaa"})
	require.NoError(t, err)
	b, err := clip.New(clip.NewInput{Content: "bbbb"})
	require.NoError(t, err)
	b.Status = clip.StatusArchived

	line := newChangeLine([]clip.Item{a, b})
	assert.Equal(t, []string{a.ID}, line.Staging)
	assert.Equal(t, 1, line.Archived)
	assert.Equal(t, a.TokenEstimate, line.Tokens)
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"ctxbridge"}, false},
		{"capture", []string{"ctxbridge", "capture"}, true},
		{"synthesize", []string{"ctxbridge", "synthesize"}, true},
		{"serve", []string{"ctxbridge", "serve"}, true},
		{"help flag", []string{"ctxbridge", "--help"}, true},
		{"verbose flag", []string{"ctxbridge", "--verbose", "list"}, true},
		{"unknown", []string{"ctxbridge", "frobnicate"}, false},
	}

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			assert.Equal(t, tt.expected, isCLIMode())
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	for _, arg := range []string{"--help", "-h", "--version", "-v", "help"} {
		os.Args = []string{"ctxbridge", arg}
		assert.True(t, isHelpOrVersion(), arg)
	}
	os.Args = []string{"ctxbridge", "list"}
	assert.False(t, isHelpOrVersion())
}

func TestReadStdinWithLimit(t *testing.T) {
	pipe := func(t *testing.T, content string) {
		t.Helper()
		r, w, err := os.Pipe()
		require.NoError(t, err)
		go func() {
			_, _ = w.WriteString(content)
			w.Close()
		}()
		oldStdin := os.Stdin
		os.Stdin = r
		t.Cleanup(func() { os.Stdin = oldStdin })
	}

	t.Run("within limit", func(t *testing.T) {
		pipe(t, "  small content \n")
		got, err := readStdin(1000)
		require.NoError(t, err)
		assert.Equal(t, "small content", got)
	})

	t.Run("exceeds limit", func(t *testing.T) {
		pipe(t, strings.Repeat("x", 100))
		_, err := readStdin(50)
		require.Error(t, err)
	})
}

func TestCLISettingsCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(ts.Close)

	svc := setupServices(t)
	ctx := context.Background()

	_, err := runCLI(t, svc, "", "settings", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[VALIDATION_ERROR]")

	require.NoError(t, svc.settings.Set(ctx, "openai_base_url", ts.URL))
	require.NoError(t, svc.settings.Set(ctx, "openai_api_key", "sk-good"))
	out, err := runCLI(t, svc, "", "settings", "check")
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)

	require.NoError(t, svc.settings.Set(ctx, "openai_api_key", "sk-bad"))
	_, err = runCLI(t, svc, "", "settings", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[SYNTHESIS_ERROR]")
}
