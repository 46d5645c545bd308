package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

func TestFormatMarkdown(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local).UnixMilli()
	items := []clip.Item{
		{Content: "first", Metadata: clip.Metadata{SourceTitle: "A", SourceURL: "https://a", Timestamp: ts}},
		{Content: "second", Metadata: clip.Metadata{SourceTitle: "B", SourceURL: "https://b", Timestamp: ts}},
	}

	got := FormatMarkdown(items)
	want := "## [A](https://a)\n\nfirst\n\n---\n*Captured at 2024-03-01 12:00:00*\n" +
		"\n\n" +
		"## [B](https://b)\n\nsecond\n\n---\n*Captured at 2024-03-01 12:00:00*\n"
	if got != want {
		t.Errorf("FormatMarkdown =\n%q\nwant\n%q", got, want)
	}
	if FormatMarkdown(nil) != "" {
		t.Error("empty export should be empty")
	}
}

func TestExport_DefaultPath(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.repo, "a", "b")

	out, err := env.repo.Export(context.Background(), ExportInput{})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}
	if filepath.Dir(out.Path) != ExportsDir(env.baseDir) {
		t.Errorf("Path = %s, want under %s", out.Path, ExportsDir(env.baseDir))
	}
	if !strings.HasPrefix(filepath.Base(out.Path), "clips-") || filepath.Ext(out.Path) != ".md" {
		t.Errorf("unexpected file name %s", filepath.Base(out.Path))
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Count(string(data), "## [") != 2 {
		t.Errorf("export content:\n%s", data)
	}

	info, err := os.Stat(out.Path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestExport_SelectedIDsInOrder(t *testing.T) {
	env := newTestEnv(t)
	items := mustAdd(t, env.repo, "a", "b", "c")
	path := filepath.Join(ExportsDir(env.baseDir), "picked.md")

	out, err := env.repo.Export(context.Background(), ExportInput{
		Path: path,
		IDs:  []string{items[0].ID, "ghost", items[2].ID},
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}

	data, _ := os.ReadFile(path)
	text := string(data)
	if strings.Index(text, "Title a") > strings.Index(text, "Title c") {
		t.Errorf("order not preserved:\n%s", text)
	}
	if strings.Contains(text, "Title b") {
		t.Error("unselected clip exported")
	}
}

func TestExport_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	items := mustAdd(t, env.repo, "a", "b")
	if _, err := env.repo.Archive(context.Background(), []string{items[0].ID}); err != nil {
		t.Fatal(err)
	}

	out, err := env.repo.Export(context.Background(), ExportInput{Status: "archived"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Count != 1 || !strings.HasPrefix(filepath.Base(out.Path), "archived-") {
		t.Errorf("out = %+v", out)
	}

	if _, err := env.repo.Export(context.Background(), ExportInput{Status: "deleted"}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("bad status: expected VALIDATION_ERROR, got %v", err)
	}
}

func TestExport_PathRejected(t *testing.T) {
	env := newTestEnv(t)

	tests := []string{
		filepath.Join(ExportsDir(env.baseDir), "..", "escape.md"),
		filepath.Join(ExportsDir(env.baseDir), "clips.jsonl"),
		filepath.Join(t.TempDir(), "elsewhere.md"),
	}
	for _, path := range tests {
		if _, err := env.repo.Export(context.Background(), ExportInput{Path: path}); !errors.Is(err, errors.ErrValidation) {
			t.Errorf("Export(%s): expected VALIDATION_ERROR, got %v", path, err)
		}
	}
}

func TestExport_OverwritesExisting(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.repo, "fresh")
	path := filepath.Join(ExportsDir(env.baseDir), "same.md")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := env.repo.Export(context.Background(), ExportInput{Path: path}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "stale") {
		t.Error("old content survived overwrite")
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestList_Pagination(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.repo, "aaaa", "bbbbbbbb", "c")

	out, err := env.repo.List(ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 2 || !out.Pagination.HasMore || out.Pagination.Total != 3 {
		t.Errorf("page = %+v", out.Pagination)
	}
	if out.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", out.TotalTokens)
	}

	out, err = env.repo.List(ListInput{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 1 || out.Pagination.HasMore {
		t.Errorf("last page = %+v", out.Pagination)
	}

	out, _ = env.repo.List(ListInput{Offset: 50})
	if len(out.Items) != 0 || out.Items == nil {
		t.Errorf("past-end page should be empty, not nil: %v", out.Items)
	}

	if _, err := env.repo.List(ListInput{Status: "bogus"}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSummarize_Preview(t *testing.T) {
	long := strings.Repeat("é", previewChars+5)
	s := Summarize(clip.Item{ID: "x", Content: long})
	if n := len([]rune(s.Preview)); n != previewChars+1 {
		t.Errorf("preview runes = %d, want %d", n, previewChars+1)
	}
}
