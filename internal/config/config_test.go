package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClipMaxChars != DefaultConfig().ClipMaxChars {
		t.Fatalf("ClipMaxChars = %d, want %d", cfg.ClipMaxChars, DefaultConfig().ClipMaxChars)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Fatalf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendSQLite)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	data := `{"clip_max_chars": 500, "store_backend": "redis", "redis_url": "redis://localhost:6379/0"}`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClipMaxChars != 500 {
		t.Errorf("ClipMaxChars = %d, want 500", cfg.ClipMaxChars)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendRedis)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	// Untouched fields keep defaults
	if cfg.AIRequestsPerMinute != DefaultConfig().AIRequestsPerMinute {
		t.Errorf("AIRequestsPerMinute = %d, want default", cfg.AIRequestsPerMinute)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"clip_max_chars": 8000, "disabled_tools": ["clip_delete"]}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	repoDir := filepath.Join(repoRoot, ".ctxbridge")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	repoConfig := `{"clip_max_chars": 5000, "disabled_tools": ["clip_bulk_delete", "clip_delete"]}`
	if err := os.WriteFile(filepath.Join(repoDir, "config.json"), []byte(repoConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.ClipMaxChars != 5000 {
		t.Errorf("ClipMaxChars = %d, want 5000 (repo override)", cfg.ClipMaxChars)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools = %v, want 2 merged entries", cfg.DisabledTools)
	}
	if cfg.DisabledTools[0] != "clip_delete" || cfg.DisabledTools[1] != "clip_bulk_delete" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.ClipMaxChars != DefaultConfig().ClipMaxChars {
		t.Errorf("ClipMaxChars = %d, want default", cfg.ClipMaxChars)
	}
}

func TestMerge_Booleans(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{})
	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths = false, want true (base true)")
	}
}

func TestMergeStringSlice_TrimsAndDedups(t *testing.T) {
	got := mergeStringSlice([]string{" a ", "b", ""}, []string{"b", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if mergeStringSlice(nil, []string{" "}) != nil {
		t.Error("expected nil for empty result")
	}
}

func TestAITimeout(t *testing.T) {
	if (&Config{AITimeoutSeconds: 5}).AITimeout() != 5*time.Second {
		t.Error("AITimeout() mismatch for 5s")
	}
	if (&Config{}).AITimeout() != 120*time.Second {
		t.Error("AITimeout() default should be 120s")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (&Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
