package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path   string   // optional, default: <base>/exports/<status>-<timestamp>.md
	IDs    []string // optional; exports these clips in the given order
	Status string   // optional partition filter when IDs is empty: "staging" or "archived"
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// FormatMarkdown renders clips as a Markdown document, one section per clip.
func FormatMarkdown(items []clip.Item) string {
	sections := make([]string, len(items))
	for i, it := range items {
		captured := time.UnixMilli(it.Metadata.Timestamp).Local().Format("2006-01-02 15:04:05")
		sections[i] = fmt.Sprintf("## [%s](%s)\n\n%s\n\n---\n*Captured at %s*\n",
			it.Metadata.SourceTitle, it.Metadata.SourceURL, it.Content, captured)
	}
	return strings.Join(sections, "\n\n")
}

// SelectForExport resolves the clips an export covers.
func (r *Repository) SelectForExport(input ExportInput) ([]clip.Item, error) {
	if len(input.IDs) > 0 {
		return r.Find(input.IDs), nil
	}
	switch input.Status {
	case "":
		return r.Clips(), nil
	case string(clip.StatusStaging):
		return r.Staging(), nil
	case string(clip.StatusArchived):
		return r.Archived(), nil
	}
	return nil, errors.NewValidation(fmt.Sprintf("invalid status filter %q", input.Status))
}

// Export writes the selected clips to a Markdown file.
func (r *Repository) Export(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	items, err := r.SelectForExport(input)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath = r.defaultExportPath(input.Status, now)
	}

	// Default paths go through the same checks as user-provided ones
	if err := ValidatePath(exportPath, ExportRule(r.baseDir), r.cfg); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("export")
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	if err := writeFileAtomic(exportPath, []byte(FormatMarkdown(items))); err != nil {
		return nil, err
	}

	r.logger.Info("exported clips", "path", exportPath, "count", len(items))
	return &ExportOutput{
		Path:       exportPath,
		Count:      len(items),
		ExportedAt: now.Unix(),
	}, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place, so an existing file survives a failed write.
func writeFileAtomic(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewValidation("export path is a symlink")
	}

	// On Windows os.Rename fails if the destination exists; keep the old file.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewValidation("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath returns <base>/exports/<status|clips>-<timestamp>.md.
func (r *Repository) defaultExportPath(status string, now time.Time) string {
	name := "clips"
	if status != "" {
		name = SanitizeForFilename(status)
	}
	filename := fmt.Sprintf("%s-%s.md", name, now.Format("2006-01-02T150405"))
	return filepath.Join(ExportsDir(r.baseDir), filename)
}
