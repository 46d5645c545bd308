package ops

import (
	"context"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// UpdateContent replaces a clip's content and recomputes its token estimate.
// Status, metadata and position are unchanged.
func (r *Repository) UpdateContent(ctx context.Context, id, content string) (clip.Item, error) {
	if n := clip.CountChars(content); r.cfg.ClipMaxChars > 0 && n > r.cfg.ClipMaxChars {
		return clip.Item{}, errors.NewClipTooLarge(r.cfg.ClipMaxChars, n)
	}

	var updated clip.Item
	err := r.commit(ctx, "update content", func(current []clip.Item) ([]clip.Item, error) {
		i := clip.IndexOf(current, id)
		if i < 0 {
			return nil, errors.NewNotFound(id)
		}
		current[i].SetContent(content)
		updated = current[i].Clone()
		return current, nil
	})
	if err != nil {
		return clip.Item{}, err
	}
	return updated, nil
}
