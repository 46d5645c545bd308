package ops

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// errUnchanged aborts a mutation that has nothing to write.
var errUnchanged = stderrors.New("unchanged")

// Add prepends item to the collection. The stored collection is re-read first
// so a clip added by another surface in the meantime is not lost.
func (r *Repository) Add(ctx context.Context, item clip.Item) error {
	if err := r.validateNew(item); err != nil {
		return err
	}
	item = item.Clone()

	return r.readModifyWrite(ctx, "add clip", func(current []clip.Item) ([]clip.Item, error) {
		if clip.IndexOf(current, item.ID) >= 0 {
			return nil, errors.NewConflict(fmt.Sprintf("clip %s already exists", item.ID))
		}
		return prepend(item, current), nil
	})
}

// AddUnique is Add for captures: when a staged clip with the same source URL
// and content already exists in the freshly read collection, nothing is
// written and that clip is returned with added false.
func (r *Repository) AddUnique(ctx context.Context, item clip.Item) (clip.Item, bool, error) {
	if err := r.validateNew(item); err != nil {
		return clip.Item{}, false, err
	}
	item = item.Clone()

	var existing clip.Item
	err := r.readModifyWrite(ctx, "add clip", func(current []clip.Item) ([]clip.Item, error) {
		for _, it := range current {
			if it.Status == clip.StatusStaging && it.Metadata.SourceURL == item.Metadata.SourceURL && it.Content == item.Content {
				existing = it
				return nil, errUnchanged
			}
		}
		if clip.IndexOf(current, item.ID) >= 0 {
			return nil, errors.NewConflict(fmt.Sprintf("clip %s already exists", item.ID))
		}
		return prepend(item, current), nil
	})
	if stderrors.Is(err, errUnchanged) {
		return existing.Clone(), false, nil
	}
	if err != nil {
		return clip.Item{}, false, err
	}
	return item, true, nil
}

// validateNew checks a clip about to enter the collection.
func (r *Repository) validateNew(item clip.Item) error {
	if item.ID == "" {
		return errors.NewValidation("clip id is required")
	}
	if !item.Type.Valid() {
		return errors.NewValidation(fmt.Sprintf("unknown clip type %q", item.Type))
	}
	if item.Status != clip.StatusStaging {
		return errors.NewValidation("new clips must enter at staging")
	}
	if n := clip.CountChars(item.Content); r.cfg.ClipMaxChars > 0 && n > r.cfg.ClipMaxChars {
		return errors.NewClipTooLarge(r.cfg.ClipMaxChars, n)
	}
	return nil
}

func prepend(item clip.Item, items []clip.Item) []clip.Item {
	out := make([]clip.Item, 0, len(items)+1)
	out = append(out, item)
	return append(out, items...)
}
