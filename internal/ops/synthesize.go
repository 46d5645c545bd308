package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// SynthesizeAndArchive prepends a synthesis result and archives its sources
// in a single write. The result always enters at staging. Source ids that
// are no longer present are ignored.
func (r *Repository) SynthesizeAndArchive(ctx context.Context, result clip.Item, sourceIDs []string) error {
	result = result.Clone()
	result.Status = clip.StatusStaging
	if result.ParentIDs == nil && len(sourceIDs) > 0 {
		result.IsSynthesized = true
		result.ParentIDs = append([]string(nil), sourceIDs...)
	}
	if err := r.validateNew(result); err != nil {
		return err
	}

	sources := idSet(sourceIDs)
	if sources[result.ID] {
		return errors.NewValidation("a synthesis result cannot be its own source")
	}

	return r.readModifyWrite(ctx, "synthesize and archive", func(current []clip.Item) ([]clip.Item, error) {
		if clip.IndexOf(current, result.ID) >= 0 {
			return nil, errors.NewConflict(fmt.Sprintf("clip %s already exists", result.ID))
		}
		for i := range current {
			if sources[current[i].ID] {
				current[i].Status = clip.StatusArchived
			}
		}
		return prepend(result, current), nil
	})
}
