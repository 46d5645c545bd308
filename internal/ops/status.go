package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// UpdateStatus moves the clips with the given ids to status and reports how
// many changed. Absent ids are ignored. If any matched clip cannot make the
// transition nothing is written.
func (r *Repository) UpdateStatus(ctx context.Context, ids []string, status clip.Status) (int, error) {
	if status != clip.StatusStaging && status != clip.StatusArchived {
		return 0, errors.NewValidation(fmt.Sprintf("cannot move clips to %q", status))
	}

	want := idSet(ids)
	changed := 0
	err := r.commit(ctx, "update status", func(current []clip.Item) ([]clip.Item, error) {
		for i := range current {
			if !want[current[i].ID] {
				continue
			}
			if !clip.CanTransition(current[i].Status, status) {
				return nil, errors.NewValidation(fmt.Sprintf("clip %s cannot move from %s to %s",
					current[i].ID, current[i].Status, status))
			}
			if current[i].Status != status {
				current[i].Status = status
				changed++
			}
		}
		return current, nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Archive moves the given clips to the archive.
func (r *Repository) Archive(ctx context.Context, ids []string) (int, error) {
	return r.UpdateStatus(ctx, ids, clip.StatusArchived)
}

// Restore moves an archived clip back to staging.
func (r *Repository) Restore(ctx context.Context, id string) error {
	if _, err := r.Get(id); err != nil {
		return err
	}
	_, err := r.UpdateStatus(ctx, []string{id}, clip.StatusStaging)
	return err
}
