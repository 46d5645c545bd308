package ops

import (
	"context"

	"github.com/hpungsan/ctxbridge/internal/clip"
)

// Delete removes the clip with id. Deleting a missing id is a no-op.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.DeleteMany(ctx, []string{id})
	return err
}

// DeleteMany removes every clip whose id is in ids and reports how many were
// removed. Absent ids are ignored.
func (r *Repository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	drop := idSet(ids)
	deleted := 0
	err := r.commit(ctx, "delete clips", func(current []clip.Item) ([]clip.Item, error) {
		kept := current[:0]
		for _, it := range current {
			if drop[it.ID] {
				deleted++
				continue
			}
			kept = append(kept, it)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Clear removes every clip.
func (r *Repository) Clear(ctx context.Context) (int, error) {
	removed := 0
	err := r.commit(ctx, "clear clips", func(current []clip.Item) ([]clip.Item, error) {
		removed = len(current)
		return []clip.Item{}, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
