package ops

import (
	"context"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// Reorder replaces the collection order with seq. seq must hold exactly the
// ids already present; clip contents come from the collection, not from seq.
func (r *Repository) Reorder(ctx context.Context, seq []clip.Item) error {
	return r.commit(ctx, "reorder clips", func(current []clip.Item) ([]clip.Item, error) {
		if !clip.IsPermutation(current, seq) {
			return nil, errors.NewValidation("reorder must contain exactly the existing clips")
		}
		byID := make(map[string]clip.Item, len(current))
		for _, it := range current {
			byID[it.ID] = it
		}
		next := make([]clip.Item, len(seq))
		for i, it := range seq {
			next[i] = byID[it.ID]
		}
		return next, nil
	})
}

// ReorderStaging orders the staging partition by ids. The result is the
// staging clips in the new order followed by every other clip in its
// current order.
func (r *Repository) ReorderStaging(ctx context.Context, ids []string) error {
	current := r.Clips()
	staging := clip.Staging(current)

	requested := make([]clip.Item, len(ids))
	for i, id := range ids {
		requested[i] = clip.Item{ID: id}
	}
	if !clip.IsPermutation(staging, requested) {
		return errors.NewValidation("ids must be a permutation of the staging clips")
	}

	seq := make([]clip.Item, 0, len(current))
	seq = append(seq, requested...)
	for _, it := range current {
		if it.Status != clip.StatusStaging {
			seq = append(seq, clip.Item{ID: it.ID})
		}
	}
	return r.Reorder(ctx, seq)
}
