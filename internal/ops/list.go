package ops

import (
	"fmt"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// previewChars is the length of the content preview in summaries.
const previewChars = 120

// ListInput contains parameters for the List operation.
type ListInput struct {
	Status string // "staging", "archived" or "" for all
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ClipSummary is a clip without its full content.
type ClipSummary struct {
	ID            string      `json:"id"`
	Type          clip.Type   `json:"type"`
	Status        clip.Status `json:"status"`
	SourceTitle   string      `json:"source_title"`
	SourceURL     string      `json:"source_url"`
	Timestamp     int64       `json:"timestamp"`
	TokenEstimate int         `json:"token_estimate"`
	Preview       string      `json:"preview"`
	IsSynthesized bool        `json:"is_synthesized,omitempty"`
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items       []ClipSummary `json:"items"`
	Pagination  Pagination    `json:"pagination"`
	TotalTokens int           `json:"total_tokens"`
	Sort        string        `json:"sort"`
}

// Summarize builds the summary of a clip.
func Summarize(it clip.Item) ClipSummary {
	return ClipSummary{
		ID:            it.ID,
		Type:          it.Type,
		Status:        it.Status,
		SourceTitle:   it.Metadata.SourceTitle,
		SourceURL:     it.Metadata.SourceURL,
		Timestamp:     it.Metadata.Timestamp,
		TokenEstimate: it.TokenEstimate,
		Preview:       preview(it.Content, previewChars),
		IsSynthesized: it.IsSynthesized,
	}
}

// List returns clip summaries in collection order with pagination.
// TotalTokens covers the whole filtered partition, not just the page.
func (r *Repository) List(input ListInput) (*ListOutput, error) {
	var items []clip.Item
	switch input.Status {
	case "":
		items = r.Clips()
	case string(clip.StatusStaging):
		items = r.Staging()
	case string(clip.StatusArchived):
		items = r.Archived()
	default:
		return nil, errors.NewValidation(fmt.Sprintf("invalid status filter %q", input.Status))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)

	summaries := make([]ClipSummary, 0, end-start)
	for _, it := range items[start:end] {
		summaries = append(summaries, Summarize(it))
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: end < total,
			Total:   total,
		},
		TotalTokens: clip.TotalTokens(items),
		Sort:        "collection_order",
	}, nil
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
