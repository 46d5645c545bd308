package clip

// Type is the provenance tag of a clip. Informational only.
type Type string

const (
	TypeText        Type = "text"
	TypeCode        Type = "code"
	TypePageContent Type = "page_content"
	TypeAIResponse  Type = "ai_response"
)

// Valid reports whether t is a known clip type.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeCode, TypePageContent, TypeAIResponse:
		return true
	}
	return false
}

// Metadata describes where a clip came from. Immutable once set.
type Metadata struct {
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title"`

	// Timestamp is the creation time in Unix milliseconds
	Timestamp int64 `json:"timestamp"`

	Favicon string `json:"favicon"`
}

// Item is a captured or synthesized content fragment.
// Field names follow the persisted layout of the "clips" record.
type Item struct {
	// ID is a ULID assigned at creation
	ID string `json:"id"`

	Type Type `json:"type"`

	// Content is canonical Markdown; user-editable
	Content string `json:"content"`

	// RawHTML is the original markup, retained for re-processing; never mutated
	RawHTML string `json:"raw_html,omitempty"`

	Metadata Metadata `json:"metadata"`

	Status Status `json:"status"`

	// TokenEstimate is recomputed whenever Content changes
	TokenEstimate int `json:"token_estimate"`

	// Provenance, populated only on synthesis results.
	IsSynthesized bool     `json:"is_synthesized,omitempty"`
	ParentIDs     []string `json:"parent_ids,omitempty"`
	TemplateUsed  string   `json:"template_used,omitempty"`
}

// SetContent replaces the content and recomputes the token estimate.
func (it *Item) SetContent(content string) {
	it.Content = content
	it.TokenEstimate = EstimateTokens(content)
}

// Clone returns a copy of the item that shares no mutable state with it.
func (it Item) Clone() Item {
	if it.ParentIDs != nil {
		it.ParentIDs = append([]string(nil), it.ParentIDs...)
	}
	return it
}

// NewInput contains parameters for New.
type NewInput struct {
	Type        Type
	Content     string
	RawHTML     string
	SourceURL   string
	SourceTitle string
	Favicon     string
}

// New builds a fresh staging clip with a new id, a creation timestamp and a
// token estimate derived from the content.
func New(input NewInput) (Item, error) {
	id, err := NewID()
	if err != nil {
		return Item{}, err
	}
	typ := input.Type
	if typ == "" {
		typ = TypeText
	}
	return Item{
		ID:      id,
		Type:    typ,
		Content: input.Content,
		RawHTML: input.RawHTML,
		Metadata: Metadata{
			SourceURL:   input.SourceURL,
			SourceTitle: input.SourceTitle,
			Timestamp:   Now(),
			Favicon:     input.Favicon,
		},
		Status:        StatusStaging,
		TokenEstimate: EstimateTokens(input.Content),
	}, nil
}
