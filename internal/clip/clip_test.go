package clip

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars", "abcde", 2},
		{"multibyte counts runes", "日本語テキ", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestSetContent_RecomputesTokens(t *testing.T) {
	it := Item{Content: "a", TokenEstimate: 1}
	it.SetContent("twelve chars")
	assert.Equal(t, "twelve chars", it.Content)
	assert.Equal(t, 3, it.TokenEstimate)
}

func TestNew(t *testing.T) {
	it, err := New(NewInput{
		Content:     "hello world",
		SourceURL:   "https://example.com",
		SourceTitle: "Example",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, it.ID)
	assert.Equal(t, TypeText, it.Type, "type defaults to text")
	assert.Equal(t, StatusStaging, it.Status)
	assert.Equal(t, EstimateTokens("hello world"), it.TokenEstimate)
	assert.Equal(t, "https://example.com", it.Metadata.SourceURL)
	assert.NotZero(t, it.Metadata.Timestamp)
	assert.False(t, it.IsSynthesized)
}

func TestNew_IDsUniqueAndOrdered(t *testing.T) {
	prev := ""
	for i := 0; i < 100; i++ {
		it, err := New(NewInput{Content: "x"})
		require.NoError(t, err)
		assert.Greater(t, it.ID, prev)
		prev = it.ID
	}
}

func TestNow_NonDecreasing(t *testing.T) {
	prev := Now()
	for i := 0; i < 1000; i++ {
		n := Now()
		require.GreaterOrEqual(t, n, prev)
		prev = n
	}
}

func TestItem_JSONLayout(t *testing.T) {
	it := Item{
		ID:      "01A",
		Type:    TypePageContent,
		Content: "c",
		Metadata: Metadata{
			SourceURL:   "u",
			SourceTitle: "t",
			Timestamp:   42,
			Favicon:     "f",
		},
		Status:        StatusStaging,
		TokenEstimate: 1,
	}
	data, err := json.Marshal(it)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "page_content", raw["type"])
	assert.Equal(t, "staging", raw["status"])
	assert.Contains(t, raw, "token_estimate")
	assert.NotContains(t, raw, "raw_html", "empty raw_html omitted")
	assert.NotContains(t, raw, "parent_ids", "provenance omitted on plain clips")

	meta := raw["metadata"].(map[string]any)
	assert.Equal(t, "u", meta["source_url"])
	assert.Equal(t, "t", meta["source_title"])
}

func TestClone_DoesNotShareParentIDs(t *testing.T) {
	it := Item{ID: "s", ParentIDs: []string{"a", "b"}}
	c := it.Clone()
	c.ParentIDs[0] = "z"
	assert.Equal(t, "a", it.ParentIDs[0])
}

func TestType_Valid(t *testing.T) {
	assert.True(t, TypeAIResponse.Valid())
	assert.True(t, TypeCode.Valid())
	assert.False(t, Type("video").Valid())
}
