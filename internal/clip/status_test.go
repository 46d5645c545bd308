package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusStaging, StatusArchived, true},
		{StatusArchived, StatusStaging, true},
		{StatusStaging, StatusStaging, true},
		{StatusArchived, StatusArchived, true},
		{StatusStaging, StatusSynthesis, false},
		{StatusArchived, StatusSynthesis, false},
		{StatusSynthesis, StatusStaging, true},
		{Status("bogus"), StatusStaging, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("archived")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, s)

	_, err = ParseStatus("deleted")
	assert.Error(t, err)
}

func TestPartitions(t *testing.T) {
	items := []Item{
		{ID: "a", Status: StatusStaging, TokenEstimate: 1},
		{ID: "b", Status: StatusArchived, TokenEstimate: 2},
		{ID: "c", Status: StatusStaging, TokenEstimate: 3},
	}
	assert.Equal(t, []string{"a", "c"}, IDs(Staging(items)))
	assert.Equal(t, []string{"b"}, IDs(Archived(items)))
	assert.Equal(t, 6, TotalTokens(items))
	assert.Equal(t, 1, IndexOf(items, "b"))
	assert.Equal(t, -1, IndexOf(items, "zz"))
}

func TestIsPermutation(t *testing.T) {
	cur := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.True(t, IsPermutation(cur, []Item{{ID: "c"}, {ID: "a"}, {ID: "b"}}))
	assert.False(t, IsPermutation(cur, []Item{{ID: "c"}, {ID: "a"}}), "dropped item")
	assert.False(t, IsPermutation(cur, []Item{{ID: "a"}, {ID: "a"}, {ID: "b"}}), "duplicate")
	assert.False(t, IsPermutation(cur, []Item{{ID: "a"}, {ID: "b"}, {ID: "x"}}), "foreign id")
	assert.True(t, IsPermutation(nil, nil))
}

func TestDuplicateIDs(t *testing.T) {
	assert.Nil(t, DuplicateIDs([]Item{{ID: "a"}, {ID: "b"}}))
	assert.Equal(t, []string{"a"}, DuplicateIDs([]Item{{ID: "a"}, {ID: "b"}, {ID: "a"}}))
}
