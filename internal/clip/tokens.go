package clip

import (
	"crypto/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens estimates token count as one token per four characters,
// rounded up. Empty text is zero tokens.
func EstimateTokens(text string) int {
	n := CountChars(text)
	return (n + 3) / 4
}

var (
	clockMu   sync.Mutex
	lastMilli int64
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Now returns the current Unix time in milliseconds. Values returned within a
// process never decrease, even if the wall clock steps backwards.
func Now() int64 {
	clockMu.Lock()
	defer clockMu.Unlock()
	ms := time.Now().UnixMilli()
	if ms < lastMilli {
		ms = lastMilli
	}
	lastMilli = ms
	return ms
}

// NewID generates a new ULID. IDs generated within one process sort in
// creation order.
func NewID() (string, error) {
	clockMu.Lock()
	defer clockMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
