package clip

import "fmt"

// Status is the partition a clip currently belongs to.
type Status string

const (
	StatusStaging  Status = "staging"
	StatusArchived Status = "archived"

	// StatusSynthesis is reserved. No operation transitions a clip into it.
	StatusSynthesis Status = "synthesis"
)

// ParseStatus converts s to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusStaging, StatusArchived, StatusSynthesis:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q (want staging, archived or synthesis)", s)
}

// CanTransition reports whether a clip in status from may be moved to status to.
//
//	staging  -> archived   archive, or synthesize-and-archive
//	archived -> staging    restore
//
// Same-state moves are allowed and are no-ops. Creation always enters at
// staging and deletion is not a status, so neither appears here.
func CanTransition(from, to Status) bool {
	if to == StatusSynthesis {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case StatusStaging:
		return to == StatusArchived
	case StatusArchived:
		return to == StatusStaging
	case StatusSynthesis:
		// Legacy rows may carry the reserved value; let them settle into a real partition.
		return to == StatusStaging || to == StatusArchived
	}
	return false
}
