package clip

// Filter returns the items with the given status, preserving order.
func Filter(items []Item, status Status) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out
}

// Staging returns the staging partition in collection order.
func Staging(items []Item) []Item {
	return Filter(items, StatusStaging)
}

// Archived returns the archived partition in collection order.
func Archived(items []Item) []Item {
	return Filter(items, StatusArchived)
}

// IDs returns the ids of items in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// IndexOf returns the position of id in items, or -1.
func IndexOf(items []Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// CloneAll deep-copies a collection.
func CloneAll(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// TotalTokens sums the token estimates of items.
func TotalTokens(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.TokenEstimate
	}
	return total
}

// IsPermutation reports whether next holds exactly the ids of current, each
// once. Duplicate ids in next are rejected.
func IsPermutation(current, next []Item) bool {
	if len(current) != len(next) {
		return false
	}
	want := make(map[string]int, len(current))
	for _, it := range current {
		want[it.ID]++
	}
	for _, it := range next {
		if want[it.ID] == 0 {
			return false
		}
		want[it.ID]--
	}
	return true
}

// DuplicateIDs returns ids that occur more than once in items.
func DuplicateIDs(items []Item) []string {
	seen := make(map[string]bool, len(items))
	var dups []string
	for _, it := range items {
		if seen[it.ID] {
			dups = append(dups, it.ID)
			continue
		}
		seen[it.ID] = true
	}
	return dups
}
