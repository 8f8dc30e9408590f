package inventory

import "context"

// Store persists tracked counts keyed user -> item -> count.
type Store interface {
	// Load returns every persisted user's counts.
	Load(ctx context.Context) (map[string]map[string]int, error)

	// Save replaces the persisted counts with all. Counts that are not
	// positive are not written.
	Save(ctx context.Context, all map[string]map[string]int) error

	// Close releases the store's resources.
	Close() error
}

func positive(items map[string]int) map[string]int {
	out := make(map[string]int, len(items))
	for item, n := range items {
		if n > 0 {
			out[item] = n
		}
	}
	return out
}
