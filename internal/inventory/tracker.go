// Package inventory keeps a live per-user count of the custom items each
// user holds and persists those counts between restarts.
package inventory

import (
	"sort"
	"sync"

	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

// Matcher resolves an observed item to its definition.
type Matcher interface {
	Match(observed model.ObservedItem) (*model.ItemDefinition, bool)
}

// Tracker holds the latest scan result per user. Stored maps are never
// mutated; callers always receive copies.
type Tracker struct {
	matcher Matcher
	counts  sync.Map // user -> *snapshot
	metrics *observability.Metrics
}

// snapshot is one scan result. An empty counts map marks a user holding
// nothing recognized; it is kept so its seq still guards later scans.
type snapshot struct {
	seq    uint64
	counts map[string]int
}

// NewTracker creates a Tracker that resolves held items with matcher.
func NewTracker(matcher Matcher, metrics *observability.Metrics) *Tracker {
	return &Tracker{matcher: matcher, metrics: metrics}
}

// Scan rebuilds the counts for user from held and stores them
// unconditionally. Unrecognized items are ignored. A user holding nothing
// recognized is forgotten.
func (t *Tracker) Scan(user string, held []model.ObservedItem) map[string]int {
	counts := t.count(held)
	if len(counts) == 0 {
		t.counts.Delete(user)
	} else {
		t.counts.Store(user, &snapshot{counts: counts})
	}
	t.metrics.SetInventoryTrackedUsers(t.Len())
	return copyCounts(counts)
}

// ScanAt rebuilds the counts for user from held, where held was read at
// sequence seq. The result is stored only when no newer scan has been stored
// meanwhile; otherwise the newer counts are returned and ok is false.
func (t *Tracker) ScanAt(user string, seq uint64, held []model.ObservedItem) (counts map[string]int, ok bool) {
	counts = t.count(held)
	next := &snapshot{seq: seq, counts: counts}
	for {
		v, loaded := t.counts.LoadOrStore(user, next)
		if !loaded {
			break
		}
		cur := v.(*snapshot)
		if cur.seq > seq {
			return copyCounts(cur.counts), false
		}
		if t.counts.CompareAndSwap(user, cur, next) {
			break
		}
	}
	t.metrics.SetInventoryTrackedUsers(t.Len())
	return copyCounts(counts), true
}

func (t *Tracker) count(held []model.ObservedItem) map[string]int {
	counts := make(map[string]int)
	for _, item := range held {
		if d, ok := t.matcher.Match(item); ok {
			counts[d.QualifiedID()] += item.Count()
		}
	}
	return counts
}

// Counts returns the counts for user, or an empty map.
func (t *Tracker) Counts(user string) map[string]int {
	v, ok := t.counts.Load(user)
	if !ok {
		return map[string]int{}
	}
	return copyCounts(v.(*snapshot).counts)
}

// Count returns how many of item user holds.
func (t *Tracker) Count(user, item string) int {
	v, ok := t.counts.Load(user)
	if !ok {
		return 0
	}
	return v.(*snapshot).counts[item]
}

// AllCounts returns a deep copy of every tracked user's counts.
func (t *Tracker) AllCounts() map[string]map[string]int {
	out := make(map[string]map[string]int)
	t.counts.Range(func(k, v any) bool {
		if snap := v.(*snapshot); len(snap.counts) > 0 {
			out[k.(string)] = copyCounts(snap.counts)
		}
		return true
	})
	return out
}

// Restore seeds the tracker with persisted counts. Non-positive counts and
// users left without items are skipped.
func (t *Tracker) Restore(all map[string]map[string]int) {
	for user, items := range all {
		counts := make(map[string]int, len(items))
		for item, n := range items {
			if n > 0 {
				counts[item] = n
			}
		}
		if len(counts) > 0 {
			t.counts.Store(user, &snapshot{counts: counts})
		}
	}
	t.metrics.SetInventoryTrackedUsers(t.Len())
}

// Users returns the tracked user ids in sorted order.
func (t *Tracker) Users() []string {
	var users []string
	t.counts.Range(func(k, v any) bool {
		if len(v.(*snapshot).counts) > 0 {
			users = append(users, k.(string))
		}
		return true
	})
	sort.Strings(users)
	return users
}

// Len returns the number of tracked users.
func (t *Tracker) Len() int {
	n := 0
	t.counts.Range(func(_, v any) bool {
		if len(v.(*snapshot).counts) > 0 {
			n++
		}
		return true
	})
	return n
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
