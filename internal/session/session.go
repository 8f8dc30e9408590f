// Package session tracks the users currently connected to the host and the
// items they last reported holding.
package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/coreitems/model"
)

// Session is one connected user.
type Session struct {
	UserID   string
	Name     string
	Held     []model.ObservedItem
	JoinedAt time.Time
	// Seq increases on every Join and Update across the registry. A scan of
	// Held is only as fresh as Seq.
	Seq uint64
}

// Registry holds the connected users. Stored sessions are replaced, never
// mutated, so readers may keep them.
type Registry struct {
	sessions sync.Map // user -> *Session
	seq      atomic.Uint64
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// Join records user as connected. Joining again keeps the reported holdings
// and updates the name.
func (r *Registry) Join(user, name string) *Session {
	s := &Session{UserID: user, Name: name, JoinedAt: r.now(), Seq: r.seq.Add(1)}
	if prev, ok := r.Get(user); ok {
		s.Held = prev.Held
		s.JoinedAt = prev.JoinedAt
	}
	r.sessions.Store(user, s)
	return s
}

// Update replaces the holdings reported for user. Unknown users are joined
// under their id.
func (r *Registry) Update(user string, held []model.ObservedItem) *Session {
	s := &Session{UserID: user, Name: user, JoinedAt: r.now(), Seq: r.seq.Add(1)}
	if prev, ok := r.Get(user); ok {
		s.Name = prev.Name
		s.JoinedAt = prev.JoinedAt
	}
	s.Held = append([]model.ObservedItem(nil), held...)
	r.sessions.Store(user, s)
	return s
}

// Get returns the session for user.
func (r *Registry) Get(user string) (*Session, bool) {
	v, ok := r.sessions.Load(user)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Name returns the display name for user, falling back to the id.
func (r *Registry) Name(user string) string {
	if s, ok := r.Get(user); ok && s.Name != "" {
		return s.Name
	}
	return user
}

// Leave forgets user and reports whether it was connected.
func (r *Registry) Leave(user string) bool {
	_, ok := r.sessions.LoadAndDelete(user)
	return ok
}

// Online returns the connected sessions sorted by user id.
func (r *Registry) Online() []*Session {
	var out []*Session
	r.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Session))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
