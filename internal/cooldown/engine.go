// Package cooldown tracks per-user, per-item action cooldowns and throttles
// the notices shown while an action is blocked.
package cooldown

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

// RemainingPlaceholder is replaced in notices with the whole seconds left.
const RemainingPlaceholder = "%remaining%"

// Key addresses one cooldown bucket.
type Key struct {
	User   string
	Item   string
	Action model.ActionKey
}

// Status is the outcome of an evaluation.
type Status int

const (
	Ready Status = iota
	OnCooldown
)

func (s Status) String() string {
	if s == OnCooldown {
		return "on_cooldown"
	}
	return "ready"
}

// Decision reports whether an action may run. When Notify is set, Message
// holds the notice to show the user.
type Decision struct {
	Status    Status
	Key       model.ActionKey
	Expiry    time.Time
	Remaining time.Duration
	Message   string
	Notify    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records notices on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine holds cooldown expiries and notice timestamps. All methods are safe
// for concurrent use.
type Engine struct {
	settings atomic.Pointer[Settings]
	expiry   sync.Map // Key -> time.Time
	notice   sync.Map // Key -> time.Time
	users    sync.Map // user -> *sync.Map of Key
	now      func() time.Time
	metrics  *observability.Metrics
}

// New creates an Engine with the given settings.
func New(settings Settings, opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	e.settings.Store(&settings)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the current global settings.
func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// SetSettings swaps the global settings. Existing expiries are kept.
func (e *Engine) SetSettings(s Settings) {
	e.settings.Store(&s)
}

// Evaluate decides whether user may perform action with d. It records the
// notice timestamp when a notice is due.
func (e *Engine) Evaluate(user string, d *model.ItemDefinition, action model.Action) Decision {
	now := e.now()
	item := d.QualifiedID()
	key := action.Key()

	expiry, bucket, ok := e.lookup(&e.expiry, user, item, key)
	if !ok || !now.Before(expiry) {
		return Decision{Status: Ready}
	}

	dec := Decision{
		Status:    OnCooldown,
		Key:       bucket,
		Expiry:    expiry,
		Remaining: expiry.Sub(now),
	}

	s := e.Settings()
	msg := ""
	if p := d.ActionFor(action); p != nil && p.CooldownMessage != "" {
		msg = p.CooldownMessage
	} else if d.CooldownMessage != "" {
		msg = d.CooldownMessage
	}
	if !s.MessagesEnabled && msg == "" {
		return dec
	}

	throttle := Throttle(EffectiveCooldown(d, action, s.GlobalCooldown), EffectiveInterval(d, action, s.MessageInterval))
	if last, _, seen := e.lookup(&e.notice, user, item, key); seen && now.Sub(last) < throttle {
		return dec
	}

	if msg == "" {
		msg = s.Message
	}
	seconds := strconv.FormatInt(int64(dec.Remaining/time.Second), 10)
	dec.Message = strings.ReplaceAll(msg, RemainingPlaceholder, seconds)
	dec.Notify = true

	e.store(&e.notice, Key{User: user, Item: item, Action: key}, now)
	e.metrics.RecordCooldownNotice()
	return dec
}

// Applied describes a cooldown started by Apply.
type Applied struct {
	Key      model.ActionKey
	Expiry   time.Time
	Cooldown time.Duration
}

// Apply starts the cooldown after action ran. An action with its own
// cooldown gets its own bucket; every other action shares the item bucket.
func (e *Engine) Apply(user string, d *model.ItemDefinition, action model.Action) Applied {
	now := e.now()
	global := e.Settings().GlobalCooldown

	key := model.KeyItemWide
	cd := ItemCooldown(d, global)
	if p := d.ActionFor(action); p.HasCooldown() {
		key = action.Key()
		cd = p.Cooldown
	}

	expiry := now.Add(cd)
	e.store(&e.expiry, Key{User: user, Item: d.QualifiedID(), Action: key}, expiry)
	return Applied{Key: key, Expiry: expiry, Cooldown: cd}
}

// Remaining returns how long user must wait before action on item, where
// item is a qualified identifier.
func (e *Engine) Remaining(user, item string, action model.Action) (time.Duration, bool) {
	expiry, _, ok := e.lookup(&e.expiry, user, item, action.Key())
	if !ok {
		return 0, false
	}
	left := expiry.Sub(e.now())
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// IsOnCooldown reports whether action on item is blocked for user.
func (e *Engine) IsOnCooldown(user, item string, action model.Action) bool {
	_, ok := e.Remaining(user, item, action)
	return ok
}

// EndSession forgets every expiry and notice recorded for user.
func (e *Engine) EndSession(user string) {
	v, ok := e.users.LoadAndDelete(user)
	if !ok {
		return
	}
	v.(*sync.Map).Range(func(k, _ any) bool {
		e.expiry.Delete(k)
		e.notice.Delete(k)
		return true
	})
}

// lookup reads table under the action key, falling back to the item key.
func (e *Engine) lookup(table *sync.Map, user, item string, key model.ActionKey) (time.Time, model.ActionKey, bool) {
	if v, ok := table.Load(Key{User: user, Item: item, Action: key}); ok {
		return v.(time.Time), key, true
	}
	if v, ok := table.Load(Key{User: user, Item: item, Action: model.KeyItemWide}); ok {
		return v.(time.Time), model.KeyItemWide, true
	}
	return time.Time{}, "", false
}

func (e *Engine) store(table *sync.Map, k Key, t time.Time) {
	table.Store(k, t)
	idx, _ := e.users.LoadOrStore(k.User, &sync.Map{})
	idx.(*sync.Map).Store(k, struct{}{})
}
