// Package interaction turns host events into item decisions. It resolves
// the held item, applies the cooldown rules, dispatches bound commands and
// keeps the inventory snapshot in step with what users hold.
package interaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/internal/command"
	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/internal/cooldown"
	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/internal/inventory"
	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/internal/session"
	"github.com/pitabwire/coreitems/model"
)

// CatalogSource produces a fresh set of catalogs.
type CatalogSource interface {
	Load() ([]*definition.Catalog, error)
}

// ConfigSource reads the current configuration from disk.
type ConfigSource func() (*config.Config, error)

// ReloadHook receives the configuration read during Reload.
type ReloadHook func(ctx context.Context, cfg *config.Config)

// InteractEvent is a primary or secondary action performed by a user while
// holding an item.
type InteractEvent struct {
	UserID      string             `json:"user_id"`
	UserName    string             `json:"user_name,omitempty"`
	Item        model.ObservedItem `json:"item"`
	Action      model.Action       `json:"action"`
	TargetBlock bool               `json:"target_block"`
}

// Outcome tells the host what to do with an interaction.
type Outcome struct {
	Matched          bool         `json:"matched"`
	Item             string       `json:"item,omitempty"`
	Action           model.Action `json:"action,omitempty"`
	Executed         bool         `json:"executed"`
	Suppressed       bool         `json:"suppressed"`
	Cancel           bool         `json:"cancel"`
	Command          string       `json:"command,omitempty"`
	Message          string       `json:"message,omitempty"`
	RemainingMs      int64        `json:"remaining_ms,omitempty"`
	CooldownMs       int64        `json:"cooldown_ms,omitempty"`
	ShowHostCooldown bool         `json:"show_item_cooldown,omitempty"`
}

// DropOutcome tells the host whether a drop may proceed.
type DropOutcome struct {
	Matched bool   `json:"matched"`
	Item    string `json:"item,omitempty"`
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// Service wires the core components together for host events. Events for one
// user are expected to arrive serially.
type Service struct {
	source     CatalogSource
	registry   *definition.Registry
	matcher    inventory.Matcher
	cooldowns  *cooldown.Engine
	tracker    *inventory.Tracker
	sessions   *session.Registry
	dispatcher command.Dispatcher
	store      inventory.Store
	config     ConfigSource
	hooks      []ReloadHook
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists inventory counts after scans. Without a store nothing is
// persisted.
func WithStore(store inventory.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithConfigSource makes Reload read the configuration again, swap the
// cooldown settings and pass the result to hooks.
func WithConfigSource(src ConfigSource, hooks ...ReloadHook) Option {
	return func(s *Service) {
		s.config = src
		s.hooks = append(s.hooks, hooks...)
	}
}

// WithMetrics records interaction metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the clock used to stamp executions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. A nil dispatcher logs commands instead of
// running them.
func NewService(
	source CatalogSource,
	registry *definition.Registry,
	matcher inventory.Matcher,
	cooldowns *cooldown.Engine,
	tracker *inventory.Tracker,
	sessions *session.Registry,
	dispatcher command.Dispatcher,
	opts ...Option,
) *Service {
	s := &Service{
		source:     source,
		registry:   registry,
		matcher:    matcher,
		cooldowns:  cooldowns,
		tracker:    tracker,
		sessions:   sessions,
		dispatcher: dispatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.dispatcher == nil {
		s.dispatcher = command.NewLogDispatcher(s.logger)
	}
	return s
}

// Persistent reports whether counts are saved to a store.
func (s *Service) Persistent() bool { return s.store != nil }

// Interact resolves and handles one interaction.
func (s *Service) Interact(ctx context.Context, ev InteractEvent) Outcome {
	ctx, span := observability.StartSpan(ctx, observability.SpanInteract,
		observability.AttrUserID.String(ev.UserID),
		observability.AttrAction.String(string(ev.Action)),
	)
	defer span.End()
	logger := observability.UserLogger(ctx, s.logger, ev.UserID)
	record := func(outcome string) {
		span.SetAttributes(observability.AttrOutcome.String(outcome))
		s.metrics.RecordInteraction(string(ev.Action), outcome)
	}

	// 1. Resolve the held item.
	def, ok := s.matcher.Match(ev.Item)
	if !ok {
		record("unmatched")
		return Outcome{}
	}
	item := def.QualifiedID()
	span.SetAttributes(observability.ItemAttrs(def)...)
	out := Outcome{Matched: true, Item: item, Action: ev.Action}

	// 2. Refuse while on cooldown.
	dec := s.cooldowns.Evaluate(ev.UserID, def, ev.Action)
	if dec.Status == cooldown.OnCooldown {
		out.Suppressed = true
		out.Cancel = true
		out.RemainingMs = dec.Remaining.Milliseconds()
		if dec.Notify {
			out.Message = dec.Message
		}
		logger.Debug("interaction on cooldown",
			observability.ItemField(def),
			zap.String("bucket", string(dec.Key)),
			zap.Duration("remaining", dec.Remaining),
			zap.Bool("notify", dec.Notify),
		)
		record("suppressed")
		return out
	}

	// 3. Nothing bound passes through.
	props := def.ActionFor(ev.Action)
	if props == nil || props.Command == "" {
		record("unbound")
		return out
	}

	// 4. Run the command and start the cooldown.
	name := ev.UserName
	if name == "" {
		name = s.sessions.Name(ev.UserID)
	}
	exec := command.Execution{
		ID:       uuid.NewString(),
		UserID:   ev.UserID,
		UserName: name,
		Item:     item,
		Action:   ev.Action,
		Command:  command.Substitute(props.Command, name),
		IssuedAt: s.now().UTC(),
	}
	_ = command.Dispatch(ctx, s.dispatcher, exec, s.metrics, s.logger)

	applied := s.cooldowns.Apply(ev.UserID, def, ev.Action)

	out.Executed = true
	out.Command = exec.Command
	out.Cancel = ev.TargetBlock && def.CancelFor(ev.Action)
	out.CooldownMs = applied.Cooldown.Milliseconds()
	out.ShowHostCooldown = props.ShowHostCooldown || def.ShowHostCooldown

	logger.Debug("interaction executed",
		observability.ItemField(def),
		zap.String("command", exec.Command),
		zap.Duration("cooldown", applied.Cooldown),
	)
	record("executed")

	// 5. Commands may change holdings.
	s.rescan(ev.UserID)
	s.persist(ctx)
	return out
}

// Grant renders the item a user should receive. A missing namespace and a
// missing item return the same error.
func (s *Service) Grant(ctx context.Context, user, namespace, id string) (model.ItemStack, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanGrant,
		observability.AttrUserID.String(user),
		observability.AttrNamespace.String(namespace),
		observability.AttrItemID.String(id),
	)
	def, ok := s.registry.ResolveItem(namespace, id)
	if !ok {
		err := model.NewItemNotFoundError(namespace, id)
		observability.EndSpanWithError(span, err)
		return model.ItemStack{}, err
	}
	span.End()
	observability.UserLogger(ctx, s.logger, user).Info("granting custom item", observability.ItemField(def))
	return def.Stack(), nil
}

// Join records a connected user and scans any holdings reported with it.
func (s *Service) Join(ctx context.Context, user, name string, held []model.ObservedItem) map[string]int {
	sess := s.sessions.Join(user, name)
	if held != nil {
		sess = s.sessions.Update(user, held)
	}
	observability.UserLogger(ctx, s.logger, user).Info("user joined", zap.Int("held", len(held)))
	return s.scan(sess)
}

// ItemGranted records holdings after the host handed out an item, rescans
// and persists before returning.
func (s *Service) ItemGranted(ctx context.Context, user string, held []model.ObservedItem) map[string]int {
	counts := s.scan(s.sessions.Update(user, held))
	s.persist(ctx)
	return counts
}

// HeldChanged records holdings after the user switched items.
func (s *Service) HeldChanged(_ context.Context, user string, held []model.ObservedItem) map[string]int {
	return s.scan(s.sessions.Update(user, held))
}

// Drop decides whether a user may drop item.
func (s *Service) Drop(ctx context.Context, user string, item model.ObservedItem) DropOutcome {
	def, ok := s.matcher.Match(item)
	if !ok {
		return DropOutcome{Allowed: true}
	}
	out := DropOutcome{Matched: true, Item: def.QualifiedID(), Allowed: def.Droppable}
	if !def.Droppable {
		out.Message = def.DropMessage
		observability.UserLogger(ctx, s.logger, user).Debug("drop refused", observability.ItemField(def))
	}
	s.metrics.RecordDrop(out.Allowed)
	return out
}

// SessionEnded forgets the user's cooldowns and session and reports whether
// a session was open. Tracked counts are kept.
func (s *Service) SessionEnded(ctx context.Context, user string) bool {
	s.cooldowns.EndSession(user)
	if !s.sessions.Leave(user) {
		return false
	}
	observability.UserLogger(ctx, s.logger, user).Info("user left")
	return true
}

// Cooldown is the wait before an action on an item may run again.
type Cooldown struct {
	Item      string
	Active    bool
	Remaining time.Duration
}

// Remaining returns the wait before user may perform action on item, where
// item is "namespace:id" in any case. Items that do not resolve return a
// not-found error.
func (s *Service) Remaining(user, item string, action model.Action) (Cooldown, error) {
	def, ok := s.registry.ResolveQualified(item)
	if !ok {
		ns, id, _ := strings.Cut(item, ":")
		return Cooldown{}, model.NewItemNotFoundError(ns, id)
	}
	left, active := s.cooldowns.Remaining(user, def.QualifiedID(), action)
	return Cooldown{Item: def.QualifiedID(), Active: active, Remaining: left}, nil
}

// Reload reads the configuration again when a source is set, loads every
// catalog again, swaps the registry, rescans connected users and persists.
// Nothing changes when either the configuration or the catalogs fail to
// load.
func (s *Service) Reload(ctx context.Context) (*definition.Snapshot, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanReload)
	logger := observability.LoggerFrom(ctx, s.logger)

	var cfg *config.Config
	if s.config != nil {
		c, err := s.config()
		if err != nil {
			s.metrics.RecordCatalogReload("error")
			logger.Error("config reload failed", zap.Error(err))
			observability.EndSpanWithError(span, err)
			return nil, fmt.Errorf("reload config: %w", err)
		}
		cfg = c
	}

	catalogs, err := s.source.Load()
	if err != nil {
		s.metrics.RecordCatalogReload("error")
		logger.Error("catalog reload failed", zap.Error(err))
		observability.EndSpanWithError(span, err)
		return nil, fmt.Errorf("reload catalogs: %w", err)
	}

	if cfg != nil {
		s.cooldowns.SetSettings(cooldown.SettingsFrom(cfg.ItemInteractions))
		for _, hook := range s.hooks {
			hook(ctx, cfg)
		}
	}

	version := s.registry.Replace(catalogs)
	snap := s.registry.Snapshot()
	span.SetAttributes(
		observability.AttrCatalogVersion.Int64(int64(version)),
		observability.AttrCatalogs.Int(snap.CatalogCount()),
		observability.AttrItems.Int(snap.DefinitionCount()),
	)
	s.metrics.RecordCatalogReload("ok")
	s.metrics.SetCatalogsLoaded(snap.CatalogCount(), snap.DefinitionCount())
	logger.Info("reloaded item catalogs",
		zap.Uint64("version", version),
		zap.Int("catalogs", snap.CatalogCount()),
		zap.Int("items", snap.DefinitionCount()),
		zap.String("checksum", snap.Checksum()),
	)

	s.ScanAll(ctx)
	s.persist(ctx)
	span.End()
	return snap, nil
}

// ScanAll rescans every connected user. A user whose holdings change while
// the scan runs keeps the newer result.
func (s *Service) ScanAll(ctx context.Context) {
	online := s.sessions.Online()
	_, span := observability.StartSpan(ctx, observability.SpanScanAll,
		observability.AttrUsers.Int(len(online)),
	)
	defer span.End()
	for _, sess := range online {
		s.scan(sess)
	}
}

// Save writes every tracked count to the store.
func (s *Service) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanSave)

	start := time.Now()
	all := s.tracker.AllCounts()
	span.SetAttributes(observability.AttrUsers.Int(len(all)))
	err := s.store.Save(ctx, all)
	status := "ok"
	if err != nil {
		status = "error"
		err = fmt.Errorf("save inventory: %w", err)
	}
	s.metrics.RecordInventorySave(status, time.Since(start))
	observability.EndSpanWithError(span, err)
	if err == nil {
		observability.LoggerFrom(ctx, s.logger).Debug("saved inventory data", zap.Int("users", len(all)))
	}
	return err
}

// Restore seeds the tracker from the store.
func (s *Service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	all, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	s.tracker.Restore(all)
	return nil
}

func (s *Service) rescan(user string) {
	if sess, ok := s.sessions.Get(user); ok {
		s.scan(sess)
	}
}

func (s *Service) scan(sess *session.Session) map[string]int {
	counts, _ := s.tracker.ScanAt(sess.UserID, sess.Seq, sess.Held)
	return counts
}

func (s *Service) persist(ctx context.Context) {
	if err := s.Save(ctx); err != nil {
		observability.LoggerFrom(ctx, s.logger).Error("inventory save failed", zap.Error(err))
	}
}

var _ inventory.Persister = (*Service)(nil)
