package cooldown

import (
	"time"

	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/model"
)

// Settings are the global fallbacks every item defers to.
type Settings struct {
	GlobalCooldown  time.Duration
	MessagesEnabled bool
	Message         string
	MessageInterval int
}

// DefaultSettings returns the built-in global settings.
func DefaultSettings() Settings {
	return Settings{
		GlobalCooldown:  500 * time.Millisecond,
		Message:         definition.TranslateColors("&cThis item is on cooldown!"),
		MessageInterval: 4,
	}
}

// SettingsFrom builds Settings from configuration. The message is colour
// translated.
func SettingsFrom(cfg config.ItemInteractionsConfig) Settings {
	return Settings{
		GlobalCooldown:  cfg.GlobalCooldown,
		MessagesEnabled: cfg.CooldownMessageEnabled,
		Message:         definition.TranslateColors(cfg.CooldownMessage),
		MessageInterval: cfg.CooldownMessageInterval,
	}
}

// EffectiveCooldown resolves the cooldown for action on d: the action's own
// value, then the item's, then global.
func EffectiveCooldown(d *model.ItemDefinition, action model.Action, global time.Duration) time.Duration {
	if p := d.ActionFor(action); p != nil && p.Cooldown > 0 {
		return p.Cooldown
	}
	return ItemCooldown(d, global)
}

// ItemCooldown resolves the item-wide cooldown: the item's value, then global.
func ItemCooldown(d *model.ItemDefinition, global time.Duration) time.Duration {
	if d.Cooldown > 0 {
		return d.Cooldown
	}
	return global
}

// EffectiveInterval resolves the message interval with the same tiers as
// EffectiveCooldown.
func EffectiveInterval(d *model.ItemDefinition, action model.Action, global int) int {
	if p := d.ActionFor(action); p != nil && p.CooldownMessageInterval > 0 {
		return p.CooldownMessageInterval
	}
	if d.CooldownMessageInterval > 0 {
		return d.CooldownMessageInterval
	}
	return global
}

// Throttle is the minimum gap between two cooldown notices: the effective
// cooldown spread over the effective interval, never below a millisecond.
func Throttle(cooldown time.Duration, interval int) time.Duration {
	if interval < 1 {
		interval = 1
	}
	t := cooldown / time.Duration(interval)
	if t < time.Millisecond {
		return time.Millisecond
	}
	return t
}
