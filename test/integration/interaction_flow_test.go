package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/internal/interaction"
	"github.com/pitabwire/coreitems/internal/transport"
	"github.com/pitabwire/coreitems/model"
)

type countsBody struct {
	UserID string         `json:"user_id"`
	Counts map[string]int `json:"counts"`
}

type cooldownBody struct {
	UserID      string `json:"user_id"`
	Item        string `json:"item"`
	Action      string `json:"action"`
	OnCooldown  bool   `json:"on_cooldown"`
	RemainingMs int64  `json:"remaining_ms"`
}

func join(t *testing.T, h *TestHarness, token, user, name string, held ...model.ObservedItem) countsBody {
	t.Helper()
	var body countsBody
	h.AssertJSON(t, h.POST("/v1/users/"+user+"/session", map[string]any{
		"name": name,
		"held": held,
	}, token), http.StatusOK, &body)
	return body
}

func interact(t *testing.T, h *TestHarness, token, user, action string, item model.ObservedItem, targetBlock bool) interaction.Outcome {
	t.Helper()
	var out interaction.Outcome
	h.AssertJSON(t, h.POST("/v1/users/"+user+"/interactions", map[string]any{
		"action":       action,
		"item":         item,
		"target_block": targetBlock,
	}, token), http.StatusOK, &out)
	return out
}

func TestInteraction_ExecutesBoundCommand(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())

	joined := join(t, h, token, "u-1", "Steve", SwordItem())
	if joined.Counts["arena:sword"] != 1 {
		t.Errorf("join counts = %v", joined.Counts)
	}

	out := interact(t, h, token, "u-1", "primary", SwordItem(), true)
	if !out.Matched || !out.Executed || out.Suppressed {
		t.Fatalf("outcome = %s", FormatJSON(out))
	}
	if out.Item != "arena:sword" || out.Command != "heal Steve" {
		t.Errorf("item = %q, command = %q", out.Item, out.Command)
	}
	if !out.Cancel {
		t.Error("cancel = false, want true for a block target with cancel_right_click default")
	}
	if out.CooldownMs < 2900 || out.CooldownMs > 3000 {
		t.Errorf("cooldown_ms = %d, want about 3000", out.CooldownMs)
	}

	if cmds := h.Commands.Commands(); len(cmds) != 1 || cmds[0] != "heal Steve" {
		t.Errorf("dispatched = %v", cmds)
	}
}

func TestInteraction_CooldownSuppressesAndNotifiesOnce(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Steve", SwordItem())

	interact(t, h, token, "u-1", "primary", SwordItem(), false)

	first := interact(t, h, token, "u-1", "primary", SwordItem(), false)
	if !first.Suppressed || first.Executed || !first.Cancel {
		t.Fatalf("first retry = %s", FormatJSON(first))
	}
	if first.Message != "§cBlade recharging" {
		t.Errorf("message = %q, want the action-level cooldown message", first.Message)
	}
	if first.RemainingMs <= 0 {
		t.Errorf("remaining_ms = %d, want positive", first.RemainingMs)
	}

	second := interact(t, h, token, "u-1", "primary", SwordItem(), false)
	if !second.Suppressed || second.Message != "" {
		t.Errorf("second retry = %s, want a suppressed outcome without a notice", FormatJSON(second))
	}

	if got := len(h.Commands.Commands()); got != 1 {
		t.Errorf("dispatched = %d, want 1", got)
	}
	if got := testutil.ToFloat64(h.Metrics.CooldownNoticesTotal); got != 1 {
		t.Errorf("cooldown notices = %v, want 1", got)
	}
}

func TestInteraction_ActionBucketsAreSeparate(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Steve", SwordItem())

	interact(t, h, token, "u-1", "primary", SwordItem(), false)

	// The secondary binding has no cooldown of its own and is not blocked by
	// the primary bucket.
	out := interact(t, h, token, "u-1", "secondary", SwordItem(), false)
	if !out.Executed || out.Command != "say Steve swings" {
		t.Fatalf("secondary = %s", FormatJSON(out))
	}

	var primary cooldownBody
	h.AssertJSON(t, h.GET("/v1/users/u-1/cooldowns?item=arena:sword&action=primary", token), http.StatusOK, &primary)
	if !primary.OnCooldown || primary.RemainingMs <= 500 {
		t.Errorf("primary cooldown = %+v", primary)
	}

	var secondary cooldownBody
	h.AssertJSON(t, h.GET("/v1/users/u-1/cooldowns?item=arena:sword&action=secondary", token), http.StatusOK, &secondary)
	if !secondary.OnCooldown || secondary.RemainingMs > 500 {
		t.Errorf("secondary cooldown = %+v, want the global item-wide cooldown", secondary)
	}
}

func TestInteraction_CooldownExpires(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Alex", WandItem())

	if out := interact(t, h, token, "u-1", "primary", WandItem(), false); !out.Executed {
		t.Fatalf("first = %s", FormatJSON(out))
	}
	if out := interact(t, h, token, "u-1", "primary", WandItem(), false); !out.Suppressed {
		t.Fatalf("immediate retry = %s", FormatJSON(out))
	}

	time.Sleep(80 * time.Millisecond)

	out := interact(t, h, token, "u-1", "primary", WandItem(), false)
	if !out.Executed || out.Command != "effect give Alex speed" {
		t.Errorf("after expiry = %s", FormatJSON(out))
	}
}

func TestInteraction_CooldownsArePerUser(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Steve", SwordItem())
	join(t, h, token, "u-2", "Alex", SwordItem())

	interact(t, h, token, "u-1", "primary", SwordItem(), false)
	out := interact(t, h, token, "u-2", "primary", SwordItem(), false)
	if !out.Executed || out.Command != "heal Alex" {
		t.Errorf("other user = %s", FormatJSON(out))
	}
}

func TestInteraction_LeavingClearsCooldowns(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Steve", SwordItem())
	interact(t, h, token, "u-1", "primary", SwordItem(), false)

	h.AssertStatus(t, h.DELETE("/v1/users/u-1/session", token), http.StatusNoContent)
	h.AssertError(t, h.DELETE("/v1/users/u-1/session", token), http.StatusNotFound, model.ErrSessionNotFound)

	join(t, h, token, "u-1", "Steve", SwordItem())
	if out := interact(t, h, token, "u-1", "primary", SwordItem(), false); !out.Executed {
		t.Errorf("after rejoin = %s", FormatJSON(out))
	}
}

func TestInteraction_Passthrough(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Steve")

	t.Run("unmatched item", func(t *testing.T) {
		out := interact(t, h, token, "u-1", "primary", PlainItem(), true)
		if out.Matched || out.Executed || out.Cancel {
			t.Errorf("outcome = %s", FormatJSON(out))
		}
	})

	t.Run("unbound action", func(t *testing.T) {
		out := interact(t, h, token, "u-1", "primary", RelicItem(), true)
		if !out.Matched || out.Executed || out.Suppressed {
			t.Errorf("outcome = %s", FormatJSON(out))
		}
	})

	t.Run("cancel disabled", func(t *testing.T) {
		out := interact(t, h, token, "u-1", "primary", CompassItem(), true)
		if !out.Executed || out.Cancel {
			t.Errorf("outcome = %s", FormatJSON(out))
		}
	})

	t.Run("material case", func(t *testing.T) {
		item := SwordItem()
		item.Material = "diamond_sword"
		out := interact(t, h, token, "u-1", "secondary", item, false)
		if !out.Matched {
			t.Errorf("outcome = %s", FormatJSON(out))
		}
	})
}

func TestInteraction_UserNameOverride(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())

	var out interaction.Outcome
	h.AssertJSON(t, h.POST("/v1/users/u-9/interactions", map[string]any{
		"action":    "primary",
		"item":      CompassItem(),
		"user_name": "Notch",
	}, token), http.StatusOK, &out)
	if out.Command != "menu open Notch" {
		t.Errorf("command = %q", out.Command)
	}
}

func TestInteraction_RequestValidation(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())

	t.Run("unknown action", func(t *testing.T) {
		body := h.AssertError(t, h.POST("/v1/users/u-1/interactions", map[string]any{
			"action": "middle",
			"item":   SwordItem(),
		}, token), http.StatusUnprocessableEntity, model.ErrValidationError)
		if len(body.Error.Details) != 1 || body.Error.Details[0].Field != "action" {
			t.Errorf("details = %+v", body.Error.Details)
		}
	})

	t.Run("join without name", func(t *testing.T) {
		h.AssertError(t, h.POST("/v1/users/u-1/session", map[string]any{}, token),
			http.StatusUnprocessableEntity, model.ErrValidationError)
	})

	t.Run("cooldown without item", func(t *testing.T) {
		h.AssertError(t, h.GET("/v1/users/u-1/cooldowns", token),
			http.StatusUnprocessableEntity, model.ErrValidationError)
	})
}

func TestInteraction_IdempotentReplay(t *testing.T) {
	h := NewTestHarness(t, WithIdempotency())
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Steve", SwordItem())

	body := map[string]any{"action": "primary", "item": SwordItem()}
	headers := map[string]string{transport.IdempotencyKeyHeader: "evt-42"}

	var first interaction.Outcome
	h.AssertJSON(t, h.POSTWithHeaders("/v1/users/u-1/interactions", body, token, headers), http.StatusOK, &first)

	resp := h.POSTWithHeaders("/v1/users/u-1/interactions", body, token, headers)
	if resp.Header.Get(transport.IdempotentReplayHeader) != "true" {
		t.Errorf("replay header = %q", resp.Header.Get(transport.IdempotentReplayHeader))
	}
	var replay interaction.Outcome
	h.AssertJSON(t, resp, http.StatusOK, &replay)

	if !replay.Executed || replay.Command != first.Command {
		t.Errorf("replay = %s, want the first outcome", FormatJSON(replay))
	}
	if got := len(h.Commands.Commands()); got != 1 {
		t.Errorf("dispatched = %d, want 1", got)
	}

	// Same key with another body conflicts.
	h.AssertError(t, h.POSTWithHeaders("/v1/users/u-1/interactions",
		map[string]any{"action": "secondary", "item": SwordItem()}, token, headers),
		http.StatusConflict, model.ErrConflict)
}

func TestInteraction_GrantAndHeldCounts(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())
	join(t, h, token, "u-1", "Steve")

	var stack model.ItemStack
	h.AssertJSON(t, h.POST("/v1/users/u-1/grants", map[string]any{"namespace": "arena", "item": "wand"}, token), http.StatusOK, &stack)
	if stack.Material != "BLAZE_ROD" || stack.CustomModelData == nil || *stack.CustomModelData != 12 {
		t.Errorf("stack = %s", FormatJSON(stack))
	}

	h.AssertError(t, h.POST("/v1/users/u-1/grants", map[string]any{"namespace": "arena", "item": "ghost"}, token),
		http.StatusNotFound, model.ErrItemNotFound)

	relics := RelicItem()
	relics.Amount = 3
	var granted countsBody
	h.AssertJSON(t, h.PUT("/v1/users/u-1/held", map[string]any{
		"held":    []model.ObservedItem{WandItem(), relics, PlainItem()},
		"granted": true,
	}, token), http.StatusOK, &granted)
	if granted.Counts["arena:wand"] != 1 || granted.Counts["arena:relic"] != 3 || len(granted.Counts) != 2 {
		t.Errorf("counts = %v", granted.Counts)
	}

	var inv countsBody
	h.AssertJSON(t, h.GET("/v1/users/u-1/inventory", token), http.StatusOK, &inv)
	if inv.Counts["arena:relic"] != 3 {
		t.Errorf("inventory = %v", inv.Counts)
	}

	var cleared countsBody
	h.AssertJSON(t, h.PUT("/v1/users/u-1/held", map[string]any{"held": []model.ObservedItem{}}, token), http.StatusOK, &cleared)
	if len(cleared.Counts) != 0 {
		t.Errorf("counts after clearing = %v", cleared.Counts)
	}
}

func TestInteraction_DropRules(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(HostClaims())

	tests := []struct {
		name    string
		item    model.ObservedItem
		matched bool
		allowed bool
		message string
	}{
		{"protected item", RelicItem(), true, false, "§cYou cannot drop this"},
		{"droppable item", SwordItem(), true, true, ""},
		{"vanilla item", PlainItem(), false, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out interaction.DropOutcome
			h.AssertJSON(t, h.POST("/v1/users/u-1/drops", map[string]any{"item": tt.item}, token), http.StatusOK, &out)
			if out.Matched != tt.matched || out.Allowed != tt.allowed || out.Message != tt.message {
				t.Errorf("drop = %s", FormatJSON(out))
			}
		})
	}
}

func TestInteraction_ReloadAppliesCooldownSettings(t *testing.T) {
	h := NewTestHarness(t)
	host := h.GenerateToken(HostClaims())
	operator := h.GenerateToken(OperatorClaims())
	join(t, h, host, "u-1", "Steve", SwordItem())

	out := interact(t, h, host, "u-1", "secondary", SwordItem(), false)
	if !out.Executed || out.CooldownMs != 500 {
		t.Fatalf("before reload: executed = %v, cooldown_ms = %d, want the 500ms global", out.Executed, out.CooldownMs)
	}

	h.EditConfig(func(c *config.Config) {
		c.ItemInteractions.GlobalCooldown = 5 * time.Second
		c.ItemInteractions.CooldownMessage = "&cHold on"
	})
	h.AssertStatus(t, h.POST("/v1/catalogs/reload", nil, operator), http.StatusOK)

	out = interact(t, h, host, "u-2", "secondary", SwordItem(), false)
	if !out.Executed || out.CooldownMs != 5000 {
		t.Fatalf("after reload: executed = %v, cooldown_ms = %d, want 5000", out.Executed, out.CooldownMs)
	}
	out = interact(t, h, host, "u-2", "secondary", SwordItem(), false)
	if !out.Suppressed || out.Message != "§cHold on" {
		t.Errorf("suppressed = %v, message = %q, want the reloaded notice", out.Suppressed, out.Message)
	}
}
