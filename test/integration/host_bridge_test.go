package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/pitabwire/coreitems/internal/transport"
	"github.com/pitabwire/coreitems/model"
)

func TestHostBridge_InteractionRoundTrip(t *testing.T) {
	h := NewTestHarness(t)
	host := h.DialHost(h.GenerateToken(HostClaims()))

	host.Send(transport.InboundFrame{
		Type:      transport.FrameJoin,
		RequestID: "r-1",
		UserID:    "u-1",
		UserName:  "Steve",
		Held:      []model.ObservedItem{SwordItem()},
	})
	counts := host.Expect(transport.FrameCounts)
	if counts.RequestID != "r-1" || counts.Counts["arena:sword"] != 1 {
		t.Fatalf("counts frame = %s", FormatJSON(counts))
	}

	host.Send(transport.InboundFrame{
		Type:        transport.FrameInteract,
		RequestID:   "r-2",
		UserID:      "u-1",
		Action:      "primary",
		Item:        SwordItem(),
		TargetBlock: true,
	})
	outcome := host.Expect(transport.FrameOutcome)
	if outcome.RequestID != "r-2" || outcome.Outcome == nil || !outcome.Outcome.Executed {
		t.Fatalf("outcome frame = %s", FormatJSON(outcome))
	}

	// The command reaches the host before the outcome that caused it.
	skipped := host.Skipped()
	if len(skipped) != 1 || skipped[0].Type != transport.FrameExecute {
		t.Fatalf("frames before outcome = %s", FormatJSON(skipped))
	}
	exec := skipped[0].Execution
	if exec == nil || exec.Command != "heal Steve" || exec.Item != "arena:sword" || exec.UserID != "u-1" {
		t.Errorf("execution = %s", FormatJSON(exec))
	}
}

func TestHostBridge_ReceivesHTTPExecutions(t *testing.T) {
	h := NewTestHarness(t)
	host := h.DialHost(h.GenerateToken(HostClaims()))
	token := h.GenerateToken(HostClaims())

	h.AssertStatus(t, h.POST("/v1/users/u-7/interactions", map[string]any{
		"action":    "primary",
		"item":      CompassItem(),
		"user_name": "Alex",
	}, token), http.StatusOK)

	f := host.Expect(transport.FrameExecute)
	if f.Execution == nil || f.Execution.Command != "menu open Alex" || f.UserID != "u-7" {
		t.Errorf("execute frame = %s", FormatJSON(f))
	}
}

func TestHostBridge_EveryHostReceivesExecutions(t *testing.T) {
	h := NewTestHarness(t)
	first := h.DialHost(h.GenerateToken(HostClaims()))
	second := h.DialHost(h.GenerateToken(HostClaims()))

	h.AssertStatus(t, h.POST("/v1/users/u-7/interactions", map[string]any{
		"action": "primary",
		"item":   CompassItem(),
	}, h.GenerateToken(HostClaims())), http.StatusOK)

	for _, host := range []*HostClient{first, second} {
		if f := host.Expect(transport.FrameExecute); f.Execution == nil {
			t.Errorf("execute frame = %s", FormatJSON(f))
		}
	}
}

func TestHostBridge_HeldGrantDropLeave(t *testing.T) {
	h := NewTestHarness(t)
	host := h.DialHost(h.GenerateToken(HostClaims()))

	host.Send(transport.InboundFrame{Type: transport.FrameJoin, RequestID: "j", UserID: "u-1", UserName: "Steve"})
	host.Expect(transport.FrameCounts)

	host.Send(transport.InboundFrame{Type: transport.FrameHeld, RequestID: "h", UserID: "u-1",
		Held: []model.ObservedItem{WandItem()}})
	if f := host.Expect(transport.FrameCounts); f.Counts["arena:wand"] != 1 {
		t.Errorf("held counts = %v", f.Counts)
	}

	relic := RelicItem()
	relic.Amount = 2
	host.Send(transport.InboundFrame{Type: transport.FrameGrant, RequestID: "g", UserID: "u-1",
		Held: []model.ObservedItem{WandItem(), relic}})
	if f := host.Expect(transport.FrameCounts); f.Counts["arena:relic"] != 2 || f.Counts["arena:wand"] != 1 {
		t.Errorf("grant counts = %v", f.Counts)
	}

	host.Send(transport.InboundFrame{Type: transport.FrameDrop, RequestID: "d", UserID: "u-1", Item: RelicItem()})
	drop := host.Expect(transport.FrameDropOutcome)
	if drop.DropOutcome == nil || drop.DropOutcome.Allowed || drop.DropOutcome.Message != "§cYou cannot drop this" {
		t.Errorf("drop frame = %s", FormatJSON(drop))
	}

	host.Send(transport.InboundFrame{Type: transport.FrameLeave, RequestID: "l", UserID: "u-1"})
	host.Send(transport.InboundFrame{Type: transport.FramePing, RequestID: "p"})
	// Leave has no reply, so the next frame is the pong.
	if f := host.Next(2 * time.Second); f.Type != transport.FramePong || f.RequestID != "p" {
		t.Errorf("frame after leave = %s", FormatJSON(f))
	}

	if _, ok := h.Sessions.Get("u-1"); ok {
		t.Error("session still open after leave")
	}
	// Counts outlive the session.
	if got := h.Tracker.Count("u-1", "arena:relic"); got != 2 {
		t.Errorf("relic count = %d, want 2", got)
	}
}

func TestHostBridge_SearchPrompt(t *testing.T) {
	h := NewTestHarness(t)
	host := h.DialHost(h.GenerateToken(HostClaims()))

	host.Send(transport.InboundFrame{Type: transport.FrameSearch, RequestID: "s-1", UserID: "u-1"})
	deadlineWait(t, func() bool { return h.Prompts.Awaiting("u-1") })

	host.Send(transport.InboundFrame{Type: transport.FrameSearchInput, RequestID: "s-2", UserID: "u-1", Input: "  LOB "})
	f := host.Expect(transport.FrameSearchResults)
	if f.Search == nil || f.Search.Term != "lob" || len(f.Search.Matches) != 1 || f.Search.Matches[0].Name != "lobby" {
		t.Fatalf("search results = %s", FormatJSON(f))
	}

	// The prompt closes after one answer.
	host.Send(transport.InboundFrame{Type: transport.FrameSearchInput, RequestID: "s-3", UserID: "u-1", Input: "arena"})
	e := host.Expect(transport.FrameError)
	if e.Error == nil || e.Error.Code != model.ErrNotAwaiting || e.RequestID != "s-3" {
		t.Errorf("error frame = %s", FormatJSON(e))
	}
}

func TestHostBridge_SearchCancel(t *testing.T) {
	h := NewTestHarness(t)
	host := h.DialHost(h.GenerateToken(HostClaims()))

	host.Send(transport.InboundFrame{Type: transport.FrameSearch, RequestID: "s-1", UserID: "u-1"})
	deadlineWait(t, func() bool { return h.Prompts.Awaiting("u-1") })

	host.Send(transport.InboundFrame{Type: transport.FrameSearchInput, RequestID: "s-2", UserID: "u-1", Input: "Cancel"})
	f := host.Expect(transport.FrameSearchResults)
	if f.Search == nil || !f.Search.Cancelled || len(f.Search.Matches) != 0 {
		t.Errorf("cancel results = %s", FormatJSON(f))
	}
}

func TestHostBridge_SearchTimeout(t *testing.T) {
	h := NewTestHarness(t, WithPromptTimeout(100*time.Millisecond))
	host := h.DialHost(h.GenerateToken(HostClaims()))

	host.Send(transport.InboundFrame{Type: transport.FrameSearch, RequestID: "s-1", UserID: "u-1"})
	f := host.Expect(transport.FrameSearchTimeout)
	if f.RequestID != "s-1" || f.UserID != "u-1" {
		t.Errorf("timeout frame = %s", FormatJSON(f))
	}
	if h.Prompts.Awaiting("u-1") {
		t.Error("prompt still open after timeout")
	}
}

func TestHostBridge_BadFrames(t *testing.T) {
	h := NewTestHarness(t)
	host := h.DialHost(h.GenerateToken(HostClaims()))

	tests := []struct {
		name  string
		frame transport.InboundFrame
		code  string
	}{
		{"missing user", transport.InboundFrame{Type: transport.FrameJoin, RequestID: "b-1"}, model.ErrValidationError},
		{"bad action", transport.InboundFrame{Type: transport.FrameInteract, RequestID: "b-2", UserID: "u-1", Action: "jump"}, model.ErrValidationError},
		{"unknown type", transport.InboundFrame{Type: "teleport", RequestID: "b-3", UserID: "u-1"}, model.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host.Send(tt.frame)
			f := host.Expect(transport.FrameError)
			if f.Error == nil || f.Error.Code != tt.code || f.RequestID != tt.frame.RequestID {
				t.Errorf("error frame = %s", FormatJSON(f))
			}
		})
	}
}
