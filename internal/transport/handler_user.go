package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/coreitems/internal/interaction"
	"github.com/pitabwire/coreitems/model"
)

type joinRequest struct {
	Name string               `json:"name" validate:"required"`
	Held []model.ObservedItem `json:"held"`
}

type interactRequest struct {
	Action      string             `json:"action" validate:"required,oneof=primary secondary"`
	Item        model.ObservedItem `json:"item"`
	TargetBlock bool               `json:"target_block"`
	UserName    string             `json:"user_name"`
}

type grantRequest struct {
	Namespace string `json:"namespace" validate:"required"`
	Item      string `json:"item" validate:"required"`
}

type heldRequest struct {
	Held    []model.ObservedItem `json:"held"`
	Granted bool                 `json:"granted"`
}

type dropRequest struct {
	Item model.ObservedItem `json:"item"`
}

type countsResponse struct {
	UserID string         `json:"user_id"`
	Counts map[string]int `json:"counts"`
}

type cooldownResponse struct {
	UserID      string       `json:"user_id"`
	Item        string       `json:"item"`
	Action      model.Action `json:"action"`
	OnCooldown  bool         `json:"on_cooldown"`
	RemainingMs int64        `json:"remaining_ms"`
}

func (h *handlers) joinSession(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	var req joinRequest
	if _, err := readBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	counts := h.service.Join(r.Context(), user, req.Name, req.Held)
	WriteJSON(w, http.StatusOK, countsResponse{UserID: user, Counts: counts})
}

func (h *handlers) endSession(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	if !h.service.SessionEnded(r.Context(), user) {
		WriteError(w, model.NewSessionNotFoundError(user))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) interact(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	var req interactRequest
	body, err := readBody(r, &req)
	if err != nil {
		WriteError(w, err)
		return
	}
	action, _ := model.ParseAction(req.Action)

	h.idempotent(w, r, user, body, func(ctx context.Context) (any, error) {
		return h.service.Interact(ctx, interaction.InteractEvent{
			UserID:      user,
			UserName:    req.UserName,
			Item:        req.Item.Normalized(),
			Action:      action,
			TargetBlock: req.TargetBlock,
		}), nil
	})
}

func (h *handlers) grant(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	var req grantRequest
	body, err := readBody(r, &req)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.idempotent(w, r, user, body, func(ctx context.Context) (any, error) {
		return h.service.Grant(ctx, user, req.Namespace, req.Item)
	})
}

func (h *handlers) updateHeld(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	var req heldRequest
	if _, err := readBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	held := normalizeAll(req.Held)

	var counts map[string]int
	if req.Granted {
		counts = h.service.ItemGranted(r.Context(), user, held)
	} else {
		counts = h.service.HeldChanged(r.Context(), user, held)
	}
	WriteJSON(w, http.StatusOK, countsResponse{UserID: user, Counts: counts})
}

func (h *handlers) drop(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	var req dropRequest
	if _, err := readBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.service.Drop(r.Context(), user, req.Item.Normalized()))
}

func (h *handlers) cooldowns(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	q := r.URL.Query()
	item := q.Get("item")
	if item == "" {
		WriteValidationError(w, []model.FieldError{{Field: "item", Code: "REQUIRED", Message: "failed required"}})
		return
	}
	action := model.ActionPrimary
	if raw := q.Get("action"); raw != "" {
		a, ok := model.ParseAction(raw)
		if !ok {
			WriteValidationError(w, []model.FieldError{{Field: "action", Code: "ONEOF", Message: "failed oneof"}})
			return
		}
		action = a
	}

	cd, err := h.service.Remaining(user, item, action)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, cooldownResponse{
		UserID:      user,
		Item:        cd.Item,
		Action:      action,
		OnCooldown:  cd.Active,
		RemainingMs: cd.Remaining.Milliseconds(),
	})
}

func (h *handlers) userInventory(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	WriteJSON(w, http.StatusOK, countsResponse{UserID: user, Counts: h.tracker.Counts(user)})
}

func normalizeAll(items []model.ObservedItem) []model.ObservedItem {
	out := make([]model.ObservedItem, len(items))
	for i, it := range items {
		out[i] = it.Normalized()
	}
	return out
}
