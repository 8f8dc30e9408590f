package transport

import (
	"net/http"

	"github.com/pitabwire/coreitems/model"
)

type inventoryResponse struct {
	Users map[string]map[string]int `json:"users"`
}

func (h *handlers) allInventory(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, inventoryResponse{Users: h.tracker.AllCounts()})
}

func (h *handlers) saveInventory(w http.ResponseWriter, r *http.Request) {
	if !h.service.Persistent() {
		WriteError(w, model.NewUnavailableError("inventory persistence is disabled"))
		return
	}
	if err := h.service.Save(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
