package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/coreitems/internal/search"
	"github.com/pitabwire/coreitems/model"
)

type catalogListResponse struct {
	Catalogs []search.CatalogSummary `json:"catalogs"`
}

type itemSummary struct {
	ID          string         `json:"id"`
	QualifiedID string         `json:"qualified_id"`
	Material    model.Material `json:"material"`
	DisplayName string         `json:"display_name,omitempty"`
}

type itemPageResponse struct {
	Catalog     string        `json:"catalog"`
	Page        search.Page   `json:"page"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
	Items       []itemSummary `json:"items"`
}

type itemDetailResponse struct {
	Definition *model.ItemDefinition `json:"definition"`
	Stack      model.ItemStack       `json:"stack"`
}

type reloadResponse struct {
	Version     uint64 `json:"version"`
	Catalogs    int    `json:"catalogs"`
	Definitions int    `json:"definitions"`
	Checksum    string `json:"checksum"`
}

func (h *handlers) listCatalogs(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, catalogListResponse{Catalogs: search.Summaries(h.registry)})
}

func (h *handlers) searchCatalogs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, catalogListResponse{
		Catalogs: search.Catalogs(h.registry, r.URL.Query().Get("q")),
	})
}

func (h *handlers) listItems(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	c, ok := h.registry.Catalog(namespace)
	if !ok {
		WriteError(w, model.NewCatalogNotFoundError(namespace))
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, model.NewBadRequestError("page must be an integer"))
			return
		}
		page = n
	}

	defs := c.Definitions()
	p := search.Paginate(len(defs), page, h.pageSize)
	items := make([]itemSummary, 0, p.End-p.Start)
	for _, d := range search.Slice(defs, p) {
		items = append(items, itemSummary{
			ID:          d.ID,
			QualifiedID: d.QualifiedID(),
			Material:    d.Material,
			DisplayName: d.DisplayName,
		})
	}

	WriteJSON(w, http.StatusOK, itemPageResponse{
		Catalog:     c.Name(),
		Page:        p,
		HasNext:     p.HasNext(),
		HasPrevious: p.HasPrevious(),
		Items:       items,
	})
}

func (h *handlers) getItem(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	id := chi.URLParam(r, "itemId")
	def, ok := h.registry.ResolveItem(namespace, id)
	if !ok {
		WriteError(w, model.NewItemNotFoundError(namespace, id))
		return
	}
	WriteJSON(w, http.StatusOK, itemDetailResponse{Definition: def, Stack: def.Stack()})
}

func (h *handlers) reloadCatalogs(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Reload(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, reloadResponse{
		Version:     snap.Version(),
		Catalogs:    snap.CatalogCount(),
		Definitions: snap.DefinitionCount(),
		Checksum:    snap.Checksum(),
	})
}
