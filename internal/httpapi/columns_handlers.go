package httpapi

import (
	"net/http"

	"jobboard-engine/internal/events"
	"jobboard-engine/internal/store"
)

// ColumnsHandler manages a board's custom columns. Every route here changes
// the board, so each one needs the PIN.
type ColumnsHandler struct {
	Deps Deps
}

func (h ColumnsHandler) authorize(w http.ResponseWriter, r *http.Request, slug string) bool {
	return authorizeBoard(h.Deps, w, r, slug)
}

// layout loads the column list and resolved order, and tells subscribers.
func (h ColumnsHandler) layout(w http.ResponseWriter, r *http.Request, slug string) (columnsResp, bool) {
	b, err := store.GetBoard(r.Context(), h.Deps.DB, slug)
	if err != nil {
		writeStoreError(w, r, err)
		return columnsResp{}, false
	}
	cols, err := store.ListColumns(r.Context(), h.Deps.DB, slug)
	if err != nil {
		writeStoreError(w, r, err)
		return columnsResp{}, false
	}
	resp := columnsResp{Columns: cols, ColumnOrder: store.ColumnOrder(b, cols)}
	h.Deps.Hub.Emit(RequestIDFrom(r.Context()), slug, events.TypeColumns, resp)
	return resp, true
}

// Add handles POST /api/boards/{slug}/columns with {name, type, options}.
func (h ColumnsHandler) Add(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	var c store.Column
	if !decodeJSON(w, r, &c) {
		return
	}
	if !h.authorize(w, r, slug) {
		return
	}
	if _, err := store.AddColumn(r.Context(), h.Deps.DB, slug, c); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if resp, ok := h.layout(w, r, slug); ok {
		WriteJSON(w, http.StatusCreated, resp)
	}
}

// Update handles PUT /api/boards/{slug}/columns/{name}. The body is the whole
// new definition, so a changed name renames the column.
func (h ColumnsHandler) Update(w http.ResponseWriter, r *http.Request) {
	slug, name := r.PathValue("slug"), r.PathValue("name")
	var c store.Column
	if !decodeJSON(w, r, &c) {
		return
	}
	if !h.authorize(w, r, slug) {
		return
	}
	if _, err := store.UpdateColumn(r.Context(), h.Deps.DB, slug, name, c); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if resp, ok := h.layout(w, r, slug); ok {
		WriteJSON(w, http.StatusOK, resp)
	}
}

// Delete handles DELETE /api/boards/{slug}/columns/{name}.
func (h ColumnsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	slug, name := r.PathValue("slug"), r.PathValue("name")
	if !h.authorize(w, r, slug) {
		return
	}
	if err := store.DeleteColumn(r.Context(), h.Deps.DB, slug, name); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if resp, ok := h.layout(w, r, slug); ok {
		WriteJSON(w, http.StatusOK, resp)
	}
}

// Reorder handles PUT /api/boards/{slug}/column-order with {order}. Entries
// are built-in ids (_title, _company, ...) or custom column names.
func (h ColumnsHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	var req columnOrderReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Order == nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "order must be an array")
		return
	}
	if !h.authorize(w, r, slug) {
		return
	}
	if _, err := store.SetColumnOrder(r.Context(), h.Deps.DB, slug, req.Order); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if resp, ok := h.layout(w, r, slug); ok {
		WriteJSON(w, http.StatusOK, resp)
	}
}
