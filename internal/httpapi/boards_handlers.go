package httpapi

import (
	"net/http"
	"strings"

	"jobboard-engine/internal/events"
	"jobboard-engine/internal/store"
)

type BoardsHandler struct {
	Deps Deps
}

// Create handles POST /api/boards.
func (h BoardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBoardReq
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := store.CreateBoard(r.Context(), h.Deps.DB, strings.TrimSpace(req.Slug), req.Title, req.PIN)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, b)
}

// Get handles GET /api/boards/{slug}?sort=. Reading a board never needs the PIN.
func (h BoardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	b, err := store.GetBoard(r.Context(), h.Deps.DB, slug)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	cols, err := store.ListColumns(r.Context(), h.Deps.DB, slug)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	jobs, err := store.ListJobs(r.Context(), h.Deps.DB, slug, r.URL.Query().Get("sort"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, boardResp{
		Board:       b,
		Columns:     cols,
		ColumnOrder: store.ColumnOrder(b, cols),
		Jobs:        jobs,
	})
}

// SetPIN handles PUT /api/boards/{slug}/pin. An empty newPin removes it.
func (h BoardsHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	var req setPINReq
	if !decodeJSON(w, r, &req) {
		return
	}
	slug := r.PathValue("slug")
	if err := store.SetBoardPIN(r.Context(), h.Deps.DB, slug, req.CurrentPIN, req.NewPIN); err != nil {
		writeStoreError(w, r, err)
		return
	}
	b, err := store.GetBoard(r.Context(), h.Deps.DB, slug)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, b)
}

// VerifyPIN handles POST /api/boards/{slug}/verify-pin.
func (h BoardsHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	var req verifyPINReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PIN == "" {
		WriteError(w, r, http.StatusBadRequest, "pin_required", store.ErrPINRequired.Error())
		return
	}
	slug := r.PathValue("slug")
	b, err := store.GetBoard(r.Context(), h.Deps.DB, slug)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !b.HasPIN {
		WriteError(w, r, http.StatusBadRequest, "not_protected", "Board is not protected")
		return
	}
	if err := store.VerifyBoardPIN(r.Context(), h.Deps.DB, slug, req.PIN); err != nil {
		writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type JobsHandler struct {
	Deps Deps
}

func (h JobsHandler) authorize(w http.ResponseWriter, r *http.Request, slug string) bool {
	return authorizeBoard(h.Deps, w, r, slug)
}

// authorizeBoard checks the board PIN header on mutating calls.
func authorizeBoard(d Deps, w http.ResponseWriter, r *http.Request, slug string) bool {
	if err := store.VerifyBoardPIN(r.Context(), d.DB, slug, r.Header.Get(PINHeader)); err != nil {
		writeStoreError(w, r, err)
		return false
	}
	return true
}

// Add handles POST /api/boards/{slug}/jobs with {job} or {jobs}.
func (h JobsHandler) Add(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	var req addJobsReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.authorize(w, r, slug) {
		return
	}

	in := req.Jobs
	if req.Job != nil {
		in = append(in, *req.Job)
	}
	rows := make([]store.Job, 0, len(in))
	for _, v := range in {
		rows = append(rows, store.JobFromValidated(v))
	}

	added, err := store.AddJobs(r.Context(), h.Deps.DB, slug, rows)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	reqID := RequestIDFrom(r.Context())
	for _, j := range added {
		h.Deps.Hub.Emit(reqID, slug, events.TypeJobAdded, j)
	}
	WriteJSON(w, http.StatusCreated, addJobsResp{Jobs: added})
}

// Update handles PATCH /api/boards/{slug}/jobs/{id}.
func (h JobsHandler) Update(w http.ResponseWriter, r *http.Request) {
	slug, id := r.PathValue("slug"), r.PathValue("id")
	var u store.JobUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	if !h.authorize(w, r, slug) {
		return
	}
	j, err := store.UpdateJob(r.Context(), h.Deps.DB, slug, id, u)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.Deps.Hub.Emit(RequestIDFrom(r.Context()), slug, events.TypeJobUpdated, j)
	WriteJSON(w, http.StatusOK, j)
}

// Delete handles DELETE /api/boards/{slug}/jobs/{id}.
func (h JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	slug, id := r.PathValue("slug"), r.PathValue("id")
	if !h.authorize(w, r, slug) {
		return
	}
	if err := store.DeleteJob(r.Context(), h.Deps.DB, slug, id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.Deps.Hub.Emit(RequestIDFrom(r.Context()), slug, events.TypeJobDeleted, map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// Move handles POST /api/boards/{slug}/jobs/{id}/move with {position}.
func (h JobsHandler) Move(w http.ResponseWriter, r *http.Request) {
	slug, id := r.PathValue("slug"), r.PathValue("id")
	var req moveJobReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Position == nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "position is required")
		return
	}
	if !h.authorize(w, r, slug) {
		return
	}
	if err := store.MoveJob(r.Context(), h.Deps.DB, slug, id, *req.Position); err != nil {
		writeStoreError(w, r, err)
		return
	}
	jobs, err := store.ListJobs(r.Context(), h.Deps.DB, slug, "position")
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.Deps.Hub.Emit(RequestIDFrom(r.Context()), slug, events.TypeJobMoved, map[string]any{"id": id, "position": *req.Position})
	WriteJSON(w, http.StatusOK, addJobsResp{Jobs: jobs})
}
