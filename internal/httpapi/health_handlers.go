package httpapi

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	Deps Deps
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	}
	if h.Deps.DB != nil {
		if err := h.Deps.DB.PingContext(r.Context()); err != nil {
			resp["ok"] = false
			resp["db_error"] = err.Error()
			WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	if h.Deps.Parser != nil {
		_, err := h.Deps.Parser()
		resp["llm_ready"] = err == nil
	}
	if h.Deps.Mail != nil {
		resp["mail_enabled"] = h.Deps.Mail() != nil
	}
	if h.Deps.Hub != nil {
		resp["sse_clients"] = h.Deps.Hub.Subscribers()
		resp["sse_dropped"] = h.Deps.Hub.Dropped()
	}
	WriteJSON(w, http.StatusOK, resp)
}
