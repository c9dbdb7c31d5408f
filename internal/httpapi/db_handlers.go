package httpapi

import (
	"log"
	"net"
	"net/http"
	"strings"
)

type DBHandler struct {
	Deps Deps
}

// IsLoopback reports whether the request came from this machine.
func IsLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

var checkpointModes = map[string]string{
	"passive":  "PASSIVE",
	"full":     "FULL",
	"truncate": "TRUNCATE",
}

type checkpointResp struct {
	Mode         string `json:"mode"`
	Busy         bool   `json:"busy"`
	LogFrames    int    `json:"logFrames"`
	Checkpointed int    `json:"checkpointed"`
}

// Checkpoint flushes the sqlite WAL into the main file so the board database
// can be copied as a backup. ?mode= is passive, full (default) or truncate.
// Loopback callers only.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if !IsLoopback(r) {
		WriteError(w, r, http.StatusForbidden, "forbidden", "forbidden")
		return
	}

	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
	if name == "" {
		name = "full"
	}
	mode, ok := checkpointModes[name]
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "mode must be passive, full or truncate")
		return
	}

	var busy int
	resp := checkpointResp{Mode: name}
	row := h.Deps.DB.QueryRowContext(r.Context(), `PRAGMA wal_checkpoint(`+mode+`);`)
	if err := row.Scan(&busy, &resp.LogFrames, &resp.Checkpointed); err != nil {
		log.Printf("level=error msg=\"checkpoint\" request_id=%s err=%v", RequestIDFrom(r.Context()), err)
		WriteError(w, r, http.StatusInternalServerError, "checkpoint_failed", err.Error())
		return
	}
	resp.Busy = busy != 0
	WriteJSON(w, http.StatusOK, resp)
}
