package httpapi

import (
	"errors"
	"log"
	"net/http"

	"jobboard-engine/internal/mailbox"
)

type MailHandler struct {
	Deps Deps
}

func (h MailHandler) runner(w http.ResponseWriter, r *http.Request) (MailRunner, bool) {
	var m MailRunner
	if h.Deps.Mail != nil {
		m = h.Deps.Mail()
	}
	if m == nil {
		WriteError(w, r, http.StatusConflict, "mail_disabled", "email import is not enabled")
		return nil, false
	}
	return m, true
}

func (h MailHandler) Status(w http.ResponseWriter, r *http.Request) {
	m, ok := h.runner(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, m.Status())
}

// Run starts one import pass in the background and returns immediately.
// Progress shows up as job_added and mail_import events.
func (h MailHandler) Run(w http.ResponseWriter, r *http.Request) {
	m, ok := h.runner(w, r)
	if !ok {
		return
	}
	if m.Status().Running {
		WriteError(w, r, http.StatusConflict, "already_running", mailbox.ErrAlreadyRunning.Error())
		return
	}

	ctx := h.Deps.ctx()
	go func() {
		if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, mailbox.ErrAlreadyRunning) {
			log.Printf("[mail] manual run: %v", err)
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
