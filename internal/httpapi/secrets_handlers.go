package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zalando/go-keyring"

	"jobboard-engine/internal/secrets"
)

type SecretsHandler struct {
	Deps Deps
}

// Status reports which credentials are available, never their values.
func (h SecretsHandler) Status(w http.ResponseWriter, r *http.Request) {
	cfg := h.Deps.cfg()
	_, openAIErr := secrets.GetOpenAIKey()
	_, imapErr := secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(cfg))
	WriteJSON(w, http.StatusOK, map[string]bool{
		"openai": openAIErr == nil,
		"imap":   imapErr == nil,
	})
}

func (h SecretsHandler) SetOpenAIKey(w http.ResponseWriter, r *http.Request) {
	var req secretReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "value is required")
		return
	}
	if err := secrets.SetOpenAIKey(strings.TrimSpace(req.Value)); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "keyring_error", "failed to store key: "+err.Error())
		return
	}
	h.Deps.reload(h.Deps.cfg())
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) DeleteOpenAIKey(w http.ResponseWriter, r *http.Request) {
	if err := secrets.DeleteOpenAIKey(); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		WriteError(w, r, http.StatusInternalServerError, "keyring_error", "failed to delete key: "+err.Error())
		return
	}
	h.Deps.reload(h.Deps.cfg())
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) SetIMAPPassword(w http.ResponseWriter, r *http.Request) {
	var req secretReq
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg := h.Deps.cfg()
	if strings.TrimSpace(cfg.Email.Username) == "" || strings.TrimSpace(cfg.Email.IMAPHost) == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "set email.username and email.imap_host first")
		return
	}
	if err := secrets.SetIMAPPassword(secrets.IMAPKeyringAccount(cfg), req.Value); err != nil {
		WriteError(w, r, http.StatusBadRequest, "keyring_error", "failed to store password: "+err.Error())
		return
	}
	h.Deps.reload(cfg)
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) DeleteIMAPPassword(w http.ResponseWriter, r *http.Request) {
	cfg := h.Deps.cfg()
	if err := secrets.DeleteIMAPPassword(secrets.IMAPKeyringAccount(cfg)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		WriteError(w, r, http.StatusInternalServerError, "keyring_error", "failed to delete password: "+err.Error())
		return
	}
	h.Deps.reload(cfg)
	w.WriteHeader(http.StatusNoContent)
}
