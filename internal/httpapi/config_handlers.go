package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"

	"jobboard-engine/internal/config"
)

type ConfigHandler struct {
	Deps Deps
}

func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Deps.cfg())
}

// decodeConfig reads a JSON config from the body on top of base. Unknown keys
// are rejected so a typo does not silently reset a section.
func decodeConfig(w http.ResponseWriter, r *http.Request, base config.Config) (config.Config, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	cfg := base
	if err := dec.Decode(&cfg); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return cfg, false
	}
	if dec.More() {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: trailing data")
		return cfg, false
	}
	return cfg, true
}

// Put replaces the whole config.
func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeConfig(w, r, config.Config{})
	if !ok {
		return
	}
	h.apply(w, r, cfg)
}

// Patch merges the posted sections into the current config, so
// {"bulk":{"concurrency":5}} changes one value and keeps the rest.
func (h ConfigHandler) Patch(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeConfig(w, r, h.Deps.cfg())
	if !ok {
		return
	}
	h.apply(w, r, cfg)
}

// apply validates, saves, reloads from disk and hands the result to Reload so
// the pipeline and mail importer pick it up. Invalid input gets a 400 with the
// validation report.
func (h ConfigHandler) apply(w http.ResponseWriter, r *http.Request, cfg config.Config) {
	normalized, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}

	if err := config.SaveAtomic(h.Deps.UserCfgPath, normalized); err != nil {
		WriteError(w, r, http.StatusBadRequest, "save_failed", err.Error())
		return
	}

	saved, err := h.Deps.LoadCfg()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reload_failed", "saved but reload failed: "+err.Error())
		return
	}
	h.Deps.CfgVal.Store(saved)
	h.Deps.reload(saved)
	log.Printf("[config] saved request_id=%s warnings=%d", RequestIDFrom(r.Context()), len(vr.Warnings))
	WriteJSON(w, http.StatusOK, saved)
}

func (h ConfigHandler) Path(w http.ResponseWriter, r *http.Request) {
	abs, _ := filepath.Abs(h.Deps.UserCfgPath)
	WriteJSON(w, http.StatusOK, map[string]any{"path": abs})
}

// Validate reports on the running config.
func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, vr := config.NormalizeAndValidate(h.Deps.cfg())
	WriteJSON(w, http.StatusOK, vr)
}

// ValidateDraft checks a posted config without saving it.
func (h ConfigHandler) ValidateDraft(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeConfig(w, r, config.Config{})
	if !ok {
		return
	}
	_, vr := config.NormalizeAndValidate(cfg)
	WriteJSON(w, http.StatusOK, vr)
}
