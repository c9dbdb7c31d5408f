package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"jobboard-engine/internal/events"
	"jobboard-engine/internal/extract"
	"jobboard-engine/internal/pipeline"
)

type ParseHandler struct {
	Deps Deps
}

// parser resolves the current pipeline, writing a 503 when none is usable.
func (h ParseHandler) parser(w http.ResponseWriter, r *http.Request) (JobParser, bool) {
	p, err := h.Deps.Parser()
	if err != nil {
		if errors.Is(err, extract.ErrAPIKeyNotSet) {
			WriteError(w, r, http.StatusServiceUnavailable, "llm_not_configured", "OpenAI API key is not configured")
			return nil, false
		}
		log.Printf("level=error msg=\"parser\" request_id=%s err=%v", RequestIDFrom(r.Context()), err)
		WriteError(w, r, http.StatusServiceUnavailable, "llm_not_configured", err.Error())
		return nil, false
	}
	return p, true
}

// Parse handles POST /api/parse-job.
func (h ParseHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req parseJobReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		WriteError(w, r, http.StatusBadRequest, "url_required", "URL is required")
		return
	}

	p, ok := h.parser(w, r)
	if !ok {
		return
	}

	res, err := p.Parse(r.Context(), req.URL)
	if err != nil {
		var fe *pipeline.FetchError
		switch {
		case errors.Is(err, pipeline.ErrInvalidURL):
			WriteError(w, r, http.StatusBadRequest, "invalid_url", "Invalid URL format")
		case errors.As(err, &fe):
			WriteJSON(w, http.StatusUnprocessableEntity, fetchFailure{
				APIError:    newAPIError(r, string(fe.Kind), fe.Message),
				FinalURL:    fe.FinalURL,
				FetchedAt:   fe.FetchedAt,
				ManualEntry: fe.ManualEntry(),
			})
		default:
			log.Printf("level=error msg=\"parse\" request_id=%s url=%q err=%v", RequestIDFrom(r.Context()), req.URL, err)
			WriteError(w, r, http.StatusBadGateway, "extraction_failed", pipeline.ErrExtraction.Error())
		}
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

// BulkParse handles POST /api/bulk-parse. Each finished URL is also pushed
// to /events as a bulk_item event so the UI can show progress.
func (h ParseHandler) BulkParse(w http.ResponseWriter, r *http.Request) {
	var req bulkParseReq
	if !decodeJSON(w, r, &req) {
		return
	}

	urls := pipeline.NormalizeURLs(req.URLs, 0)
	if len(urls) == 0 {
		WriteError(w, r, http.StatusBadRequest, "url_required", "At least one URL is required")
		return
	}
	if limit := h.Deps.cfg().Bulk.MaxURLs; limit > 0 && len(urls) > limit {
		WriteError(w, r, http.StatusBadRequest, "too_many_urls", "Too many URLs in one request")
		return
	}

	p, ok := h.parser(w, r)
	if !ok {
		return
	}

	reqID := RequestIDFrom(r.Context())
	results := p.ParseMany(r.Context(), urls, func(i int, item pipeline.BulkItem) {
		h.Deps.Hub.Emit(reqID, "", events.TypeBulkItem, bulkItemEvent{Index: i, Total: len(urls), Item: item})
	})

	WriteJSON(w, http.StatusOK, bulkParseResp{Results: results})
}
