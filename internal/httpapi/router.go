package httpapi

import "net/http"

// NewMux registers every route. Path parameters use the standard mux
// patterns; methods are dispatched with methodMux.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	hh := HealthHandler{Deps: d}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	// Pipeline
	ph := ParseHandler{Deps: d}
	mux.HandleFunc("/api/parse-job", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ph.Parse,
	}))
	mux.HandleFunc("/api/bulk-parse", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ph.BulkParse,
	}))

	// Boards
	bh := BoardsHandler{Deps: d}
	mux.HandleFunc("/api/boards", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: bh.Create,
	}))
	mux.HandleFunc("/api/boards/{slug}", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: bh.Get,
	}))
	mux.HandleFunc("/api/boards/{slug}/pin", methodMux(map[string]http.HandlerFunc{
		http.MethodPut: bh.SetPIN,
	}))
	mux.HandleFunc("/api/boards/{slug}/verify-pin", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: bh.VerifyPIN,
	}))

	// Custom columns
	colh := ColumnsHandler{Deps: d}
	mux.HandleFunc("/api/boards/{slug}/columns", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: colh.Add,
	}))
	mux.HandleFunc("/api/boards/{slug}/columns/{name}", methodMux(map[string]http.HandlerFunc{
		http.MethodPut:    colh.Update,
		http.MethodDelete: colh.Delete,
	}))
	mux.HandleFunc("/api/boards/{slug}/column-order", methodMux(map[string]http.HandlerFunc{
		http.MethodPut: colh.Reorder,
	}))

	// Jobs
	jh := JobsHandler{Deps: d}
	mux.HandleFunc("/api/boards/{slug}/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: jh.Add,
	}))
	mux.HandleFunc("/api/boards/{slug}/jobs/{id}", methodMux(map[string]http.HandlerFunc{
		http.MethodPatch:  jh.Update,
		http.MethodDelete: jh.Delete,
	}))
	mux.HandleFunc("/api/boards/{slug}/jobs/{id}/move", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: jh.Move,
	}))

	// Config
	ch := ConfigHandler{Deps: d}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:   ch.Get,
		http.MethodPut:   ch.Put,
		http.MethodPatch: ch.Patch,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  ch.Validate,
		http.MethodPost: ch.ValidateDraft,
	}))

	// Secrets
	sh := SecretsHandler{Deps: d}
	mux.HandleFunc("/api/secrets", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Status,
	}))
	mux.HandleFunc("/api/secrets/openai", methodMux(map[string]http.HandlerFunc{
		http.MethodPut:    sh.SetOpenAIKey,
		http.MethodDelete: sh.DeleteOpenAIKey,
	}))
	mux.HandleFunc("/api/secrets/imap", methodMux(map[string]http.HandlerFunc{
		http.MethodPut:    sh.SetIMAPPassword,
		http.MethodDelete: sh.DeleteIMAPPassword,
	}))

	// Mail import
	mh := MailHandler{Deps: d}
	mux.HandleFunc("/api/mail/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: mh.Status,
	}))
	mux.HandleFunc("/api/mail/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: mh.Run,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	dbh := DBHandler{Deps: d}
	mux.HandleFunc("/api/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dbh.Checkpoint,
	}))

	return mux
}

// NewHandler is NewMux behind the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	return Chain(NewMux(d), RequestID, Recover, AccessLog, Cors)
}
