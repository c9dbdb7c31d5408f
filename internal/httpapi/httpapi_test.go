package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"jobboard-engine/internal/config"
	"jobboard-engine/internal/domain"
	"jobboard-engine/internal/events"
	"jobboard-engine/internal/extract"
	"jobboard-engine/internal/mailbox"
	"jobboard-engine/internal/pipeline"
	"jobboard-engine/internal/store"
)

var fetchedAt = time.Date(2025, 2, 1, 10, 30, 0, 0, time.UTC)

type fakeParser struct {
	parse func(u string) (pipeline.Result, error)
}

func (f fakeParser) Parse(_ context.Context, u string) (pipeline.Result, error) {
	return f.parse(u)
}

func (f fakeParser) ParseMany(ctx context.Context, urls []string, onItem func(int, pipeline.BulkItem)) []pipeline.BulkItem {
	out := make([]pipeline.BulkItem, len(urls))
	for i, u := range urls {
		item := pipeline.BulkItem{URL: u}
		if res, err := f.parse(u); err != nil {
			item.Error = err.Error()
		} else {
			item.Job = &res.Job
		}
		out[i] = item
		if onItem != nil {
			onItem(i, item)
		}
	}
	return out
}

func goodJob(u string) pipeline.Result {
	return pipeline.Result{Job: domain.ValidatedJob{
		Title:      domain.Str("Backend Engineer"),
		Company:    domain.Str("Acme"),
		IsVerified: true,
		FetchedAt:  fetchedAt,
		FinalURL:   u,
	}}
}

type testEnv struct {
	deps    Deps
	handler http.Handler
	hub     *events.Hub
	reloads atomic.Int32
}

func newEnv(t *testing.T, p JobParser) *testEnv {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "jobboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, config.SaveAtomic(cfgPath, config.Default()))
	var cfgVal atomic.Value
	cfgVal.Store(config.Default())

	env := &testEnv{hub: events.NewHub()}
	env.deps = Deps{
		DB:          db.Pool,
		Hub:         env.hub,
		CfgVal:      &cfgVal,
		UserCfgPath: cfgPath,
		LoadCfg:     func() (config.Config, error) { return config.Load(cfgPath) },
		Parser: func() (JobParser, error) {
			if p == nil {
				return nil, extract.ErrAPIKeyNotSet
			}
			return p, nil
		},
		Reload: func(config.Config) { env.reloads.Add(1) },
	}
	env.handler = NewHandler(env.deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[APIError](t, rec).Error.Code
}

// ---- parse ----

func TestParseJob_Success(t *testing.T) {
	env := newEnv(t, fakeParser{parse: func(u string) (pipeline.Result, error) {
		res := goodJob(u)
		res.FetchWarning = "Could not find job details on this page."
		return res, nil
	}})

	rec := env.do(t, http.MethodPost, "/api/parse-job", map[string]string{"url": "https://jobs.example.com/1"})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[pipeline.Result](t, rec)
	assert.Equal(t, "Backend Engineer", domain.Deref(got.Job.Title))
	assert.True(t, got.Job.IsVerified)
	assert.Equal(t, "https://jobs.example.com/1", got.Job.FinalURL)
	assert.NotEmpty(t, got.FetchWarning)
}

func TestParseJob_Errors(t *testing.T) {
	fe := &pipeline.FetchError{
		Kind:      domain.ErrorHTTP,
		Message:   "This page requires login.",
		FinalURL:  "https://jobs.example.com/login",
		FetchedAt: fetchedAt,
	}

	tests := []struct {
		name     string
		body     any
		err      error
		nilP     bool
		wantCode int
		wantErr  string
	}{
		{name: "missing url", body: map[string]string{}, wantCode: 400, wantErr: "url_required"},
		{name: "bad json", body: "{", wantCode: 400, wantErr: "invalid_json"},
		{name: "empty body", body: "", wantCode: 400, wantErr: "invalid_json"},
		{name: "invalid url", body: map[string]string{"url": "nope"}, err: pipeline.ErrInvalidURL, wantCode: 400, wantErr: "invalid_url"},
		{name: "fetch failure", body: map[string]string{"url": "https://x.example"}, err: fe, wantCode: 422, wantErr: "http_error"},
		{name: "extraction failure", body: map[string]string{"url": "https://x.example"}, err: fmt.Errorf("%w: boom", pipeline.ErrExtraction), wantCode: 502, wantErr: "extraction_failed"},
		{name: "no api key", body: map[string]string{"url": "https://x.example"}, nilP: true, wantCode: 503, wantErr: "llm_not_configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p JobParser = fakeParser{parse: func(string) (pipeline.Result, error) { return pipeline.Result{}, tt.err }}
			if tt.nilP {
				p = nil
			}
			env := newEnv(t, p)
			rec := env.do(t, http.MethodPost, "/api/parse-job", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errCode(t, rec))
		})
	}
}

func TestParseJob_FetchFailureBody(t *testing.T) {
	env := newEnv(t, fakeParser{parse: func(string) (pipeline.Result, error) {
		return pipeline.Result{}, &pipeline.FetchError{
			Kind:      domain.ErrorBotProtection,
			Message:   "This site blocks automatic access. Please use manual entry instead.",
			FinalURL:  "https://jobs.example.com/1",
			FetchedAt: fetchedAt,
		}
	}})

	rec := env.do(t, http.MethodPost, "/api/parse-job", map[string]string{"url": "https://jobs.example.com/1"}, "X-Request-ID", "req-42")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	got := decode[fetchFailure](t, rec)
	assert.Equal(t, "bot_protection", got.Error.Code)
	assert.Contains(t, got.Error.Message, "manual entry")
	assert.Equal(t, "req-42", got.Error.RequestID)
	assert.Equal(t, "https://jobs.example.com/1", got.FinalURL)
	assert.True(t, got.FetchedAt.Equal(fetchedAt))
	assert.True(t, got.ManualEntry)
}

func TestBulkParse(t *testing.T) {
	env := newEnv(t, fakeParser{parse: func(u string) (pipeline.Result, error) {
		if strings.Contains(u, "bad") {
			return pipeline.Result{}, errors.New("failed to extract job details")
		}
		return goodJob(u), nil
	}})
	sub := env.hub.Subscribe()

	rec := env.do(t, http.MethodPost, "/api/bulk-parse", map[string]any{
		"urls": []string{"https://a.example/1", " ", "https://bad.example/2", "https://a.example/1"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[bulkParseResp](t, rec)
	require.Len(t, got.Results, 2)
	assert.NotNil(t, got.Results[0].Job)
	assert.Equal(t, "https://bad.example/2", got.Results[1].URL)
	assert.NotEmpty(t, got.Results[1].Error)

	for i := 0; i < 2; i++ {
		assert.Contains(t, <-sub, events.TypeBulkItem)
	}
}

func TestBulkParse_Limits(t *testing.T) {
	env := newEnv(t, fakeParser{parse: func(u string) (pipeline.Result, error) { return goodJob(u), nil }})

	rec := env.do(t, http.MethodPost, "/api/bulk-parse", map[string]any{"urls": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	urls := make([]string, config.Default().Bulk.MaxURLs+1)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://a.example/%d", i)
	}
	rec = env.do(t, http.MethodPost, "/api/bulk-parse", map[string]any{"urls": urls})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "too_many_urls", errCode(t, rec))
}

// ---- boards and jobs ----

func TestBoards_CreateAndGet(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "alex"})
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[store.Board](t, rec)
	assert.Equal(t, "Alex's Job Board", b.Title)
	assert.False(t, b.HasPIN)

	rec = env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "alex"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "Not Valid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "pinned", PIN: "12"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/boards/alex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[boardResp](t, rec)
	assert.Equal(t, "alex", got.Board.Slug)
	assert.Empty(t, got.Jobs)
	assert.NotNil(t, got.Jobs)

	rec = env.do(t, http.MethodGet, "/api/boards/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobs_Lifecycle(t *testing.T) {
	env := newEnv(t, nil)
	sub := env.hub.Subscribe()
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "b1"}).Code)

	a, b := goodJob("https://a.example/1").Job, goodJob("https://a.example/2").Job
	b.Title = nil
	rec := env.do(t, http.MethodPost, "/api/boards/b1/jobs", addJobsReq{Jobs: []domain.ValidatedJob{a, b}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[addJobsResp](t, rec).Jobs
	require.Len(t, added, 2)
	assert.Equal(t, "Unknown Position", added[1].Title)
	assert.Equal(t, "2025-02-01", added[0].ParsedOn)
	assert.Contains(t, <-sub, events.TypeJobAdded)
	assert.Contains(t, <-sub, events.TypeJobAdded)

	rec = env.do(t, http.MethodPatch, "/api/boards/b1/jobs/"+added[0].ID, map[string]string{"status": "Applied"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Applied", decode[store.Job](t, rec).Status)
	assert.Contains(t, <-sub, events.TypeJobUpdated)

	rec = env.do(t, http.MethodPatch, "/api/boards/b1/jobs/"+added[0].ID, map[string]string{"status": "Ghosted"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/boards/b1/jobs/"+added[1].ID+"/move", map[string]int{"position": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decode[addJobsResp](t, rec).Jobs
	assert.Equal(t, added[1].ID, moved[0].ID)
	assert.Contains(t, <-sub, events.TypeJobMoved)

	rec = env.do(t, http.MethodPost, "/api/boards/b1/jobs/"+added[1].ID+"/move", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/boards/b1/jobs/"+added[1].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, <-sub, events.TypeJobDeleted)

	rec = env.do(t, http.MethodDelete, "/api/boards/b1/jobs/"+added[1].ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/boards/b1?sort=title", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[boardResp](t, rec).Jobs
	require.Len(t, jobs, 1)
	assert.Equal(t, 0, jobs[0].Position)
}

func TestJobs_AddRequiresLink(t *testing.T) {
	env := newEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "b1"}).Code)

	job := goodJob("").Job
	rec := env.do(t, http.MethodPost, "/api/boards/b1/jobs", addJobsReq{Job: &job})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/boards/b1/jobs", addJobsReq{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs_PINProtectedBoard(t *testing.T) {
	env := newEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "locked", PIN: "4321"}).Code)
	job := goodJob("https://a.example/1").Job
	body := addJobsReq{Job: &job}

	rec := env.do(t, http.MethodPost, "/api/boards/locked/jobs", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "pin_required", errCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/boards/locked/jobs", body, PINHeader, "0000")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "pin_mismatch", errCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/boards/locked/jobs", body, PINHeader, "4321")
	assert.Equal(t, http.StatusCreated, rec.Code)

	// reads stay open
	rec = env.do(t, http.MethodGet, "/api/boards/locked", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[boardResp](t, rec).Board.HasPIN)
}

func TestColumns_Lifecycle(t *testing.T) {
	env := newEnv(t, nil)
	sub := env.hub.SubscribeBoard("b1")
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "b1"}).Code)
	job := goodJob("https://a.example/1").Job
	rec := env.do(t, http.MethodPost, "/api/boards/b1/jobs", addJobsReq{Job: &job})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[addJobsResp](t, rec).Jobs[0].ID
	<-sub

	rec = env.do(t, http.MethodPost, "/api/boards/b1/columns", store.Column{Name: "Referral", Type: store.ColumnCheckbox})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	layout := decode[columnsResp](t, rec)
	assert.Equal(t, []store.Column{{Name: "Referral", Type: store.ColumnCheckbox}}, layout.Columns)
	assert.Equal(t, "Referral", layout.ColumnOrder[len(layout.ColumnOrder)-1])
	assert.Contains(t, <-sub, events.TypeColumns)

	rec = env.do(t, http.MethodPost, "/api/boards/b1/columns", store.Column{Name: "referral", Type: store.ColumnText})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "column_exists", errCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/boards/b1/columns", store.Column{Name: "Stage", Type: store.ColumnDropdown})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/boards/b1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[boardResp](t, rec)
	require.Len(t, board.Columns, 1)
	assert.Equal(t, map[string]string{"Referral": "No"}, board.Jobs[0].CustomFields)

	rec = env.do(t, http.MethodPatch, "/api/boards/b1/jobs/"+jobID, map[string]any{"customFields": map[string]string{"referral": "Yes"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"Referral": "Yes"}, decode[store.Job](t, rec).CustomFields)
	<-sub

	rec = env.do(t, http.MethodPatch, "/api/boards/b1/jobs/"+jobID, map[string]any{"customFields": map[string]string{"Referral": "maybe"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/boards/b1/columns/Referral", store.Column{Name: "Referred By", Type: store.ColumnText})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Referred By", decode[columnsResp](t, rec).Columns[0].Name)
	<-sub

	rec = env.do(t, http.MethodPut, "/api/boards/b1/column-order", columnOrderReq{Order: []string{"Referred By", "_title", "_company"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Referred By", "_title", "_company"}, decode[columnsResp](t, rec).ColumnOrder)
	<-sub

	rec = env.do(t, http.MethodPut, "/api/boards/b1/column-order", columnOrderReq{Order: []string{"Nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPut, "/api/boards/b1/column-order", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/boards/b1/columns/Referred%20By", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[columnsResp](t, rec).Columns)
	<-sub

	rec = env.do(t, http.MethodDelete, "/api/boards/b1/columns/Referred%20By", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/boards/b1", nil)
	board = decode[boardResp](t, rec)
	assert.Empty(t, board.Jobs[0].CustomFields)
	assert.Equal(t, []string{"_title", "_company"}, board.ColumnOrder)
}

func TestColumns_NeedPIN(t *testing.T) {
	env := newEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "locked", PIN: "4321"}).Code)
	col := store.Column{Name: "Salary", Type: store.ColumnText}

	rec := env.do(t, http.MethodPost, "/api/boards/locked/columns", col)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/boards/locked/columns", col, PINHeader, "4321")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/boards/locked/columns/Salary", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/boards/locked/column-order", columnOrderReq{Order: []string{"Salary"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBoards_PINEndpoints(t *testing.T) {
	env := newEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/boards", createBoardReq{Slug: "open"}).Code)

	rec := env.do(t, http.MethodPost, "/api/boards/open/verify-pin", verifyPINReq{PIN: "1234"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "not_protected", errCode(t, rec))

	rec = env.do(t, http.MethodPut, "/api/boards/open/pin", setPINReq{NewPIN: "1234"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[store.Board](t, rec).HasPIN)

	rec = env.do(t, http.MethodPost, "/api/boards/open/verify-pin", verifyPINReq{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/boards/open/verify-pin", verifyPINReq{PIN: "9999"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/boards/open/verify-pin", verifyPINReq{PIN: "1234"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/boards/open/pin", setPINReq{NewPIN: ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/boards/open/pin", setPINReq{CurrentPIN: "1234", NewPIN: ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[store.Board](t, rec).HasPIN)
}

// ---- plumbing ----

func TestMethodNotAllowed(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/parse-job", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
	assert.Equal(t, "method_not_allowed", errCode(t, rec))

	rec = env.do(t, http.MethodPut, "/api/boards/b1/jobs/x", nil)
	assert.Equal(t, "DELETE, PATCH", rec.Header().Get("Allow"))
}

func TestMiddleware(t *testing.T) {
	t.Run("request id generated and echoed", func(t *testing.T) {
		env := newEnv(t, nil)
		rec := env.do(t, http.MethodGet, "/health", nil)
		_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
		assert.NoError(t, err)

		rec = env.do(t, http.MethodGet, "/health", nil, "X-Request-ID", "abc")
		assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

		rec = env.do(t, http.MethodGet, "/health", nil, "X-Request-ID", "bad id\nwith newline")
		assert.NotEqual(t, "bad id\nwith newline", rec.Header().Get("X-Request-ID"))
		_, err = uuid.Parse(rec.Header().Get("X-Request-ID"))
		assert.NoError(t, err)
	})

	t.Run("cors preflight", func(t *testing.T) {
		env := newEnv(t, nil)
		rec := env.do(t, http.MethodOptions, "/api/boards/b1/jobs", nil,
			"Origin", "http://localhost:3000", "Access-Control-Request-Method", "POST")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), PINHeader)

		rec = env.do(t, http.MethodOptions, "/api/boards/b1/jobs", nil,
			"Origin", "http://127.0.0.1:5173", "Access-Control-Request-Method", "DELETE")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("cors refuses foreign origins", func(t *testing.T) {
		env := newEnv(t, nil)
		rec := env.do(t, http.MethodOptions, "/api/boards/b1/jobs", nil,
			"Origin", "https://evil.example", "Access-Control-Request-Method", "POST")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

		rec = env.do(t, http.MethodGet, "/health", nil, "Origin", "https://evil.example")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("panic becomes 500 envelope", func(t *testing.T) {
		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), RequestID, Recover)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal_error", errCode(t, rec))
	})
}

func TestHealth(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, true, got["ok"])
	assert.Equal(t, false, got["llm_ready"])
	assert.EqualValues(t, 0, got["sse_clients"])
}

func TestConfig_PutValidatesSavesAndReloads(t *testing.T) {
	env := newEnv(t, nil)

	bad := config.Default()
	bad.Bulk.Concurrency = 0
	rec := env.do(t, http.MethodPut, "/config", bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[config.Validation](t, rec).Errors)
	assert.Zero(t, env.reloads.Load())

	rec = env.do(t, http.MethodPut, "/config", `{"nope":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	good := config.Default()
	good.Bulk.Concurrency = 5
	good.Email.SearchSubjectAny = []string{" Job Alert ", "job alert"}
	rec = env.do(t, http.MethodPut, "/config", good)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[config.Config](t, rec)
	assert.Equal(t, 5, saved.Bulk.Concurrency)
	assert.Equal(t, []string{"Job Alert"}, saved.Email.SearchSubjectAny)
	assert.Equal(t, int32(1), env.reloads.Load())

	rec = env.do(t, http.MethodGet, "/config", nil)
	assert.Equal(t, 5, decode[config.Config](t, rec).Bulk.Concurrency)

	rec = env.do(t, http.MethodGet, "/config/validate", nil)
	assert.True(t, decode[config.Validation](t, rec).OK())
}

func TestConfig_PatchMergesIntoCurrent(t *testing.T) {
	env := newEnv(t, nil)
	before := env.deps.CfgVal.Load().(config.Config)

	rec := env.do(t, http.MethodPatch, "/config", `{"bulk":{"concurrency":7,"max_urls":20,"host_rps":1,"host_burst":2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[config.Config](t, rec)
	assert.Equal(t, 7, got.Bulk.Concurrency)
	assert.Equal(t, before.LLM.Model, got.LLM.Model, "untouched sections survive")
	assert.Equal(t, before.App.Port, got.App.Port)
	assert.Equal(t, int32(1), env.reloads.Load())

	rec = env.do(t, http.MethodPatch, "/config", `{"bulk":{"concurrency":0}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(1), env.reloads.Load())
}

func TestConfig_ValidateDraftDoesNotSave(t *testing.T) {
	env := newEnv(t, nil)
	draft := config.Default()
	draft.App.Port = 0

	rec := env.do(t, http.MethodPost, "/config/validate", draft)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[config.Validation](t, rec).OK())
	assert.Zero(t, env.reloads.Load())

	rec = env.do(t, http.MethodGet, "/config", nil)
	assert.NotZero(t, decode[config.Config](t, rec).App.Port)
}

func TestSecrets(t *testing.T) {
	keyring.MockInit()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("JOBBOARD_IMAP_PASSWORD", "")
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/secrets", nil)
	assert.Equal(t, map[string]bool{"openai": false, "imap": false}, decode[map[string]bool](t, rec))

	rec = env.do(t, http.MethodPut, "/api/secrets/openai", secretReq{Value: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/secrets/openai", secretReq{Value: "sk-test"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int32(1), env.reloads.Load())

	// default config has no username yet
	rec = env.do(t, http.MethodPut, "/api/secrets/imap", secretReq{Value: "app-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/secrets", nil)
	assert.Equal(t, map[string]bool{"openai": true, "imap": false}, decode[map[string]bool](t, rec))

	rec = env.do(t, http.MethodDelete, "/api/secrets/openai", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/secrets/openai", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type fakeMail struct {
	mu   sync.Mutex
	runs int
	st   mailbox.Status
	done chan struct{}
}

func (f *fakeMail) RunOnce(context.Context) (mailbox.Summary, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	close(f.done)
	return mailbox.Summary{Added: 1}, nil
}

func (f *fakeMail) Status() mailbox.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func TestMail(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/api/mail/run", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "mail_disabled", errCode(t, rec))
	})

	t.Run("run and status", func(t *testing.T) {
		fm := &fakeMail{st: mailbox.Status{LastOkAt: "2025-02-01T00:00:00Z"}, done: make(chan struct{})}
		env := newEnv(t, nil)
		env.deps.Mail = func() MailRunner { return fm }
		env.handler = NewHandler(env.deps)

		rec := env.do(t, http.MethodGet, "/api/mail/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2025-02-01T00:00:00Z", decode[mailbox.Status](t, rec).LastOkAt)

		rec = env.do(t, http.MethodPost, "/api/mail/run", nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		<-fm.done
	})

	t.Run("already running", func(t *testing.T) {
		fm := &fakeMail{st: mailbox.Status{Running: true}, done: make(chan struct{})}
		env := newEnv(t, nil)
		env.deps.Mail = func() MailRunner { return fm }
		env.handler = NewHandler(env.deps)

		rec := env.do(t, http.MethodPost, "/api/mail/run", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Zero(t, fm.runs)
	})
}

func TestCheckpoint_LoopbackOnly(t *testing.T) {
	env := newEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/db/checkpoint", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/db/checkpoint", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[checkpointResp](t, rec)
	assert.Equal(t, "full", got.Mode)
	assert.False(t, got.Busy)

	req = httptest.NewRequest(http.MethodPost, "/api/db/checkpoint?mode=truncate", nil)
	req.RemoteAddr = "[::1]:5555"
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "truncate", decode[checkpointResp](t, rec).Mode)

	req = httptest.NewRequest(http.MethodPost, "/api/db/checkpoint?mode=restart", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvents_StreamFiltersByBoard(t *testing.T) {
	env := newEnv(t, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?board=mine", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "data: ") {
				return strings.TrimPrefix(l, "data: ")
			}
		}
		return ""
	}

	assert.Contains(t, next(), `"ping"`)

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	env.hub.Emit("", "other", events.TypeJobAdded, map[string]string{"id": "skip"})
	env.hub.Emit("", "mine", events.TypeJobAdded, map[string]string{"id": "keep"})

	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(next()), &e))
	assert.Equal(t, "mine", e.Board)
	assert.JSONEq(t, `{"id":"keep"}`, string(e.Data))
}
