package httpapi

import (
	"time"

	"jobboard-engine/internal/domain"
	"jobboard-engine/internal/pipeline"
	"jobboard-engine/internal/store"
)

// PINHeader carries the board PIN on mutating board calls.
const PINHeader = "X-Board-PIN"

type parseJobReq struct {
	URL string `json:"url"`
}

// fetchFailure is the 422 body: the error envelope plus what the UI needs to
// offer manual entry.
type fetchFailure struct {
	APIError
	FinalURL    string    `json:"finalUrl"`
	FetchedAt   time.Time `json:"fetchedAt"`
	ManualEntry bool      `json:"manualEntry"`
}

type bulkParseReq struct {
	URLs []string `json:"urls"`
}

type bulkParseResp struct {
	Results []pipeline.BulkItem `json:"results"`
}

type bulkItemEvent struct {
	Index int               `json:"index"`
	Total int               `json:"total"`
	Item  pipeline.BulkItem `json:"item"`
}

type createBoardReq struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	PIN   string `json:"pin"`
}

type boardResp struct {
	Board       store.Board    `json:"board"`
	Columns     []store.Column `json:"columns"`
	ColumnOrder []string       `json:"columnOrder"`
	Jobs        []store.Job    `json:"jobs"`
}

// columnsResp is the board's column layout after a column change.
type columnsResp struct {
	Columns     []store.Column `json:"columns"`
	ColumnOrder []string       `json:"columnOrder"`
}

type columnOrderReq struct {
	Order []string `json:"order"`
}

type setPINReq struct {
	CurrentPIN string `json:"currentPin"`
	NewPIN     string `json:"newPin"`
}

type verifyPINReq struct {
	PIN string `json:"pin"`
}

// addJobsReq takes either one validated job or a batch of them.
type addJobsReq struct {
	Job  *domain.ValidatedJob  `json:"job"`
	Jobs []domain.ValidatedJob `json:"jobs"`
}

type addJobsResp struct {
	Jobs []store.Job `json:"jobs"`
}

type moveJobReq struct {
	Position *int `json:"position"`
}

type secretReq struct {
	Value string `json:"value"`
}
