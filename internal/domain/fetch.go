package domain

import "time"

type ErrorKind string

const (
	ErrorBotProtection ErrorKind = "bot_protection"
	ErrorHTTP          ErrorKind = "http_error"
	ErrorEmptyContent  ErrorKind = "empty_content"
	ErrorNetwork       ErrorKind = "network_error"
)

// ManualEntry reports whether the UI should offer typing the job in by hand.
func (k ErrorKind) ManualEntry() bool {
	switch k {
	case ErrorBotProtection, ErrorHTTP, ErrorEmptyContent:
		return true
	default:
		return false
	}
}

// FetchResult is the outcome of retrieving one URL. FetchError and ErrorKind are
// either both set or both empty.
type FetchResult struct {
	FinalURL   string    `json:"finalUrl"`
	Title      *string   `json:"title"`
	Text       string    `json:"text"`
	FetchedAt  time.Time `json:"fetchedAt"`
	FetchError string    `json:"fetchError,omitempty"`
	ErrorKind  ErrorKind `json:"errorKind,omitempty"`
}

func (r FetchResult) Failed() bool { return r.ErrorKind != "" }
