package domain

import "time"

// ExtractionField is one model-extracted attribute with the quote it was read from.
type ExtractionField struct {
	Value    *string `json:"value"`
	Evidence *string `json:"evidence"`
}

// RawExtraction is the unverified model output for a single page.
type RawExtraction struct {
	Title          ExtractionField `json:"title"`
	Company        ExtractionField `json:"company"`
	Location       ExtractionField `json:"location"`
	EmploymentType ExtractionField `json:"employment_type"`
	DueDate        ExtractionField `json:"due_date"`
	Notes          ExtractionField `json:"notes"`
}

// ValidatedJob holds only values whose evidence was found in the source text.
type ValidatedJob struct {
	Title          *string   `json:"title"`
	Company        *string   `json:"company"`
	Location       *string   `json:"location"`
	EmploymentType *string   `json:"employment_type"`
	DueDate        *string   `json:"due_date"`
	Notes          *string   `json:"notes"`
	IsVerified     bool      `json:"isVerified"`
	FetchedAt      time.Time `json:"fetchedAt"`
	FinalURL       string    `json:"finalUrl"`
}

// DueDateRolling is the due_date value for postings with no fixed deadline.
const DueDateRolling = "rolling"

// Str returns a pointer to s. Handy for building fields in tests and fakes.
func Str(s string) *string { return &s }

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
