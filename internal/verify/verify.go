// Package verify checks model-extracted job fields against the page text they
// were supposedly quoted from.
//
// A field survives only if its evidence quote appears in the source text and,
// for every field except due_date, the value itself appears inside that quote.
// Both comparisons are case-insensitive substring matches. Anything that fails
// is dropped to nil; Validate never returns an error.
package verify

import (
	"strings"
	"time"

	"jobboard-engine/internal/domain"
)

// Validate derives a ValidatedJob from raw model output. It is pure: the same
// inputs always give the same output.
func Validate(raw domain.RawExtraction, sourceText string, fetchedAt time.Time, finalURL string) domain.ValidatedJob {
	lowerText := strings.ToLower(sourceText)

	title := checkField(raw.Title, lowerText, true)
	company := checkField(raw.Company, lowerText, true)

	return domain.ValidatedJob{
		Title:          title,
		Company:        company,
		Location:       checkField(raw.Location, lowerText, true),
		EmploymentType: checkField(raw.EmploymentType, lowerText, true),
		// dates get normalized to YYYY-MM-DD, so the value rarely sits inside the quote
		DueDate:    checkField(raw.DueDate, lowerText, false),
		Notes:      checkField(raw.Notes, lowerText, true),
		IsVerified: title != nil && company != nil,
		FetchedAt:  fetchedAt,
		FinalURL:   finalURL,
	}
}

// checkField returns the field value if it is backed by evidence found in
// lowerText, nil otherwise.
func checkField(f domain.ExtractionField, lowerText string, valueInEvidence bool) *string {
	if f.Value == nil {
		return nil
	}
	// an empty quote matches every text, so it proves nothing
	if f.Evidence == nil || strings.TrimSpace(*f.Evidence) == "" {
		return nil
	}

	lowerEvidence := strings.ToLower(*f.Evidence)
	if !strings.Contains(lowerText, lowerEvidence) {
		return nil
	}
	if valueInEvidence && !strings.Contains(lowerEvidence, strings.ToLower(*f.Value)) {
		return nil
	}

	v := *f.Value
	return &v
}
