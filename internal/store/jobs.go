package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobboard-engine/internal/domain"
)

const MaxJobsPerRequest = 50

const StatusSaved = "Saved"

var statuses = []string{StatusSaved, "Applied", "Interview", "Offer", "Rejected"}

func ValidStatus(s string) bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Job struct {
	ID             string `json:"id"`
	BoardSlug      string `json:"boardSlug"`
	Position       int    `json:"position"`
	Title          string `json:"title"`
	Company        string `json:"company"`
	Link           string `json:"link"`
	Location       string `json:"location"`
	EmploymentType string `json:"employmentType"`
	Notes          string `json:"notes"`
	Status         string `json:"status"`
	DueDate        string `json:"dueDate"`
	ParsedOn       string `json:"parsedOn"`
	Verified       bool   `json:"verified"`

	// values of the board's custom columns, keyed by column name
	CustomFields map[string]string `json:"customFields"`
}

// JobFromValidated turns a pipeline result into a board row, filling the
// placeholders the board shows for fields that did not survive verification.
func JobFromValidated(v domain.ValidatedJob) Job {
	orDefault := func(p *string, def string) string {
		if p == nil || *p == "" {
			return def
		}
		return *p
	}

	parsed := v.FetchedAt
	if parsed.IsZero() {
		parsed = time.Now()
	}

	return Job{
		Title:          orDefault(v.Title, "Unknown Position"),
		Company:        orDefault(v.Company, "Unknown Company"),
		Link:           v.FinalURL,
		Location:       orDefault(v.Location, "Not listed"),
		EmploymentType: orDefault(v.EmploymentType, "Not listed"),
		Notes:          domain.Deref(v.Notes),
		Status:         StatusSaved,
		DueDate:        domain.Deref(v.DueDate),
		ParsedOn:       parsed.UTC().Format("2006-01-02"),
		Verified:       v.IsVerified,
	}
}

// AddJob appends j to the end of the board. ID and Position are assigned here.
func AddJob(ctx context.Context, db *sql.DB, slug string, j Job) (Job, error) {
	out, err := AddJobs(ctx, db, slug, []Job{j})
	if err != nil {
		return Job{}, err
	}
	return out[0], nil
}

// AddJobs appends all jobs in one transaction; either all land or none do.
func AddJobs(ctx context.Context, db *sql.DB, slug string, jobs []Job) ([]Job, error) {
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no jobs provided", ErrInvalidJob)
	}
	if len(jobs) > MaxJobsPerRequest {
		return nil, fmt.Errorf("%w: maximum %d", ErrTooManyJobs, MaxJobsPerRequest)
	}

	today := time.Now().UTC().Format("2006-01-02")
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		if strings.TrimSpace(j.Link) == "" {
			return nil, fmt.Errorf("%w: each job must have a link", ErrInvalidJob)
		}
		if j.Status == "" {
			j.Status = StatusSaved
		}
		if !ValidStatus(j.Status) {
			return nil, ErrInvalidStatus
		}
		if j.ParsedOn == "" {
			j.ParsedOn = today
		}
		j.ID = uuid.NewString()
		j.BoardSlug = slug
		out[i] = j
	}

	err := withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := getBoard(ctx, tx, slug); err != nil {
			return err
		}
		cols, err := listColumns(ctx, tx, slug)
		if err != nil {
			return err
		}
		for i := range out {
			fields := map[string]string{}
			if err := applyCustomFields(fields, cols, out[i].CustomFields); err != nil {
				return err
			}
			seedCustomFields(fields, cols)
			out[i].CustomFields = fields
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM jobs WHERE board_slug = ?;`, slug,
		).Scan(&next); err != nil {
			return err
		}

		for i := range out {
			out[i].Position = next + i
			j := out[i]
			fields, _ := json.Marshal(j.CustomFields)
			if _, err := tx.ExecContext(ctx, `
INSERT INTO jobs(id, board_slug, position, title, company, link, location, employment_type, notes, status, due_date, parsed_on, verified, custom_fields)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
				j.ID, j.BoardSlug, j.Position, j.Title, j.Company, j.Link, j.Location,
				j.EmploymentType, j.Notes, j.Status, j.DueDate, j.ParsedOn, j.Verified, string(fields),
			); err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// sort key -> ORDER BY clause (whitelisted; never interpolate user input)
var jobSorts = map[string]string{
	"position":  "position ASC",
	"title":     "title COLLATE NOCASE ASC, position ASC",
	"company":   "company COLLATE NOCASE ASC, position ASC",
	"due_date":  "due_date = '' ASC, due_date ASC, position ASC",
	"parsed_on": "parsed_on DESC, position ASC",
	"status":    "status ASC, position ASC",
}

// ListJobs returns the board's jobs. Unknown sort keys fall back to position.
func ListJobs(ctx context.Context, db *sql.DB, slug, sort string) ([]Job, error) {
	if _, err := GetBoard(ctx, db, slug); err != nil {
		return nil, err
	}
	order, ok := jobSorts[sort]
	if !ok {
		order = jobSorts["position"]
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, board_slug, position, title, company, link, location, employment_type, notes, status, due_date, parsed_on, verified, custom_fields
FROM jobs
WHERE board_slug = ?
ORDER BY %s;`, order), slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (Job, error) {
	var j Job
	var fields string
	err := s.Scan(&j.ID, &j.BoardSlug, &j.Position, &j.Title, &j.Company, &j.Link, &j.Location,
		&j.EmploymentType, &j.Notes, &j.Status, &j.DueDate, &j.ParsedOn, &j.Verified, &fields)
	if err != nil {
		return Job{}, err
	}
	j.CustomFields, err = decodeCustomFields(fields)
	return j, err
}

func GetJob(ctx context.Context, db *sql.DB, slug, id string) (Job, error) {
	return getJob(ctx, db, slug, id)
}

func getJob(ctx context.Context, q querier, slug, id string) (Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, `
SELECT id, board_slug, position, title, company, link, location, employment_type, notes, status, due_date, parsed_on, verified, custom_fields
FROM jobs
WHERE board_slug = ? AND id = ?;`, slug, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// JobUpdate is a partial edit; nil fields are left alone.
type JobUpdate struct {
	Title          *string `json:"title"`
	Company        *string `json:"company"`
	Link           *string `json:"link"`
	Location       *string `json:"location"`
	EmploymentType *string `json:"employmentType"`
	Notes          *string `json:"notes"`
	Status         *string `json:"status"`
	DueDate        *string `json:"dueDate"`

	// merged into the job's custom values; each key must name a board column
	CustomFields map[string]string `json:"customFields"`
}

func UpdateJob(ctx context.Context, db *sql.DB, slug, id string, u JobUpdate) (Job, error) {
	if u.Status != nil && !ValidStatus(*u.Status) {
		return Job{}, ErrInvalidStatus
	}
	if u.Link != nil && strings.TrimSpace(*u.Link) == "" {
		return Job{}, fmt.Errorf("%w: link cannot be empty", ErrInvalidJob)
	}

	var out Job
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		j, err := getJob(ctx, tx, slug, id)
		if err != nil {
			return err
		}
		set := func(dst *string, src *string) {
			if src != nil {
				*dst = *src
			}
		}
		set(&j.Title, u.Title)
		set(&j.Company, u.Company)
		set(&j.Link, u.Link)
		set(&j.Location, u.Location)
		set(&j.EmploymentType, u.EmploymentType)
		set(&j.Notes, u.Notes)
		set(&j.Status, u.Status)
		set(&j.DueDate, u.DueDate)

		if len(u.CustomFields) > 0 {
			cols, err := listColumns(ctx, tx, slug)
			if err != nil {
				return err
			}
			if err := applyCustomFields(j.CustomFields, cols, u.CustomFields); err != nil {
				return err
			}
		}
		fields, _ := json.Marshal(j.CustomFields)

		if _, err := tx.ExecContext(ctx, `
UPDATE jobs
SET title = ?, company = ?, link = ?, location = ?, employment_type = ?, notes = ?, status = ?, due_date = ?, custom_fields = ?
WHERE board_slug = ? AND id = ?;`,
			j.Title, j.Company, j.Link, j.Location, j.EmploymentType, j.Notes, j.Status, j.DueDate, string(fields),
			slug, id,
		); err != nil {
			return err
		}
		out = j
		return nil
	})
	return out, err
}

func DeleteJob(ctx context.Context, db *sql.DB, slug, id string) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE board_slug = ? AND id = ?;`, slug, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return renumber(ctx, tx, slug, nil)
	})
}

// MoveJob puts the job at index to (clamped) and renumbers the rest 0..n-1.
func MoveJob(ctx context.Context, db *sql.DB, slug, id string, to int) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := getJob(ctx, tx, slug, id); err != nil {
			return err
		}
		return renumber(ctx, tx, slug, func(ids []string) []string {
			rest := make([]string, 0, len(ids))
			for _, x := range ids {
				if x != id {
					rest = append(rest, x)
				}
			}
			if to < 0 {
				to = 0
			}
			if to > len(rest) {
				to = len(rest)
			}
			out := make([]string, 0, len(ids))
			out = append(out, rest[:to]...)
			out = append(out, id)
			return append(out, rest[to:]...)
		})
	})
}

// renumber rewrites positions as 0..n-1 in current order, after an optional reorder.
func renumber(ctx context.Context, tx *sql.Tx, slug string, reorder func([]string) []string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM jobs WHERE board_slug = ? ORDER BY position ASC;`, slug)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if reorder != nil {
		ids = reorder(ids)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET position = ? WHERE id = ?;`, i, id); err != nil {
			return err
		}
	}
	return nil
}
