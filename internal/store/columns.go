package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

const (
	ColumnText     = "text"
	ColumnCheckbox = "checkbox"
	ColumnDropdown = "dropdown"
)

// checkbox cells hold one of these two values
const (
	CheckboxYes = "Yes"
	CheckboxNo  = "No"
)

// BuiltinColumnIDs name the fixed job fields in a board's column order.
var BuiltinColumnIDs = []string{"_title", "_company", "_location", "_type", "_dueDate", "_notes", "_status"}

// Column is a user-defined board column. Names are unique per board,
// ignoring case.
type Column struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

func (c Column) normalize() (Column, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || c.Type == "" {
		return c, fmt.Errorf("%w: column name and type are required", ErrInvalidColumn)
	}
	if strings.HasPrefix(c.Name, "_") {
		return c, fmt.Errorf("%w: column names cannot start with an underscore", ErrInvalidColumn)
	}

	switch c.Type {
	case ColumnText, ColumnCheckbox:
		c.Options = nil
	case ColumnDropdown:
		opts := make([]string, 0, len(c.Options))
		for _, o := range c.Options {
			if o = strings.TrimSpace(o); o != "" && !slices.Contains(opts, o) {
				opts = append(opts, o)
			}
		}
		if len(opts) == 0 {
			return c, fmt.Errorf("%w: dropdown columns require at least one option", ErrInvalidColumn)
		}
		c.Options = opts
	default:
		return c, fmt.Errorf("%w: column type must be one of: text, checkbox, dropdown", ErrInvalidColumn)
	}
	return c, nil
}

// DefaultValue is what a job holds in c before anyone edits it.
func (c Column) DefaultValue() string {
	if c.Type == ColumnCheckbox {
		return CheckboxNo
	}
	return ""
}

func (c Column) accepts(v string) bool {
	switch c.Type {
	case ColumnCheckbox:
		return v == CheckboxYes || v == CheckboxNo
	case ColumnDropdown:
		return v == "" || slices.Contains(c.Options, v)
	}
	return true
}

func findColumn(cols []Column, name string) (int, bool) {
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// ListColumns returns the board's custom columns in creation order.
func ListColumns(ctx context.Context, db *sql.DB, slug string) ([]Column, error) {
	if _, err := GetBoard(ctx, db, slug); err != nil {
		return nil, err
	}
	return listColumns(ctx, db, slug)
}

func listColumns(ctx context.Context, q querier, slug string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, `
SELECT name, type, options
FROM board_columns
WHERE board_slug = ?
ORDER BY position ASC;`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Column{}
	for rows.Next() {
		var c Column
		var opts string
		if err := rows.Scan(&c.Name, &c.Type, &opts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &c.Options); err != nil {
			return nil, fmt.Errorf("column %q options: %w", c.Name, err)
		}
		if len(c.Options) == 0 {
			c.Options = nil
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddColumn appends c to the board and gives every existing job its default
// value.
func AddColumn(ctx context.Context, db *sql.DB, slug string, c Column) (Column, error) {
	if !ValidSlug(slug) {
		return Column{}, ErrInvalidSlug
	}
	c, err := c.normalize()
	if err != nil {
		return Column{}, err
	}

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := getBoard(ctx, tx, slug); err != nil {
			return err
		}
		cols, err := listColumns(ctx, tx, slug)
		if err != nil {
			return err
		}
		if _, ok := findColumn(cols, c.Name); ok {
			return ErrColumnExists
		}

		opts, _ := json.Marshal(c.Options)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO board_columns(board_slug, name, type, options, position)
VALUES(?,?,?,?,(SELECT COALESCE(MAX(position) + 1, 0) FROM board_columns WHERE board_slug = ?));`,
			slug, c.Name, c.Type, string(opts), slug,
		); err != nil {
			return fmt.Errorf("insert column: %w", err)
		}

		def := c.DefaultValue()
		return rewriteCustomFields(ctx, tx, slug, func(f map[string]string) {
			f[c.Name] = def
		})
	})
	if err != nil {
		return Column{}, err
	}
	return c, nil
}

// UpdateColumn replaces the column called oldName with c. A rename moves the
// values stored under the old name and updates the column order; values that
// no longer fit the new type or options go back to the default.
func UpdateColumn(ctx context.Context, db *sql.DB, slug, oldName string, c Column) (Column, error) {
	if !ValidSlug(slug) {
		return Column{}, ErrInvalidSlug
	}
	c, err := c.normalize()
	if err != nil {
		return Column{}, err
	}

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		b, err := getBoard(ctx, tx, slug)
		if err != nil {
			return err
		}
		cols, err := listColumns(ctx, tx, slug)
		if err != nil {
			return err
		}
		i, ok := findColumn(cols, oldName)
		if !ok {
			return ErrNotFound
		}
		old := cols[i]
		if !strings.EqualFold(old.Name, c.Name) {
			if _, taken := findColumn(cols, c.Name); taken {
				return ErrColumnExists
			}
		}

		opts, _ := json.Marshal(c.Options)
		if _, err := tx.ExecContext(ctx, `
UPDATE board_columns
SET name = ?, type = ?, options = ?
WHERE board_slug = ? AND name = ?;`,
			c.Name, c.Type, string(opts), slug, old.Name,
		); err != nil {
			return err
		}

		if err := rewriteCustomFields(ctx, tx, slug, func(f map[string]string) {
			v, ok := f[old.Name]
			if !ok {
				return
			}
			delete(f, old.Name)
			if !c.accepts(v) {
				v = c.DefaultValue()
			}
			f[c.Name] = v
		}); err != nil {
			return err
		}

		if old.Name == c.Name {
			return nil
		}
		order := slices.Clone(b.ColumnOrder)
		for k, id := range order {
			if id == old.Name {
				order[k] = c.Name
			}
		}
		return saveColumnOrder(ctx, tx, slug, order)
	})
	if err != nil {
		return Column{}, err
	}
	return c, nil
}

// DeleteColumn removes the column and its value from every job.
func DeleteColumn(ctx context.Context, db *sql.DB, slug, name string) error {
	if !ValidSlug(slug) {
		return ErrInvalidSlug
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		b, err := getBoard(ctx, tx, slug)
		if err != nil {
			return err
		}
		cols, err := listColumns(ctx, tx, slug)
		if err != nil {
			return err
		}
		i, ok := findColumn(cols, name)
		if !ok {
			return ErrNotFound
		}
		gone := cols[i].Name

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM board_columns WHERE board_slug = ? AND name = ?;`, slug, gone,
		); err != nil {
			return err
		}
		if err := rewriteCustomFields(ctx, tx, slug, func(f map[string]string) {
			delete(f, gone)
		}); err != nil {
			return err
		}
		order := slices.DeleteFunc(slices.Clone(b.ColumnOrder), func(id string) bool { return id == gone })
		return saveColumnOrder(ctx, tx, slug, order)
	})
}

// SetColumnOrder stores the display order of built-in and custom columns.
// Every entry must name a known column, at most once.
func SetColumnOrder(ctx context.Context, db *sql.DB, slug string, order []string) ([]string, error) {
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}
	var out []string
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		b, err := getBoard(ctx, tx, slug)
		if err != nil {
			return err
		}
		cols, err := listColumns(ctx, tx, slug)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(order))
		clean := make([]string, 0, len(order))
		for _, id := range order {
			if !slices.Contains(BuiltinColumnIDs, id) {
				i, ok := findColumn(cols, id)
				if !ok {
					return fmt.Errorf("%w: unknown column %q", ErrInvalidColumn, id)
				}
				id = cols[i].Name
			}
			if seen[id] {
				return fmt.Errorf("%w: column %q listed twice", ErrInvalidColumn, id)
			}
			seen[id] = true
			clean = append(clean, id)
		}

		if err := saveColumnOrder(ctx, tx, slug, clean); err != nil {
			return err
		}
		b.ColumnOrder = clean
		out = ColumnOrder(b, cols)
		return nil
	})
	return out, err
}

// ColumnOrder is the order a board's columns are shown in. Without a saved
// order it is the built-in columns followed by the custom ones; custom columns
// missing from a saved order are appended.
func ColumnOrder(b Board, cols []Column) []string {
	if len(b.ColumnOrder) == 0 {
		out := slices.Clone(BuiltinColumnIDs)
		for _, c := range cols {
			out = append(out, c.Name)
		}
		return out
	}
	out := slices.Clone(b.ColumnOrder)
	for _, c := range cols {
		if !slices.Contains(out, c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

func saveColumnOrder(ctx context.Context, tx *sql.Tx, slug string, order []string) error {
	if order == nil {
		order = []string{}
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE boards SET column_order = ? WHERE slug = ?;`, string(raw), slug)
	return err
}

// rewriteCustomFields applies edit to the custom values of every job on the board.
func rewriteCustomFields(ctx context.Context, tx *sql.Tx, slug string, edit func(map[string]string)) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, custom_fields FROM jobs WHERE board_slug = ?;`, slug)
	if err != nil {
		return err
	}
	updated := map[string]string{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return err
		}
		f, err := decodeCustomFields(raw)
		if err != nil {
			rows.Close()
			return err
		}
		edit(f)
		enc, _ := json.Marshal(f)
		updated[id] = string(enc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, raw := range updated {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET custom_fields = ? WHERE id = ?;`, raw, id); err != nil {
			return err
		}
	}
	return nil
}

func decodeCustomFields(raw string) (map[string]string, error) {
	f := map[string]string{}
	if raw == "" {
		return f, nil
	}
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("custom fields: %w", err)
	}
	return f, nil
}

// applyCustomFields merges in into dst after checking every key names a column
// and every value fits it. Keys are stored under the column's own spelling.
func applyCustomFields(dst map[string]string, cols []Column, in map[string]string) error {
	for k, v := range in {
		i, ok := findColumn(cols, k)
		if !ok {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidColumn, k)
		}
		if !cols[i].accepts(v) {
			return fmt.Errorf("%w: %q is not a valid value for %q", ErrInvalidColumn, v, cols[i].Name)
		}
		dst[cols[i].Name] = v
	}
	return nil
}

// seedCustomFields fills in defaults for columns the job has no value for.
func seedCustomFields(f map[string]string, cols []Column) {
	for _, c := range cols {
		if _, ok := f[c.Name]; !ok {
			f[c.Name] = c.DefaultValue()
		}
	}
}
