package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	slugRe = regexp.MustCompile(`^[a-z0-9-]+$`)
	pinRe  = regexp.MustCompile(`^\d{4,6}$`)
)

type Board struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	HasPIN    bool      `json:"hasPin"`
	CreatedAt time.Time `json:"createdAt"`

	// saved column order as stored; see ColumnOrder for the resolved one
	ColumnOrder []string `json:"-"`

	pinHash string
}

func ValidSlug(slug string) bool { return slugRe.MatchString(slug) }

func defaultBoardTitle(slug string) string {
	return strings.ToUpper(slug[:1]) + slug[1:] + "'s Job Board"
}

// CreateBoard inserts a new board. pin is optional; when set it must be 4-6
// digits and is stored as a bcrypt hash.
func CreateBoard(ctx context.Context, db *sql.DB, slug, title, pin string) (Board, error) {
	if !ValidSlug(slug) {
		return Board{}, ErrInvalidSlug
	}
	if pin != "" && !pinRe.MatchString(pin) {
		return Board{}, ErrInvalidPIN
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultBoardTitle(slug)
	}

	b := Board{Slug: slug, Title: title, CreatedAt: time.Now().UTC()}
	if pin != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return Board{}, fmt.Errorf("hash pin: %w", err)
		}
		b.pinHash = string(h)
		b.HasPIN = true
	}

	err := withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := getBoard(ctx, tx, slug); err == nil {
			return ErrBoardExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO boards(slug, title, pin_hash, created_at)
VALUES(?,?,?,?);`,
			b.Slug, b.Title, b.pinHash, b.CreatedAt.Format(time.RFC3339))
		return err
	})
	if err != nil {
		return Board{}, err
	}
	return b, nil
}

func GetBoard(ctx context.Context, db *sql.DB, slug string) (Board, error) {
	if !ValidSlug(slug) {
		return Board{}, ErrInvalidSlug
	}
	return getBoard(ctx, db, slug)
}

func getBoard(ctx context.Context, q querier, slug string) (Board, error) {
	var b Board
	var created, order string
	err := q.QueryRowContext(ctx, `
SELECT slug, title, pin_hash, created_at, column_order
FROM boards
WHERE slug = ?;`, slug).Scan(&b.Slug, &b.Title, &b.pinHash, &created, &order)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, err
	}
	if err := json.Unmarshal([]byte(order), &b.ColumnOrder); err != nil {
		return Board{}, fmt.Errorf("board %q column order: %w", slug, err)
	}
	b.HasPIN = b.pinHash != ""
	b.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return b, nil
}

// VerifyBoardPIN returns nil when pin unlocks the board, or when the board has
// no PIN at all.
func VerifyBoardPIN(ctx context.Context, db *sql.DB, slug, pin string) error {
	b, err := GetBoard(ctx, db, slug)
	if err != nil {
		return err
	}
	return b.checkPIN(pin)
}

func (b Board) checkPIN(pin string) error {
	if !b.HasPIN {
		return nil
	}
	if pin == "" {
		return ErrPINRequired
	}
	if bcrypt.CompareHashAndPassword([]byte(b.pinHash), []byte(pin)) != nil {
		return ErrPINMismatch
	}
	return nil
}

// SetBoardPIN sets, changes or (with newPIN == "") removes the board PIN.
// A protected board needs its current PIN first.
func SetBoardPIN(ctx context.Context, db *sql.DB, slug, currentPIN, newPIN string) error {
	if newPIN != "" && !pinRe.MatchString(newPIN) {
		return ErrInvalidPIN
	}
	b, err := GetBoard(ctx, db, slug)
	if err != nil {
		return err
	}
	if err := b.checkPIN(currentPIN); err != nil {
		return err
	}

	hash := ""
	if newPIN != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(newPIN), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash pin: %w", err)
		}
		hash = string(h)
	}
	_, err = db.ExecContext(ctx, `UPDATE boards SET pin_hash = ? WHERE slug = ?;`, hash, slug)
	return err
}
