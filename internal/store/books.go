package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fablepress/fable/internal/book"
)

// ErrNotFound is returned when a book or page does not exist.
var ErrNotFound = errors.New("not found")

// NewPageInput describes one page of a book being created.
type NewPageInput struct {
	AssetRef         string
	OriginalImageURL string
}

// CreateBookWithPages creates a book and its pages in one transaction.
// Page order follows the input slice; indexes are assigned 0..n-1.
func (s *Store) CreateBookWithPages(ctx context.Context, b *book.Book, pages []NewPageInput) (*book.Book, []*book.Page, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = book.StatusDraft
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO books (id, account_id, title, status, style, tone, theme, stylize, cover_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AccountID, b.Title, string(b.Status),
		b.Style.Style, b.Style.Tone, b.Style.Theme, boolToInt(b.Style.Stylize),
		b.CoverRef, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert book: %w", err)
	}

	created := make([]*book.Page, 0, len(pages))
	for i, in := range pages {
		p := &book.Page{
			ID:               uuid.NewString(),
			BookID:           b.ID,
			Index:            i,
			AssetRef:         in.AssetRef,
			OriginalImageURL: in.OriginalImageURL,
			ModerationStatus: book.ModerationPending,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pages (id, book_id, page_index, asset_ref, original_image_url, moderation_status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.BookID, p.Index, p.AssetRef, p.OriginalImageURL, string(p.ModerationStatus),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert page %d: %w", i, err)
		}
		created = append(created, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return b, created, nil
}

// GetBook returns a book by id.
func (s *Store) GetBook(ctx context.Context, bookID string) (*book.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, title, status, style, tone, theme, stylize, cover_ref, created_at, updated_at
		 FROM books WHERE id = ?`, bookID)
	return scanBook(row)
}

// GetBookWithPages returns a book and its pages ordered by index.
func (s *Store) GetBookWithPages(ctx context.Context, bookID string) (*book.Book, []*book.Page, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	pages, err := s.ListPages(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	return b, pages, nil
}

// ListBooks returns all books for an account, newest first.
func (s *Store) ListBooks(ctx context.Context, accountID string) ([]*book.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, title, status, style, tone, theme, stylize, cover_ref, created_at, updated_at
		 FROM books WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*book.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBookStatus sets a book's status.
func (s *Store) UpdateBookStatus(ctx context.Context, bookID string, status book.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), bookID)
	if err != nil {
		return fmt.Errorf("update book status: %w", err)
	}
	return requireRow(res)
}

// SetCoverRef changes the designated cover asset reference. Allowed only
// before generation starts or after it has terminated.
func (s *Store) SetCoverRef(ctx context.Context, bookID, coverRef string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET cover_ref = ?, updated_at = ? WHERE id = ?`,
		coverRef, time.Now().UTC().Format(time.RFC3339Nano), bookID)
	if err != nil {
		return fmt.Errorf("set cover ref: %w", err)
	}
	return requireRow(res)
}

// DeleteBook removes a book; pages cascade.
func (s *Store) DeleteBook(ctx context.Context, bookID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, bookID)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return requireRow(res)
}

// Projection computes the progress projection for a book.
func (s *Store) Projection(ctx context.Context, bookID string) (book.Projection, error) {
	b, pages, err := s.GetBookWithPages(ctx, bookID)
	if err != nil {
		return book.Projection{}, err
	}
	return book.Project(b, pages), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*book.Book, error) {
	var b book.Book
	var status, createdAt, updatedAt string
	var stylize int
	err := row.Scan(&b.ID, &b.AccountID, &b.Title, &status,
		&b.Style.Style, &b.Style.Tone, &b.Style.Theme, &stylize,
		&b.CoverRef, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan book: %w", err)
	}
	b.Status = book.Status(status)
	b.Style.Stylize = stylize != 0
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &b, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
