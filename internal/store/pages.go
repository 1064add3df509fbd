package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fablepress/fable/internal/book"
)

// ListPages returns all pages of a book ordered by index.
func (s *Store) ListPages(ctx context.Context, bookID string) ([]*book.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, page_index, asset_ref, original_image_url, text,
		        illustration_notes, generated_image_url, moderation_status, moderation_reason
		 FROM pages WHERE book_id = ? ORDER BY page_index`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []*book.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetPage returns a single page by id.
func (s *Store) GetPage(ctx context.Context, pageID string) (*book.Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, book_id, page_index, asset_ref, original_image_url, text,
		        illustration_notes, generated_image_url, moderation_status, moderation_reason
		 FROM pages WHERE id = ?`, pageID)
	return scanPage(row)
}

// PageNarrative is one page's narrative output from the story model.
type PageNarrative struct {
	PageID            string
	Text              string
	IllustrationNotes string
}

// WriteNarrative stores the narrative for every page and transitions the
// book's status in a single transaction. Either all page texts land or
// none do.
func (s *Store) WriteNarrative(ctx context.Context, bookID string, narratives []PageNarrative, status book.Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range narratives {
		res, err := tx.ExecContext(ctx,
			`UPDATE pages SET text = ?, illustration_notes = ? WHERE id = ? AND book_id = ?`,
			n.Text, n.IllustrationNotes, n.PageID, bookID)
		if err != nil {
			return fmt.Errorf("write narrative for page %s: %w", n.PageID, err)
		}
		if err := requireRow(res); err != nil {
			return fmt.Errorf("page %s: %w", n.PageID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE books SET status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`,
		string(status), bookID)
	if err != nil {
		return fmt.Errorf("update book status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit narrative: %w", err)
	}
	return nil
}

// WritePageIllustration records a successful illustration upload for one
// page. Overwrites are idempotent; duplicate queue deliveries land on the
// same row with the same values.
func (s *Store) WritePageIllustration(ctx context.Context, pageID, imageURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET generated_image_url = ?, moderation_status = ?, moderation_reason = '' WHERE id = ?`,
		imageURL, string(book.ModerationPassed), pageID)
	if err != nil {
		return fmt.Errorf("write page illustration: %w", err)
	}
	return requireRow(res)
}

// WritePageModeration records a content-screening rejection for one page.
// The generated image URL stays empty.
func (s *Store) WritePageModeration(ctx context.Context, pageID string, status book.ModerationStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET moderation_status = ?, moderation_reason = ? WHERE id = ?`,
		string(status), reason, pageID)
	if err != nil {
		return fmt.Errorf("write page moderation: %w", err)
	}
	return requireRow(res)
}

// UpdatePageText applies a user edit to one page's narrative text.
func (s *Store) UpdatePageText(ctx context.Context, pageID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET text = ? WHERE id = ?`, text, pageID)
	if err != nil {
		return fmt.Errorf("update page text: %w", err)
	}
	return requireRow(res)
}

// ResetPageOutputs clears generated content on every page of a book.
// Used when the user restarts generation from a terminal state.
func (s *Store) ResetPageOutputs(ctx context.Context, bookID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pages SET text = '', illustration_notes = '', generated_image_url = '',
		        moderation_status = ?, moderation_reason = ''
		 WHERE book_id = ?`,
		string(book.ModerationPending), bookID)
	if err != nil {
		return fmt.Errorf("reset page outputs: %w", err)
	}
	return nil
}

func scanPage(row rowScanner) (*book.Page, error) {
	var p book.Page
	var moderation string
	err := row.Scan(&p.ID, &p.BookID, &p.Index, &p.AssetRef, &p.OriginalImageURL,
		&p.Text, &p.IllustrationNotes, &p.GeneratedImageURL, &moderation, &p.ModerationReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}
	p.ModerationStatus = book.ModerationStatus(moderation)
	return &p, nil
}
