// Package finalize implements the book-finalize job. It runs once per
// generation cycle, after every illustration job for the book has
// settled, and reconciles accumulated page state into the terminal
// book status.
package finalize

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/jobs"
)

// Handler executes book-finalize jobs.
type Handler struct{}

// New creates the handler.
func New() *Handler { return &Handler{} }

// Type implements jobs.Handler.
func (h *Handler) Type() string { return jobs.TypeFinalize }

// Execute implements jobs.Handler. Reconciliation is a pure function of
// page state, so re-delivery recomputes the same verdict.
func (h *Handler) Execute(ctx context.Context, raw json.RawMessage) error {
	var payload jobs.FinalizePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return jobs.Permanent(fmt.Errorf("decode finalize payload: %w", err))
	}

	deps := jobs.DepsFromContext(ctx)
	b, pages, err := deps.Store.GetBookWithPages(ctx, payload.BookID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load book: %w", err))
	}
	if b.Status == book.StatusFailed {
		// Narrative exhaustion already failed the book; the verdict stands.
		return nil
	}

	status := book.Reconcile(b, pages)
	if err := deps.Store.UpdateBookStatus(ctx, b.ID, status); err != nil {
		return fmt.Errorf("record final status: %w", err)
	}
	deps.Log().Info("book finalized", "book_id", b.ID, "status", status)
	return nil
}
