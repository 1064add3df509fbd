// Package narrative implements the narrative-generate job: one
// vision+text model call covering a whole book, followed by the
// transactional page-text write and the scheduling of the illustration
// job graph.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/providers"
	"github.com/fablepress/fable/internal/store"
)

// Handler executes narrative-generate jobs.
type Handler struct{}

// New creates the handler.
func New() *Handler { return &Handler{} }

// Type implements jobs.Handler.
func (h *Handler) Type() string { return jobs.TypeNarrative }

// Execute implements jobs.Handler.
func (h *Handler) Execute(ctx context.Context, raw json.RawMessage) error {
	var payload jobs.NarrativePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return jobs.Permanent(fmt.Errorf("decode narrative payload: %w", err))
	}

	deps := jobs.DepsFromContext(ctx)
	logger := deps.Log().With("job", jobs.TypeNarrative, "book_id", payload.BookID)

	b, pages, err := deps.Store.GetBookWithPages(ctx, payload.BookID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load book: %w", err))
	}
	if len(pages) == 0 {
		return jobs.Permanent(fmt.Errorf("book %s has no pages", b.ID))
	}
	if b.Status.Terminal() {
		// A stale delivery from a superseded cycle; the current cycle
		// already concluded. Accept and drop.
		logger.Info("skipping narrative for terminal book", "status", b.Status)
		return nil
	}

	req := buildStoryRequest(b, pages)
	storyPages, err := deps.Story.GenerateStory(ctx, req)
	if err != nil {
		if providers.IsValidation(err) {
			// Deterministic output defect: retrying reproduces it.
			return jobs.Permanent(err)
		}
		return err
	}
	// The provider guarantees positional 1:1 mapping; defend the write
	// path anyway since it mutates every page.
	if len(storyPages) != len(pages) {
		return jobs.Permanent(&providers.ValidationError{
			Provider: deps.Story.Name(),
			Reason:   fmt.Sprintf("narrative count %d != page count %d", len(storyPages), len(pages)),
		})
	}

	narratives := make([]store.PageNarrative, len(pages))
	for i, p := range pages {
		narratives[i] = store.PageNarrative{
			PageID:            p.ID,
			Text:              storyPages[i].Text,
			IllustrationNotes: storyPages[i].IllustrationNotes,
		}
	}
	if err := deps.Store.WriteNarrative(ctx, b.ID, narratives, book.StatusStoryReady); err != nil {
		return fmt.Errorf("persist narrative: %w", err)
	}
	logger.Info("narrative written", "pages", len(pages))

	// Illustration graph is scheduled only after the write landed.
	children := make([]jobs.JobSpec, len(pages))
	for i, p := range pages {
		children[i] = jobs.JobSpec{
			Type: jobs.TypeIllustrate,
			Payload: jobs.IllustratePayload{
				BookID:     b.ID,
				PageID:     p.ID,
				PageNumber: p.PageNumber(),
				Text:       storyPages[i].Text,
				Style:      b.Style,
				IsCover:    book.IsCover(p, b),
				Notes:      storyPages[i].IllustrationNotes,
			},
		}
	}
	parent := jobs.JobSpec{Type: jobs.TypeFinalize, Payload: jobs.FinalizePayload{BookID: b.ID}}
	if _, err := deps.Broker.EnqueueGraph(ctx, parent, children); err != nil {
		return fmt.Errorf("schedule illustration graph: %w", err)
	}

	if err := deps.Store.UpdateBookStatus(ctx, b.ID, book.StatusIllustrating); err != nil {
		return fmt.Errorf("mark illustrating: %w", err)
	}
	return nil
}

// OnExhausted marks the book FAILED once narrative retries are spent.
// There is no meaningful partial outcome for the single narrative call.
func (h *Handler) OnExhausted(ctx context.Context, raw json.RawMessage, cause string) {
	var payload jobs.NarrativePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	deps := jobs.DepsFromContext(ctx)
	if deps.Store == nil {
		return
	}
	if err := deps.Store.UpdateBookStatus(ctx, payload.BookID, book.StatusFailed); err != nil {
		deps.Log().Error("marking book failed after narrative exhaustion",
			"book_id", payload.BookID, "error", err)
		return
	}
	deps.Log().Warn("book failed: narrative generation exhausted",
		"book_id", payload.BookID, "cause", cause)
}

func buildStoryRequest(b *book.Book, pages []*book.Page) *providers.StoryRequest {
	req := &providers.StoryRequest{
		Title:         b.Title,
		Style:         b.Style,
		PageImageURLs: make([]string, len(pages)),
		CoverIndex:    -1,
	}
	for i, p := range pages {
		req.PageImageURLs[i] = p.OriginalImageURL
		if book.IsCover(p, b) {
			req.CoverIndex = i
		}
	}
	return req
}
