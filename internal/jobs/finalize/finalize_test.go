package finalize

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/store"
)

func newFixture(t *testing.T) (*store.Store, *book.Book, []*book.Page) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	b, pages, err := s.CreateBookWithPages(ctx, &book.Book{
		AccountID: "acct-1",
		Title:     "The Fox and the Lantern",
		Status:    book.StatusIllustrating,
	}, []store.NewPageInput{
		{AssetRef: "asset-a", OriginalImageURL: "https://assets.example.com/a"},
		{AssetRef: "asset-b", OriginalImageURL: "https://assets.example.com/b"},
		{AssetRef: "asset-c", OriginalImageURL: "https://assets.example.com/c"},
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return s, b, pages
}

func run(t *testing.T, s *store.Store, bookID string) {
	t.Helper()
	ctx := jobs.ContextWithDeps(context.Background(), jobs.Dependencies{Store: s})
	raw, err := json.Marshal(jobs.FinalizePayload{BookID: bookID})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := New().Execute(ctx, raw); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func status(t *testing.T, s *store.Store, bookID string) book.Status {
	t.Helper()
	b, err := s.GetBook(context.Background(), bookID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return b.Status
}

func TestExecuteFullSuccessCompletesBook(t *testing.T) {
	s, b, pages := newFixture(t)
	ctx := context.Background()
	for i, p := range pages {
		if err := s.UpdatePageText(ctx, p.ID, "text"); err != nil {
			t.Fatalf("seed text: %v", err)
		}
		if err := s.WritePageIllustration(ctx, p.ID, "https://cdn.example.com/"+p.ID+".png"); err != nil {
			t.Fatalf("seed illustration %d: %v", i, err)
		}
	}

	run(t, s, b.ID)
	if got := status(t, s, b.ID); got != book.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got)
	}
}

func TestExecuteAllIllustrationsCompleteDespiteMissingText(t *testing.T) {
	s, b, pages := newFixture(t)
	ctx := context.Background()
	for _, p := range pages {
		if err := s.WritePageIllustration(ctx, p.ID, "https://cdn.example.com/"+p.ID+".png"); err != nil {
			t.Fatalf("seed illustration: %v", err)
		}
	}

	run(t, s, b.ID)
	if got := status(t, s, b.ID); got != book.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED when all illustrations landed", got)
	}
}

func TestExecutePartialOutputYieldsPartial(t *testing.T) {
	s, b, pages := newFixture(t)
	if err := s.WritePageIllustration(context.Background(), pages[0].ID, "https://cdn.example.com/x.png"); err != nil {
		t.Fatalf("seed illustration: %v", err)
	}

	run(t, s, b.ID)
	if got := status(t, s, b.ID); got != book.StatusPartial {
		t.Errorf("status = %s, want PARTIAL", got)
	}
}

func TestExecuteNoOutputYieldsFailed(t *testing.T) {
	s, b, _ := newFixture(t)

	run(t, s, b.ID)
	if got := status(t, s, b.ID); got != book.StatusFailed {
		t.Errorf("status = %s, want FAILED", got)
	}
}

func TestExecutePreservesNarrativeFailureVerdict(t *testing.T) {
	s, b, pages := newFixture(t)
	ctx := context.Background()
	// Narrative exhaustion failed the book; a stale finalize delivery
	// must not resurrect it even if some pages carry output.
	if err := s.WritePageIllustration(ctx, pages[0].ID, "https://cdn.example.com/x.png"); err != nil {
		t.Fatalf("seed illustration: %v", err)
	}
	if err := s.UpdateBookStatus(ctx, b.ID, book.StatusFailed); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	run(t, s, b.ID)
	if got := status(t, s, b.ID); got != book.StatusFailed {
		t.Errorf("status = %s, want FAILED preserved", got)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	s, b, pages := newFixture(t)
	ctx := context.Background()
	for _, p := range pages {
		if err := s.WritePageIllustration(ctx, p.ID, "https://cdn.example.com/"+p.ID+".png"); err != nil {
			t.Fatalf("seed illustration: %v", err)
		}
	}

	run(t, s, b.ID)
	run(t, s, b.ID)
	if got := status(t, s, b.ID); got != book.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED after redelivery", got)
	}
}
