package endpoints

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/store"
	"github.com/fablepress/fable/internal/svcctx"
)

func TestGenerateRevertsStatusWhenEnqueueFails(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	b, _, err := s.CreateBookWithPages(ctx, &book.Book{
		AccountID: "acct-1",
		Title:     "The Fox and the Lantern",
		Status:    book.StatusDraft,
	}, []store.NewPageInput{
		{AssetRef: "asset-a", OriginalImageURL: "https://assets.example.com/a"},
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	// A broker over a closed database cannot accept the narrative job.
	dead, err := store.Open(ctx, filepath.Join(t.TempDir(), "dead.db"))
	if err != nil {
		t.Fatalf("open dead store: %v", err)
	}
	_ = dead.Close()
	broker := jobs.NewBroker(jobs.BrokerConfig{DB: dead.DB()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/books/"+b.ID+"/generate", nil)
	req.SetPathValue("id", b.ID)
	req = req.WithContext(svcctx.WithServices(req.Context(), &svcctx.Services{Store: s, Broker: broker}))
	rr := httptest.NewRecorder()

	e := &GenerateEndpoint{}
	_, _, handler := e.Route()
	handler(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}

	// The book must not be left claiming an in-flight cycle, or every
	// later generate request would be refused with a conflict.
	got, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("reload book: %v", err)
	}
	if got.Status != book.StatusDraft {
		t.Errorf("book status = %s, want DRAFT restored after enqueue failure", got.Status)
	}
}
