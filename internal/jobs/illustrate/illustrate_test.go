package illustrate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/objstore"
	"github.com/fablepress/fable/internal/providers"
	"github.com/fablepress/fable/internal/store"
)

type fixture struct {
	store   *store.Store
	image   *providers.MockImage
	objects *objstore.Client
	book    *book.Book
	pages   []*book.Page

	mu      sync.Mutex
	uploads []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{store: s, image: providers.NewMockImage()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.uploads = append(f.uploads, r.URL.Path)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	f.objects = objstore.New(objstore.Config{BaseURL: srv.URL, Bucket: "illustrations"})

	b, pages, err := s.CreateBookWithPages(ctx, &book.Book{
		AccountID: "acct-1",
		Title:     "The Fox and the Lantern",
		Status:    book.StatusIllustrating,
		Style:     book.StyleParams{Style: "watercolor", Tone: "warm", Theme: "forest"},
	}, []store.NewPageInput{
		{AssetRef: "asset-a", OriginalImageURL: "https://assets.example.com/a"},
		{AssetRef: "asset-b", OriginalImageURL: "https://assets.example.com/b"},
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if err := s.SetCoverRef(ctx, b.ID, "asset-a"); err != nil {
		t.Fatalf("set cover: %v", err)
	}
	b.CoverRef = "asset-a"
	f.book, f.pages = b, pages
	return f
}

func (f *fixture) ctx() context.Context {
	return jobs.ContextWithDeps(context.Background(), jobs.Dependencies{
		Store:   f.store,
		Image:   f.image,
		Objects: f.objects,
	})
}

func (f *fixture) payload(t *testing.T, page *book.Page, text string, isCover bool) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(jobs.IllustratePayload{
		BookID:     f.book.ID,
		PageID:     page.ID,
		PageNumber: page.PageNumber(),
		Text:       text,
		Style:      f.book.Style,
		IsCover:    isCover,
		Notes:      "a fox under lantern light",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func (f *fixture) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func TestExecuteGeneratesAndPersistsIllustration(t *testing.T) {
	f := newFixture(t)
	h := New()
	page := f.pages[1]

	if err := h.Execute(f.ctx(), f.payload(t, page, "The fox set out at dusk.", false)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := f.store.GetPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("reload page: %v", err)
	}
	if got.GeneratedImageURL == "" {
		t.Fatal("no generated image URL persisted")
	}
	wantKey := "books/" + f.book.ID + "/pages/" + page.ID + ".png"
	if !strings.Contains(got.GeneratedImageURL, wantKey) {
		t.Errorf("image URL %q does not carry key %q", got.GeneratedImageURL, wantKey)
	}
	if got.ModerationStatus != book.ModerationPassed {
		t.Errorf("moderation = %s, want PASSED", got.ModerationStatus)
	}
	if f.uploadCount() != 1 {
		t.Errorf("uploads = %d, want 1", f.uploadCount())
	}
}

func TestExecuteCoverIsBrandedAndSucceeds(t *testing.T) {
	f := newFixture(t)
	h := New()
	cover := f.pages[0]

	if err := h.Execute(f.ctx(), f.payload(t, cover, "", true)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, err := f.store.GetPage(context.Background(), cover.ID)
	if err != nil {
		t.Fatalf("reload page: %v", err)
	}
	if got.GeneratedImageURL == "" {
		t.Error("cover illustration not persisted")
	}
}

func TestExecuteModerationRejectionIsAPageOutcome(t *testing.T) {
	f := newFixture(t)
	f.image.RejectPrompts = map[string]string{"fox set out": "screened content"}
	h := New()
	page := f.pages[1]

	// The job completes successfully; the verdict lands on the page.
	if err := h.Execute(f.ctx(), f.payload(t, page, "The fox set out at dusk.", false)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := f.store.GetPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("reload page: %v", err)
	}
	if got.ModerationStatus != book.ModerationFailed {
		t.Errorf("moderation = %s, want FAILED", got.ModerationStatus)
	}
	if got.ModerationReason != "screened content" {
		t.Errorf("reason = %q, want screening reason", got.ModerationReason)
	}
	if got.GeneratedImageURL != "" {
		t.Error("rejected page carries an image URL")
	}
	if f.uploadCount() != 0 {
		t.Error("rejected illustration was uploaded")
	}
}

func TestExecuteSkipsAlreadyIllustratedPage(t *testing.T) {
	f := newFixture(t)
	page := f.pages[1]
	if err := f.store.WritePageIllustration(context.Background(), page.ID, "https://cdn.example.com/done.png"); err != nil {
		t.Fatalf("seed illustration: %v", err)
	}
	h := New()

	if err := h.Execute(f.ctx(), f.payload(t, page, "text", false)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(f.image.Calls) != 0 {
		t.Error("image model called for an already illustrated page")
	}
}

func TestExecuteSkipsModeratedPage(t *testing.T) {
	f := newFixture(t)
	page := f.pages[1]
	if err := f.store.WritePageModeration(context.Background(), page.ID, book.ModerationFailed, "screened"); err != nil {
		t.Fatalf("seed moderation: %v", err)
	}
	h := New()

	if err := h.Execute(f.ctx(), f.payload(t, page, "text", false)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(f.image.Calls) != 0 {
		t.Error("image model called for a moderated page")
	}
}

func TestExecuteTransientErrorIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.image.Err = &providers.TransientError{Provider: "mock", Err: errors.New("503")}
	h := New()

	err := h.Execute(f.ctx(), f.payload(t, f.pages[1], "text", false))
	if err == nil {
		t.Fatal("expected error")
	}
	if jobs.IsPermanent(err) {
		t.Error("transient error marked permanent")
	}
}

func TestExecuteUpscaleFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.image.Data = []byte("not an image")
	h := New()
	page := f.pages[1]

	// Undecodable model output fails this delivery but stays retryable:
	// nothing was persisted, so the retry generates a fresh image.
	err := h.Execute(f.ctx(), f.payload(t, page, "text", false))
	if err == nil {
		t.Fatal("expected error")
	}
	if jobs.IsPermanent(err) {
		t.Error("upscale failure marked permanent")
	}
	got, gerr := f.store.GetPage(context.Background(), page.ID)
	if gerr != nil {
		t.Fatalf("reload page: %v", gerr)
	}
	if got.GeneratedImageURL != "" {
		t.Error("failed delivery persisted an image URL")
	}
	if f.uploadCount() != 0 {
		t.Error("failed delivery uploaded")
	}
}

func TestBuildPromptCoverRendersTitleOnly(t *testing.T) {
	b := &book.Book{Title: "The Fox and the Lantern", Style: book.StyleParams{Style: "gouache"}}

	cover := BuildPrompt(b, &jobs.IllustratePayload{IsCover: true})
	if !strings.Contains(cover, b.Title) {
		t.Error("cover prompt does not carry the title")
	}
	if !strings.Contains(cover, "front cover") {
		t.Error("cover prompt does not identify the cover")
	}

	interior := BuildPrompt(b, &jobs.IllustratePayload{Text: "The fox ran.", Notes: "moonlight"})
	if !strings.Contains(interior, "The fox ran.") {
		t.Error("interior prompt does not carry the page text")
	}
	if !strings.Contains(interior, "moonlight") {
		t.Error("interior prompt does not carry the notes")
	}
	if !strings.Contains(interior, "Do not render any text") {
		t.Error("interior prompt does not suppress in-image text")
	}
	if strings.Contains(interior, "front cover") {
		t.Error("interior prompt claims to be a cover")
	}
}

func TestBuildPromptIncludesStyleParams(t *testing.T) {
	b := &book.Book{Title: "T", Style: book.StyleParams{Style: "ink wash", Tone: "playful", Theme: "ocean", Stylize: true}}
	prompt := BuildPrompt(b, &jobs.IllustratePayload{Text: "x"})
	for _, want := range []string{"ink wash", "playful", "ocean", "stylized"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
