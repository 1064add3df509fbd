package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fablepress/fable/internal/book"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "fable.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedBook(t *testing.T, s *Store, n int) (*book.Book, []*book.Page) {
	t.Helper()
	inputs := make([]NewPageInput, n)
	for i := range inputs {
		inputs[i] = NewPageInput{
			AssetRef:         "asset-" + string(rune('a'+i)),
			OriginalImageURL: "https://cdn.example/orig-" + string(rune('a'+i)) + ".jpg",
		}
	}
	b, pages, err := s.CreateBookWithPages(context.Background(), &book.Book{
		AccountID: "acct-1",
		Title:     "Summer Trip",
		CoverRef:  "asset-a",
		Style:     book.StyleParams{Style: "watercolor", Tone: "warm", Theme: "adventure"},
	}, inputs)
	if err != nil {
		t.Fatalf("CreateBookWithPages() error = %v", err)
	}
	return b, pages
}

func TestCreateAndGetBook(t *testing.T) {
	s := openTestStore(t)
	b, pages := seedBook(t, s, 3)

	got, gotPages, err := s.GetBookWithPages(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBookWithPages() error = %v", err)
	}
	if got.Status != book.StatusDraft {
		t.Errorf("status = %v, want DRAFT", got.Status)
	}
	if got.Style.Style != "watercolor" {
		t.Errorf("style = %q", got.Style.Style)
	}
	if len(gotPages) != len(pages) {
		t.Fatalf("pages = %d, want %d", len(gotPages), len(pages))
	}
	for i, p := range gotPages {
		if p.Index != i {
			t.Errorf("page %d index = %d", i, p.Index)
		}
		if p.ModerationStatus != book.ModerationPending {
			t.Errorf("page %d moderation = %v", i, p.ModerationStatus)
		}
	}
}

func TestGetBook_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetBook(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBook() error = %v, want ErrNotFound", err)
	}
}

func TestWriteNarrative_Transactional(t *testing.T) {
	s := openTestStore(t)
	b, pages := seedBook(t, s, 3)

	narratives := make([]PageNarrative, len(pages))
	for i, p := range pages {
		narratives[i] = PageNarrative{PageID: p.ID, Text: "page text", IllustrationNotes: "sunny"}
	}
	// One bogus page id must roll back the whole write.
	narratives[2].PageID = "does-not-exist"

	err := s.WriteNarrative(context.Background(), b.ID, narratives, book.StatusStoryReady)
	if err == nil {
		t.Fatal("WriteNarrative() expected error")
	}

	got, gotPages, err := s.GetBookWithPages(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBookWithPages() error = %v", err)
	}
	if got.Status != book.StatusDraft {
		t.Errorf("status after rollback = %v, want DRAFT", got.Status)
	}
	for _, p := range gotPages {
		if p.Text != "" {
			t.Errorf("page %d has text after rollback", p.Index)
		}
	}
}

func TestWriteNarrative_Success(t *testing.T) {
	s := openTestStore(t)
	b, pages := seedBook(t, s, 2)

	narratives := []PageNarrative{
		{PageID: pages[0].ID, Text: "first", IllustrationNotes: "note-0"},
		{PageID: pages[1].ID, Text: "second"},
	}
	if err := s.WriteNarrative(context.Background(), b.ID, narratives, book.StatusStoryReady); err != nil {
		t.Fatalf("WriteNarrative() error = %v", err)
	}

	got, gotPages, _ := s.GetBookWithPages(context.Background(), b.ID)
	if got.Status != book.StatusStoryReady {
		t.Errorf("status = %v, want STORY_READY", got.Status)
	}
	if gotPages[0].Text != "first" || gotPages[0].IllustrationNotes != "note-0" {
		t.Errorf("page 0 = %+v", gotPages[0])
	}
}

func TestWritePageIllustration_Idempotent(t *testing.T) {
	s := openTestStore(t)
	_, pages := seedBook(t, s, 2)

	url := "https://cdn.example/out.png"
	for i := 0; i < 2; i++ {
		if err := s.WritePageIllustration(context.Background(), pages[0].ID, url); err != nil {
			t.Fatalf("WritePageIllustration() attempt %d error = %v", i, err)
		}
	}
	p, err := s.GetPage(context.Background(), pages[0].ID)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if p.GeneratedImageURL != url || p.ModerationStatus != book.ModerationPassed {
		t.Errorf("page = %+v", p)
	}

	// Sibling untouched.
	sib, _ := s.GetPage(context.Background(), pages[1].ID)
	if sib.GeneratedImageURL != "" || sib.ModerationStatus != book.ModerationPending {
		t.Errorf("sibling mutated: %+v", sib)
	}
}

func TestWritePageModeration(t *testing.T) {
	s := openTestStore(t)
	_, pages := seedBook(t, s, 1)

	if err := s.WritePageModeration(context.Background(), pages[0].ID, book.ModerationFailed, "unsafe content"); err != nil {
		t.Fatalf("WritePageModeration() error = %v", err)
	}
	p, _ := s.GetPage(context.Background(), pages[0].ID)
	if p.ModerationStatus != book.ModerationFailed || p.ModerationReason != "unsafe content" {
		t.Errorf("page = %+v", p)
	}
	if p.GeneratedImageURL != "" {
		t.Error("moderation rejection must leave generated image url empty")
	}
}

func TestDeleteBook_CascadesToPages(t *testing.T) {
	s := openTestStore(t)
	b, pages := seedBook(t, s, 3)

	if err := s.DeleteBook(context.Background(), b.ID); err != nil {
		t.Fatalf("DeleteBook() error = %v", err)
	}
	if _, err := s.GetPage(context.Background(), pages[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("page survived cascade delete: err = %v", err)
	}
}

func TestResetPageOutputs(t *testing.T) {
	s := openTestStore(t)
	b, pages := seedBook(t, s, 2)

	_ = s.WritePageIllustration(context.Background(), pages[0].ID, "https://cdn.example/x.png")
	_ = s.UpdatePageText(context.Background(), pages[1].ID, "edited")

	if err := s.ResetPageOutputs(context.Background(), b.ID); err != nil {
		t.Fatalf("ResetPageOutputs() error = %v", err)
	}
	_, gotPages, _ := s.GetBookWithPages(context.Background(), b.ID)
	for _, p := range gotPages {
		if p.Text != "" || p.GeneratedImageURL != "" || p.ModerationStatus != book.ModerationPending {
			t.Errorf("page %d not reset: %+v", p.Index, p)
		}
	}
}

func TestProjection(t *testing.T) {
	s := openTestStore(t)
	b, pages := seedBook(t, s, 3)

	_ = s.WritePageIllustration(context.Background(), pages[1].ID, "https://cdn.example/p1.png")
	_ = s.UpdatePageText(context.Background(), pages[2].ID, "text")

	proj, err := s.Projection(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Projection() error = %v", err)
	}
	if proj.TotalPages != 3 || proj.PagesIllustrated != 1 || proj.PagesWithText != 1 {
		t.Errorf("Projection() = %+v", proj)
	}
}
