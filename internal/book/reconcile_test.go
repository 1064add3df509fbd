package book

import (
	"fmt"
	"testing"
)

// makeBook builds a book with n pages where page 0 is the cover.
func makeBook(n int) (*Book, []*Page) {
	b := &Book{
		ID:       "book-1",
		Status:   StatusIllustrating,
		CoverRef: "asset-0",
	}
	pages := make([]*Page, n)
	for i := range pages {
		pages[i] = &Page{
			ID:               fmt.Sprintf("page-%d", i),
			BookID:           b.ID,
			Index:            i,
			AssetRef:         fmt.Sprintf("asset-%d", i),
			ModerationStatus: ModerationPending,
		}
	}
	return b, pages
}

func TestReconcile_AllComplete(t *testing.T) {
	b, pages := makeBook(5)
	for _, p := range pages {
		p.Text = "once upon a time"
		p.GeneratedImageURL = "https://cdn.example/" + p.ID + ".png"
	}
	if got := Reconcile(b, pages); got != StatusCompleted {
		t.Errorf("Reconcile() = %v, want %v", got, StatusCompleted)
	}
}

// TestReconcile_IllustrationsDominateText pins the product rule that full
// illustration coverage yields COMPLETED even with zero story text.
func TestReconcile_IllustrationsDominateText(t *testing.T) {
	b, pages := makeBook(5)
	for _, p := range pages {
		p.GeneratedImageURL = "https://cdn.example/" + p.ID + ".png"
	}
	// No page has text at all.
	if got := Reconcile(b, pages); got != StatusCompleted {
		t.Errorf("Reconcile() = %v, want %v (illustration-complete rule)", got, StatusCompleted)
	}
}

func TestReconcile_PartialAndFailed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(pages []*Page)
		want  Status
	}{
		{
			name: "partial illustrations partial text",
			setup: func(pages []*Page) {
				pages[1].Text = "some text"
				pages[2].GeneratedImageURL = "https://cdn.example/p2.png"
			},
			want: StatusPartial,
		},
		{
			name: "text only no illustrations",
			setup: func(pages []*Page) {
				for _, p := range pages {
					p.Text = "words"
				}
			},
			want: StatusPartial,
		},
		{
			name: "single illustration",
			setup: func(pages []*Page) {
				pages[3].GeneratedImageURL = "https://cdn.example/p3.png"
			},
			want: StatusPartial,
		},
		{
			name:  "zero content",
			setup: func(pages []*Page) {},
			want:  StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, pages := makeBook(5)
			tt.setup(pages)
			if got := Reconcile(b, pages); got != tt.want {
				t.Errorf("Reconcile() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestReconcile_MissingTextOnCoverIgnored verifies that text completeness is
// judged over story pages only.
func TestReconcile_MissingTextOnCoverIgnored(t *testing.T) {
	b, pages := makeBook(4)
	for _, p := range pages {
		p.GeneratedImageURL = "https://cdn.example/" + p.ID + ".png"
		if !IsCover(p, b) {
			p.Text = "story"
		}
	}
	if got := Reconcile(b, pages); got != StatusCompleted {
		t.Errorf("Reconcile() = %v, want %v", got, StatusCompleted)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	b, pages := makeBook(5)
	pages[0].GeneratedImageURL = "https://cdn.example/p0.png"
	pages[1].Text = "text"

	first := Reconcile(b, pages)
	b.Status = first
	second := Reconcile(b, pages)
	if first != second {
		t.Errorf("Reconcile() not idempotent: first=%v second=%v", first, second)
	}
}

func TestReconcile_NoPages(t *testing.T) {
	b := &Book{ID: "empty"}
	if got := Reconcile(b, nil); got != StatusFailed {
		t.Errorf("Reconcile() = %v, want %v", got, StatusFailed)
	}
}

func TestIsCover_PureDerivation(t *testing.T) {
	b, pages := makeBook(3)

	covers := 0
	for _, p := range pages {
		if IsCover(p, b) {
			covers++
		}
	}
	if covers != 1 {
		t.Fatalf("cover count = %d, want 1", covers)
	}

	// Re-designating the cover must move cover-ness without touching pages.
	b.CoverRef = "asset-2"
	if IsCover(pages[0], b) {
		t.Error("page 0 still reports cover after re-designation")
	}
	if !IsCover(pages[2], b) {
		t.Error("page 2 does not report cover after re-designation")
	}

	// No designated cover: zero cover pages.
	b.CoverRef = ""
	for _, p := range pages {
		if IsCover(p, b) {
			t.Errorf("page %d reports cover with no designated cover ref", p.Index)
		}
	}
}

func TestStoryPages_ExcludesCover(t *testing.T) {
	b, pages := makeBook(5)
	story := StoryPages(b, pages)
	if len(story) != 4 {
		t.Fatalf("StoryPages() len = %d, want 4", len(story))
	}
	for _, p := range story {
		if IsCover(p, b) {
			t.Errorf("story pages contain cover page %s", p.ID)
		}
	}
}

func TestProject(t *testing.T) {
	b, pages := makeBook(5)
	b.Status = StatusPartial
	pages[0].GeneratedImageURL = "https://cdn.example/p0.png"
	pages[1].Text = "text"
	pages[2].ModerationStatus = ModerationFailed

	proj := Project(b, pages)
	if proj.TotalPages != 5 || proj.PagesIllustrated != 1 || proj.PagesWithText != 1 {
		t.Errorf("Project() = %+v", proj)
	}
	if proj.PagesFailed != 4 {
		t.Errorf("PagesFailed = %d, want 4", proj.PagesFailed)
	}
	if proj.PagesModerated != 1 {
		t.Errorf("PagesModerated = %d, want 1", proj.PagesModerated)
	}
}
