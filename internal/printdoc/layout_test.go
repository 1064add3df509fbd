package printdoc

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fablepress/fable/internal/book"
)

// fixture builds a book with one cover page plus storyPages story pages,
// all fully illustrated and texted.
func fixture(storyPages int) (*book.Book, []*book.Page) {
	b := &book.Book{
		ID:       "book-1",
		Title:    "Summer Trip",
		Status:   book.StatusCompleted,
		CoverRef: "asset-cover",
	}
	pages := []*book.Page{{
		ID:                "page-cover",
		Index:             0,
		AssetRef:          "asset-cover",
		Text:              "Summer Trip",
		GeneratedImageURL: "https://cdn.example/cover.png",
	}}
	for i := 1; i <= storyPages; i++ {
		pages = append(pages, &book.Page{
			ID:                fmt.Sprintf("page-%d", i),
			Index:             i,
			AssetRef:          fmt.Sprintf("asset-%d", i),
			Text:              fmt.Sprintf("Story passage %d.", i),
			GeneratedImageURL: fmt.Sprintf("https://cdn.example/p%d.png", i),
		})
	}
	return b, pages
}

// TestBuildInterior_PaddingLaw verifies that for any story-page count n the
// pre-pad count is 2n+1 and the padded count is the smallest multiple of
// 4 at or above it.
func TestBuildInterior_PaddingLaw(t *testing.T) {
	for n := 1; n <= 23; n++ {
		b, pages := fixture(n)
		layout, err := BuildInterior(b, pages)
		if err != nil {
			t.Fatalf("n=%d: BuildInterior() error = %v", n, err)
		}

		prePad := 2*n + 1 // text+illustration per story page, plus dedication
		got := len(layout.Pages)
		if got%4 != 0 {
			t.Errorf("n=%d: page count %d not divisible by 4", n, got)
		}
		if got < prePad || got-prePad >= 4 {
			t.Errorf("n=%d: padded count %d is not the smallest multiple of 4 >= %d", n, got, prePad)
		}
		blanks := 0
		for _, p := range layout.Pages[prePad:] {
			if p.Kind == PageKindBlank {
				blanks++
			}
		}
		if blanks != got-prePad {
			t.Errorf("n=%d: trailing pages are not all blank", n)
		}
	}
}

func TestBuildInterior_Interleaving(t *testing.T) {
	b, pages := fixture(3)
	layout, err := BuildInterior(b, pages)
	if err != nil {
		t.Fatalf("BuildInterior() error = %v", err)
	}

	if layout.Pages[0].Kind != PageKindDedication {
		t.Errorf("page 0 kind = %v, want dedication", layout.Pages[0].Kind)
	}
	for i := 0; i < 3; i++ {
		text := layout.Pages[1+2*i]
		illus := layout.Pages[2+2*i]
		if text.Kind != PageKindText {
			t.Errorf("page %d kind = %v, want text", 1+2*i, text.Kind)
		}
		if text.Text != fmt.Sprintf("Story passage %d.", i+1) {
			t.Errorf("page %d text = %q (ordering broken)", 1+2*i, text.Text)
		}
		if illus.Kind != PageKindIllustration {
			t.Errorf("page %d kind = %v, want illustration", 2+2*i, illus.Kind)
		}
		if !strings.Contains(illus.ImageURL, fmt.Sprintf("p%d.png", i+1)) {
			t.Errorf("page %d image = %q", 2+2*i, illus.ImageURL)
		}
	}
}

func TestBuildInterior_ExcludesCover(t *testing.T) {
	b, pages := fixture(2)
	layout, err := BuildInterior(b, pages)
	if err != nil {
		t.Fatalf("BuildInterior() error = %v", err)
	}
	for i, p := range layout.Pages {
		if strings.Contains(p.ImageURL, "cover.png") {
			t.Errorf("interior page %d references the cover illustration", i)
		}
	}
}

func TestBuildInterior_UsesPrintTransform(t *testing.T) {
	b, pages := fixture(1)
	layout, _ := BuildInterior(b, pages)
	for _, p := range layout.Pages {
		if p.Kind == PageKindIllustration && !strings.Contains(p.ImageURL, "quality=100") {
			t.Errorf("illustration url %q lacks print transform", p.ImageURL)
		}
	}
}

// TestBuildInterior_ConstraintLaw: 24 story pages pad to 52 > 48.
func TestBuildInterior_ConstraintLaw(t *testing.T) {
	b, pages := fixture(24)
	layout, err := BuildInterior(b, pages)
	if layout != nil {
		t.Error("constraint violation must not produce a partial layout")
	}
	if !IsPrintConstraint(err) {
		t.Fatalf("error = %v, want PrintConstraintError", err)
	}
	var pce *PrintConstraintError
	if !errors.As(err, &pce) {
		t.Fatal("cannot extract PrintConstraintError")
	}
	if pce.PageCount != 52 || pce.Limit != MaxInteriorPages {
		t.Errorf("PrintConstraintError = %+v", pce)
	}
}

func TestBuildInterior_MissingIllustrationPrintsBlank(t *testing.T) {
	b, pages := fixture(2)
	pages[2].GeneratedImageURL = "" // second story page unillustrated
	layout, err := BuildInterior(b, pages)
	if err != nil {
		t.Fatalf("BuildInterior() error = %v", err)
	}
	if layout.Pages[4].Kind != PageKindBlank {
		t.Errorf("unillustrated slot kind = %v, want blank", layout.Pages[4].Kind)
	}
	// Text partner still present.
	if layout.Pages[3].Kind != PageKindText {
		t.Errorf("text partner kind = %v", layout.Pages[3].Kind)
	}
}

func TestBuildCover_FrontFromCoverPage(t *testing.T) {
	b, pages := fixture(2)
	layout := BuildCover(b, pages)
	if layout.Back.Kind != PanelKindBrand {
		t.Errorf("back panel = %v, want brand", layout.Back.Kind)
	}
	if layout.Front.Kind != PanelKindIllustration || !strings.Contains(layout.Front.ImageURL, "cover.png") {
		t.Errorf("front panel = %+v", layout.Front)
	}
}

func TestBuildCover_FallbackChain(t *testing.T) {
	b, pages := fixture(2)

	// Cover unillustrated: falls back to first illustrated page.
	pages[0].GeneratedImageURL = ""
	layout := BuildCover(b, pages)
	if layout.Front.Kind != PanelKindIllustration || !strings.Contains(layout.Front.ImageURL, "p1.png") {
		t.Errorf("front panel = %+v, want fallback to first illustration", layout.Front)
	}

	// Nothing illustrated: clearly marked placeholder, never a failure.
	for _, p := range pages {
		p.GeneratedImageURL = ""
	}
	layout = BuildCover(b, pages)
	if layout.Front.Kind != PanelKindPlaceholder {
		t.Errorf("front panel = %+v, want placeholder", layout.Front)
	}
	if layout.Front.Title != "Summer Trip" {
		t.Errorf("placeholder title = %q", layout.Front.Title)
	}
}

// TestEndToEndPageMath pins the worked example: 5-page book (1 cover +
// 4 story) lays out 4x2+1 = 9 interior pages, padded to 12.
func TestEndToEndPageMath(t *testing.T) {
	b, pages := fixture(4)
	layout, err := BuildInterior(b, pages)
	if err != nil {
		t.Fatalf("BuildInterior() error = %v", err)
	}
	if len(layout.Pages) != 12 {
		t.Errorf("interior page count = %d, want 12", len(layout.Pages))
	}
}

func TestUpscaleTargetDerivation(t *testing.T) {
	want := int((TrimInches + 2*BleedInches) * DPI)
	if UpscaleTarget != want || UpscaleTarget != 2625 {
		t.Errorf("UpscaleTarget = %d, want %d (2625)", UpscaleTarget, want)
	}
}
