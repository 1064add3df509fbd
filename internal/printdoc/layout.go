package printdoc

import (
	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/objstore"
)

// PageKind identifies the role of one interior page.
type PageKind string

const (
	PageKindDedication   PageKind = "dedication"
	PageKindText         PageKind = "text"
	PageKindIllustration PageKind = "illustration"
	PageKindBlank        PageKind = "blank"
)

// InteriorPage is one laid-out interior page.
type InteriorPage struct {
	Kind PageKind

	// Text is the centered story text for text pages, or the dedication
	// line for the dedication page.
	Text string

	// ImageURL is the print-transform URL for illustration pages.
	ImageURL string
}

// InteriorLayout is the fully laid-out interior document.
type InteriorLayout struct {
	Pages []InteriorPage
}

// PanelKind identifies the content of one cover panel.
type PanelKind string

const (
	PanelKindBrand        PanelKind = "brand"
	PanelKindIllustration PanelKind = "illustration"
	PanelKindPlaceholder  PanelKind = "placeholder"
)

// CoverPanel is one half of the cover spread.
type CoverPanel struct {
	Kind PanelKind

	// ImageURL is the print-transform URL for illustration panels.
	ImageURL string

	// Title is printed on placeholder panels so a missing illustration
	// is visibly marked rather than blank.
	Title string
}

// CoverLayout is the single-spread cover document: back panel on the
// left, front panel on the right, no spine.
type CoverLayout struct {
	Back  CoverPanel
	Front CoverPanel
}

// BuildInterior lays out the interior document. Pure: no IO, no state.
//
// Story pages are emitted as interleaved text/illustration pairs in index
// order; the cover page belongs to the cover document and is excluded. A
// dedication leaf leads the document. The count is padded with blank
// pages to the next multiple of 4 (saddle stitch), and the padded count
// is checked against the printer ceiling.
func BuildInterior(b *book.Book, pages []*book.Page) (*InteriorLayout, error) {
	story := book.StoryPages(b, pages)

	layout := &InteriorLayout{}
	layout.Pages = append(layout.Pages, InteriorPage{
		Kind: PageKindDedication,
		Text: dedicationText(b),
	})

	for _, p := range story {
		layout.Pages = append(layout.Pages, InteriorPage{
			Kind: PageKindText,
			Text: p.Text,
		})
		illus := InteriorPage{Kind: PageKindIllustration}
		if p.GeneratedImageURL != "" {
			illus.ImageURL = objstore.PrintURL(p.GeneratedImageURL)
		} else {
			// A page that never got its illustration prints blank
			// rather than shifting its siblings.
			illus.Kind = PageKindBlank
		}
		layout.Pages = append(layout.Pages, illus)
	}

	for len(layout.Pages)%4 != 0 {
		layout.Pages = append(layout.Pages, InteriorPage{Kind: PageKindBlank})
	}

	if len(layout.Pages) > MaxInteriorPages {
		return nil, &PrintConstraintError{PageCount: len(layout.Pages), Limit: MaxInteriorPages}
	}
	return layout, nil
}

// BuildCover lays out the cover spread. Pure, and it never fails: a
// missing cover illustration falls back to the first illustrated page,
// and failing that to a clearly marked placeholder panel.
func BuildCover(b *book.Book, pages []*book.Page) *CoverLayout {
	layout := &CoverLayout{
		Back: CoverPanel{Kind: PanelKindBrand},
	}

	if cover := book.CoverPage(b, pages); cover != nil && cover.GeneratedImageURL != "" {
		layout.Front = CoverPanel{
			Kind:     PanelKindIllustration,
			ImageURL: objstore.PrintURL(cover.GeneratedImageURL),
		}
		return layout
	}
	for _, p := range pages {
		if p.GeneratedImageURL != "" {
			layout.Front = CoverPanel{
				Kind:     PanelKindIllustration,
				ImageURL: objstore.PrintURL(p.GeneratedImageURL),
			}
			return layout
		}
	}
	layout.Front = CoverPanel{Kind: PanelKindPlaceholder, Title: b.Title}
	return layout
}

func dedicationText(b *book.Book) string {
	if b.Title != "" {
		return b.Title
	}
	return "A fable, made from our photos."
}
