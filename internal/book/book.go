// Package book holds the storybook domain model shared by the store,
// the generation pipeline, and the print assembler.
package book

import "time"

// Status is the lifecycle status of a book.
//
// Within a single generation cycle the status only moves forward:
//
//	DRAFT -> GENERATING -> STORY_READY -> ILLUSTRATING -> {COMPLETED|PARTIAL|FAILED}
//
// Terminal states are final until the user explicitly restarts generation.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusGenerating   Status = "GENERATING"
	StatusStoryReady   Status = "STORY_READY"
	StatusIllustrating Status = "ILLUSTRATING"
	StatusCompleted    Status = "COMPLETED"
	StatusPartial      Status = "PARTIAL"
	StatusFailed       Status = "FAILED"
)

// Terminal reports whether s is a terminal generation status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// PrintEligible reports whether a book in this status may be assembled
// into print documents. Only books with at least partial illustration
// coverage qualify.
func (s Status) PrintEligible() bool {
	return s == StatusCompleted || s == StatusPartial
}

// ModerationStatus records the content-screening outcome for a generated
// illustration.
type ModerationStatus string

const (
	ModerationPending ModerationStatus = "PENDING"
	ModerationPassed  ModerationStatus = "PASSED"
	ModerationFailed  ModerationStatus = "FAILED"
)

// StyleParams are the user-selected generation parameters. They are fixed
// when generation starts and travel with every job payload.
type StyleParams struct {
	Style   string `json:"style"`
	Tone    string `json:"tone"`
	Theme   string `json:"theme"`
	Stylize bool   `json:"stylize"`
}

// Book is one storybook owned by a single account.
type Book struct {
	ID        string      `json:"id"`
	AccountID string      `json:"account_id"`
	Title     string      `json:"title"`
	Status    Status      `json:"status"`
	Style     StyleParams `json:"style"`

	// CoverRef is the asset reference of the designated cover photo.
	// Cover-ness of a page is always derived from this field, never stored.
	CoverRef string `json:"cover_ref"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Page is one page of a book. Pages are created together with their book
// and are never created or deleted by the pipeline.
type Page struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`

	// Index is the stable 0-based position defining document order.
	Index int `json:"index"`

	// AssetRef identifies the source photo for this page.
	AssetRef string `json:"asset_ref"`

	// OriginalImageURL points at the uploaded source photo.
	OriginalImageURL string `json:"original_image_url"`

	// Text is the narrative for this page. Empty until the narrative
	// generator writes it.
	Text string `json:"text"`

	// IllustrationNotes are optional per-page hints produced alongside
	// the narrative and consumed by the illustration prompt builder.
	IllustrationNotes string `json:"illustration_notes,omitempty"`

	// GeneratedImageURL is the uploaded print-resolution illustration.
	// Empty until the illustration generator succeeds for this page.
	GeneratedImageURL string `json:"generated_image_url"`

	ModerationStatus ModerationStatus `json:"moderation_status"`

	// ModerationReason carries the screening rejection reason, if any.
	// Never a raw provider error message.
	ModerationReason string `json:"moderation_reason,omitempty"`
}

// PageNumber is the 1-based human-facing page number.
func (p *Page) PageNumber() int { return p.Index + 1 }

// IsCover reports whether p is the cover page of b. Cover-ness is a pure
// function of (page.AssetRef, book.CoverRef); there is no stored mirror.
func IsCover(p *Page, b *Book) bool {
	return b.CoverRef != "" && p.AssetRef == b.CoverRef
}

// CoverPage returns the designated cover page, or nil if none is set.
func CoverPage(b *Book, pages []*Page) *Page {
	for _, p := range pages {
		if IsCover(p, b) {
			return p
		}
	}
	return nil
}

// StoryPages returns all non-cover pages in index order. The input is
// assumed to already be ordered by index (the store guarantees it).
func StoryPages(b *Book, pages []*Page) []*Page {
	out := make([]*Page, 0, len(pages))
	for _, p := range pages {
		if !IsCover(p, b) {
			out = append(out, p)
		}
	}
	return out
}

// Projection is the progress view exposed for status polling.
type Projection struct {
	BookID           string `json:"book_id"`
	Status           Status `json:"status"`
	TotalPages       int    `json:"total_pages"`
	PagesWithText    int    `json:"pages_with_text"`
	PagesIllustrated int    `json:"pages_illustrated"`
	PagesModerated   int    `json:"pages_moderated"`
	PagesFailed      int    `json:"pages_failed"`
}

// Project computes the status projection from current page state.
func Project(b *Book, pages []*Page) Projection {
	proj := Projection{
		BookID:     b.ID,
		Status:     b.Status,
		TotalPages: len(pages),
	}
	for _, p := range pages {
		if p.Text != "" {
			proj.PagesWithText++
		}
		if p.GeneratedImageURL != "" {
			proj.PagesIllustrated++
		}
		if p.ModerationStatus == ModerationFailed {
			proj.PagesModerated++
		}
		if p.GeneratedImageURL == "" && b.Status.Terminal() {
			proj.PagesFailed++
		}
	}
	return proj
}
