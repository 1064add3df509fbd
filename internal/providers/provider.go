// Package providers wraps the external model providers behind narrow
// interfaces so the pipeline can be exercised against mocks.
package providers

import (
	"context"

	"github.com/fablepress/fable/internal/book"
)

// StoryRequest is a single narrative-generation call covering a whole book.
// The page images are submitted together so the model can write one
// coherent story across them.
type StoryRequest struct {
	Title string
	Style book.StyleParams

	// PageImageURLs are the source photos in page-index order. The
	// response must map 1:1 to this list by position.
	PageImageURLs []string

	// CoverIndex is the position of the cover page, or -1 if none.
	CoverIndex int
}

// StoryPage is one page of the model's narrative output.
type StoryPage struct {
	Text              string `json:"text"`
	IllustrationNotes string `json:"illustration_notes,omitempty"`
}

// StoryModel generates the narrative for a photo set in one call.
type StoryModel interface {
	// GenerateStory returns exactly one StoryPage per submitted image.
	// A positional mismatch must surface as a *ValidationError, never as
	// a silently truncated result.
	GenerateStory(ctx context.Context, req *StoryRequest) ([]StoryPage, error)

	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// ImageRequest is a single illustration-generation call for one page.
type ImageRequest struct {
	Prompt string
}

// ImageResult carries the raw generated raster.
type ImageResult struct {
	// Data is the raw raster bytes (PNG).
	Data []byte
}

// ImageModel generates one illustration per call. A content-safety
// rejection is reported as *ModerationRejection, not as a plain error.
type ImageModel interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)
	Name() string
}
