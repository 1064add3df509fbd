package providers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// MockStory is an in-memory StoryModel for tests.
type MockStory struct {
	mu sync.Mutex

	// Err, if set, is returned by every call.
	Err error

	// PageCountDelta skews the number of returned pages to simulate a
	// positional-contract violation.
	PageCountDelta int

	Calls []*StoryRequest
}

// NewMockStory returns a mock that echoes one page per submitted image.
func NewMockStory() *MockStory { return &MockStory{} }

// Name implements StoryModel.
func (m *MockStory) Name() string { return "mock" }

// GenerateStory implements StoryModel.
func (m *MockStory) GenerateStory(_ context.Context, req *StoryRequest) ([]StoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)

	if m.Err != nil {
		return nil, m.Err
	}
	n := len(req.PageImageURLs) + m.PageCountDelta
	pages := make([]StoryPage, 0, n)
	for i := 0; i < n; i++ {
		pages = append(pages, StoryPage{
			Text:              fmt.Sprintf("Mock story text for page %d.", i+1),
			IllustrationNotes: fmt.Sprintf("mock notes %d", i+1),
		})
	}
	return pages, nil
}

// MockImage is an in-memory ImageModel for tests.
type MockImage struct {
	mu sync.Mutex

	// Err, if set, is returned by every call.
	Err error

	// RejectPrompts maps prompt substrings to moderation rejection. Any
	// prompt containing a key is rejected with the mapped reason.
	RejectPrompts map[string]string

	// FailuresBeforeSuccess makes the first n calls fail transiently.
	FailuresBeforeSuccess int

	// Size is the generated square dimension (default 64).
	Size int

	// Data, if set, is returned verbatim instead of a generated PNG.
	Data []byte

	Calls []string
}

// NewMockImage returns a mock producing small solid-color PNGs.
func NewMockImage() *MockImage { return &MockImage{} }

// Name implements ImageModel.
func (m *MockImage) Name() string { return "mock" }

// GenerateImage implements ImageModel.
func (m *MockImage) GenerateImage(_ context.Context, req *ImageRequest) (*ImageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req.Prompt)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.FailuresBeforeSuccess > 0 {
		m.FailuresBeforeSuccess--
		return nil, &TransientError{Provider: m.Name(), Err: fmt.Errorf("simulated transient failure")}
	}
	for substr, reason := range m.RejectPrompts {
		if substr != "" && bytes.Contains([]byte(req.Prompt), []byte(substr)) {
			return nil, &ModerationRejection{Provider: m.Name(), Reason: reason}
		}
	}

	if m.Data != nil {
		return &ImageResult{Data: m.Data}, nil
	}
	size := m.Size
	if size <= 0 {
		size = 64
	}
	data, err := solidPNG(size, color.NRGBA{R: 120, G: 160, B: 220, A: 255})
	if err != nil {
		return nil, err
	}
	return &ImageResult{Data: data}, nil
}

// solidPNG renders a size x size solid square.
func solidPNG(size int, c color.NRGBA) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode mock png: %w", err)
	}
	return buf.Bytes(), nil
}
