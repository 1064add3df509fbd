package providers

import (
	"context"
	"errors"
	"testing"
)

func TestParseStoryResponse(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantPages int
		wantErr   bool
	}{
		{
			name:      "valid two pages",
			content:   `{"pages":[{"text":"a","illustration_notes":"n"},{"text":"b"}]}`,
			wantPages: 2,
		},
		{
			name:    "not json",
			content: "once upon a time",
			wantErr: true,
		},
		{
			name:    "missing pages key",
			content: `{"story":[]}`,
			wantErr: true,
		},
		{
			name:    "page without text",
			content: `{"pages":[{"illustration_notes":"n"}]}`,
			wantErr: true,
		},
		{
			name:    "unexpected extra field",
			content: `{"pages":[{"text":"a","mood":"blue"}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := parseStoryResponse("test", tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !IsValidation(err) {
					t.Errorf("error not a ValidationError: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(pages) != tt.wantPages {
				t.Errorf("pages = %d, want %d", len(pages), tt.wantPages)
			}
		})
	}
}

func TestClassifyOpenAIError_PlainNetworkError(t *testing.T) {
	err := classifyOpenAIError("openai", errors.New("connection refused"))
	if !IsTransient(err) {
		t.Errorf("network error should classify transient, got %v", err)
	}
}

func TestClassifyOpenAIError_ContextCancellation(t *testing.T) {
	err := classifyOpenAIError("openai", context.Canceled)
	if IsTransient(err) {
		t.Error("context cancellation must not be retried as transient")
	}
}

func TestMockStory_PositionalContract(t *testing.T) {
	m := NewMockStory()
	req := &StoryRequest{PageImageURLs: []string{"u1", "u2", "u3"}, CoverIndex: 0}
	pages, err := m.GenerateStory(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateStory() error = %v", err)
	}
	if len(pages) != 3 {
		t.Errorf("pages = %d, want 3", len(pages))
	}
}

func TestMockImage_Rejection(t *testing.T) {
	m := NewMockImage()
	m.RejectPrompts = map[string]string{"forbidden": "unsafe content"}

	_, err := m.GenerateImage(context.Background(), &ImageRequest{Prompt: "a forbidden scene"})
	mr, ok := AsModerationRejection(err)
	if !ok {
		t.Fatalf("expected moderation rejection, got %v", err)
	}
	if mr.Reason != "unsafe content" {
		t.Errorf("reason = %q", mr.Reason)
	}

	res, err := m.GenerateImage(context.Background(), &ImageRequest{Prompt: "a safe scene"})
	if err != nil {
		t.Fatalf("safe prompt error = %v", err)
	}
	if len(res.Data) == 0 {
		t.Error("empty image data")
	}
}

func TestMockImage_TransientThenSuccess(t *testing.T) {
	m := NewMockImage()
	m.FailuresBeforeSuccess = 2

	for i := 0; i < 2; i++ {
		if _, err := m.GenerateImage(context.Background(), &ImageRequest{Prompt: "p"}); !IsTransient(err) {
			t.Fatalf("call %d: want transient error, got %v", i, err)
		}
	}
	if _, err := m.GenerateImage(context.Background(), &ImageRequest{Prompt: "p"}); err != nil {
		t.Fatalf("third call error = %v", err)
	}
}
