package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// storySchemaJSON is the structured-output contract for narrative calls.
// The response is validated locally as well: some routed backends claim
// schema support and still return loose JSON.
const storySchemaJSON = `{
	"type": "object",
	"required": ["pages"],
	"additionalProperties": false,
	"properties": {
		"pages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["text"],
				"additionalProperties": false,
				"properties": {
					"text": {"type": "string"},
					"illustration_notes": {"type": "string"}
				}
			}
		}
	}
}`

var storySchema = jsonschema.MustCompileString("story.schema.json", storySchemaJSON)

// OpenAIStoryConfig configures the story model client.
type OpenAIStoryConfig struct {
	APIKey  string
	BaseURL string // optional override for OpenAI-compatible gateways
	Model   string // default gpt-4o
	RPM     int
}

// OpenAIStory implements StoryModel over the OpenAI chat completions API.
type OpenAIStory struct {
	client  openai.Client
	model   string
	limiter *RateLimiter
}

// NewOpenAIStory creates a story model client.
func NewOpenAIStory(cfg OpenAIStoryConfig) *OpenAIStory {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	return &OpenAIStory{
		client:  openai.NewClient(opts...),
		model:   model,
		limiter: NewRateLimiter(cfg.RPM),
	}
}

// Name implements StoryModel.
func (c *OpenAIStory) Name() string { return "openai" }

type storyResponse struct {
	Pages []StoryPage `json:"pages"`
}

// GenerateStory implements StoryModel.
func (c *OpenAIStory) GenerateStory(ctx context.Context, req *StoryRequest) ([]StoryPage, error) {
	if len(req.PageImageURLs) == 0 {
		return nil, &ValidationError{Provider: c.Name(), Reason: "no page images submitted"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(storyUserPrompt(req)),
	}
	for _, url := range req.PageImageURLs {
		parts = append(parts, openai.ImageContentPart(
			openai.ChatCompletionContentPartImageImageURLParam{URL: url},
		))
	}

	var schemaAny any
	_ = json.Unmarshal([]byte(storySchemaJSON), &schemaAny)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(storySystemPrompt),
			openai.UserMessage(parts),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "storybook_pages",
					Schema: schemaAny,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &TransientError{Provider: c.Name(), Err: errors.New("empty choices in response")}
	}

	content := resp.Choices[0].Message.Content
	pages, err := parseStoryResponse(c.Name(), content)
	if err != nil {
		return nil, err
	}
	if len(pages) != len(req.PageImageURLs) {
		return nil, &ValidationError{
			Provider: c.Name(),
			Reason:   fmt.Sprintf("response has %d pages, submitted %d", len(pages), len(req.PageImageURLs)),
		}
	}
	return pages, nil
}

// parseStoryResponse decodes and schema-validates the model output.
func parseStoryResponse(provider, content string) ([]StoryPage, error) {
	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &ValidationError{Provider: provider, Reason: fmt.Sprintf("response is not JSON: %v", err)}
	}
	if err := storySchema.Validate(raw); err != nil {
		return nil, &ValidationError{Provider: provider, Reason: fmt.Sprintf("response fails schema: %v", err)}
	}
	var sr storyResponse
	if err := json.Unmarshal([]byte(content), &sr); err != nil {
		return nil, &ValidationError{Provider: provider, Reason: fmt.Sprintf("response decode: %v", err)}
	}
	return sr.Pages, nil
}

// classify maps an openai-go error into the pipeline error taxonomy.
func (c *OpenAIStory) classify(err error) error {
	return classifyOpenAIError(c.Name(), err)
}

func classifyOpenAIError(provider string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if isModerationCode(apierr.Code) || isModerationCode(apierr.Type) {
			return &ModerationRejection{Provider: provider, Reason: "image rejected by safety system"}
		}
		switch {
		case apierr.StatusCode == 429, apierr.StatusCode >= 500:
			return &TransientError{Provider: provider, Err: err}
		default:
			return fmt.Errorf("%s: %w", provider, err)
		}
	}
	// No structured API error: network failure, treat as transient.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransientError{Provider: provider, Err: err}
}

func isModerationCode(code string) bool {
	code = strings.ToLower(code)
	return strings.Contains(code, "content_policy") ||
		strings.Contains(code, "moderation") ||
		strings.Contains(code, "safety")
}

const storySystemPrompt = `You are a children's storybook author. You receive the photos of ` +
	`one photo album, in page order, and write a single continuous story across them. ` +
	`Respond with JSON only: one entry per photo, in the same order as the photos.`

func storyUserPrompt(req *StoryRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a storybook narrative for the %d photos that follow, one short passage per photo, in order.\n", len(req.PageImageURLs))
	if req.Title != "" {
		fmt.Fprintf(&sb, "Book title: %s.\n", req.Title)
	}
	if req.Style.Style != "" {
		fmt.Fprintf(&sb, "Illustration style: %s.\n", req.Style.Style)
	}
	if req.Style.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s.\n", req.Style.Tone)
	}
	if req.Style.Theme != "" {
		fmt.Fprintf(&sb, "Theme: %s.\n", req.Style.Theme)
	}
	if req.CoverIndex >= 0 {
		fmt.Fprintf(&sb, "Photo %d is the cover; give it a title-style line rather than narrative.\n", req.CoverIndex+1)
	}
	if req.Style.Stylize {
		sb.WriteString("For every page also provide illustration_notes describing how to stylize the scene.\n")
	}
	return sb.String()
}
