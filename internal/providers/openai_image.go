package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIImageConfig configures the image model client.
type OpenAIImageConfig struct {
	APIKey  string
	BaseURL string
	Model   string // default gpt-image-1
	RPM     int
}

// OpenAIImage implements ImageModel over the OpenAI images API.
type OpenAIImage struct {
	client  openai.Client
	model   string
	limiter *RateLimiter
	fetcher *http.Client
}

// NewOpenAIImage creates an image model client.
func NewOpenAIImage(cfg OpenAIImageConfig) *OpenAIImage {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-image-1"
	}
	return &OpenAIImage{
		client:  openai.NewClient(opts...),
		model:   model,
		limiter: NewRateLimiter(cfg.RPM),
		fetcher: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Name implements ImageModel.
func (c *OpenAIImage) Name() string { return "openai" }

// GenerateImage implements ImageModel. The result is always a square PNG;
// print sizing happens downstream in the upscaler.
func (c *OpenAIImage) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  openai.ImageModel(c.model),
		Prompt: req.Prompt,
		Size:   openai.ImageGenerateParamsSize1024x1024,
		N:      openai.Int(1),
	})
	if err != nil {
		return nil, classifyOpenAIError(c.Name(), err)
	}
	if len(resp.Data) == 0 {
		return nil, &TransientError{Provider: c.Name(), Err: errors.New("empty image data in response")}
	}

	item := resp.Data[0]
	if item.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, &ValidationError{Provider: c.Name(), Reason: fmt.Sprintf("b64 decode: %v", err)}
		}
		return &ImageResult{Data: data}, nil
	}
	if item.URL != "" {
		data, err := c.fetch(ctx, item.URL)
		if err != nil {
			return nil, err
		}
		return &ImageResult{Data: data}, nil
	}
	return nil, &TransientError{Provider: c.Name(), Err: errors.New("image response carries neither b64 nor url")}
}

// fetch downloads a generated image from its short-lived URL.
func (c *OpenAIImage) fetch(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image fetch request: %w", err)
	}
	resp, err := c.fetcher.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransientError{Provider: c.Name(), Err: fmt.Errorf("image fetch status %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Provider: c.Name(), Err: err}
	}
	return data, nil
}
