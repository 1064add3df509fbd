// Package illustrate implements the illustration-generate job: one page
// per job, from prompt construction through generation, upscaling,
// branding and upload to the persisted page write.
package illustrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fablepress/fable/internal/book"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/printdoc"
	"github.com/fablepress/fable/internal/providers"
	"github.com/fablepress/fable/internal/raster"
)

// Handler executes illustration-generate jobs.
type Handler struct{}

// New creates the handler.
func New() *Handler { return &Handler{} }

// Type implements jobs.Handler.
func (h *Handler) Type() string { return jobs.TypeIllustrate }

// Execute implements jobs.Handler.
//
// Delivery is at-least-once, so the first step is an idempotency check:
// a page that already carries a generated image (or a moderation
// verdict) was handled by an earlier delivery and is not regenerated.
func (h *Handler) Execute(ctx context.Context, raw json.RawMessage) error {
	var payload jobs.IllustratePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return jobs.Permanent(fmt.Errorf("decode illustrate payload: %w", err))
	}

	deps := jobs.DepsFromContext(ctx)
	logger := deps.Log().With("job", jobs.TypeIllustrate,
		"book_id", payload.BookID, "page_id", payload.PageID)

	p, err := deps.Store.GetPage(ctx, payload.PageID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load page: %w", err))
	}
	if p.GeneratedImageURL != "" || p.ModerationStatus == book.ModerationFailed {
		logger.Info("page already settled, skipping", "moderation", p.ModerationStatus)
		return nil
	}

	b, err := deps.Store.GetBook(ctx, payload.BookID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load book: %w", err))
	}

	prompt := BuildPrompt(b, &payload)
	result, err := deps.Image.GenerateImage(ctx, &providers.ImageRequest{Prompt: prompt})
	if err != nil {
		if rej, ok := providers.AsModerationRejection(err); ok {
			// A screening rejection is this page's outcome, not a job
			// failure. Recording it and completing keeps the sibling
			// pages and the finalize gate untouched.
			logger.Warn("illustration rejected by content screening", "reason", rej.Reason)
			if werr := deps.Store.WritePageModeration(ctx, payload.PageID, book.ModerationFailed, rej.Reason); werr != nil {
				return fmt.Errorf("record moderation verdict: %w", werr)
			}
			return nil
		}
		if providers.IsValidation(err) {
			return jobs.Permanent(err)
		}
		return err
	}

	// Post-processing failures stay retryable: nothing is persisted yet,
	// so the retry generates a fresh image that may well decode cleanly.
	upscaled, err := raster.Upscale(result.Data, printdoc.UpscaleTarget)
	if err != nil {
		return fmt.Errorf("upscale illustration: %w", err)
	}
	if payload.IsCover {
		upscaled, err = raster.ApplyBranding(upscaled)
		if err != nil {
			return fmt.Errorf("brand cover: %w", err)
		}
	}

	key := fmt.Sprintf("books/%s/pages/%s.png", payload.BookID, payload.PageID)
	url, err := deps.Objects.Upload(ctx, key, "image/png", upscaled)
	if err != nil {
		return fmt.Errorf("upload illustration: %w", err)
	}

	if err := deps.Store.WritePageIllustration(ctx, payload.PageID, url); err != nil {
		return fmt.Errorf("persist illustration: %w", err)
	}
	logger.Info("illustration generated", "page", payload.PageNumber, "url", url)
	return nil
}

// BuildPrompt composes the generation prompt for one page. The cover
// prompt additionally asks the model to render the book title, which is
// the only text an illustration may contain.
func BuildPrompt(b *book.Book, payload *jobs.IllustratePayload) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Children's storybook illustration in %s style", styleOrDefault(b.Style.Style))
	if b.Style.Tone != "" {
		fmt.Fprintf(&sb, ", %s tone", b.Style.Tone)
	}
	if b.Style.Theme != "" {
		fmt.Fprintf(&sb, ", themed around %s", b.Style.Theme)
	}
	sb.WriteString(".\n")

	if payload.IsCover {
		fmt.Fprintf(&sb, "This is the front cover of the book %q. Render the title %q prominently in a hand-lettered storybook typeface.\n", b.Title, b.Title)
	} else {
		fmt.Fprintf(&sb, "Illustrate this moment of the story: %s\n", payload.Text)
		sb.WriteString("Do not render any text, letters or captions in the image.\n")
	}
	if payload.Notes != "" {
		fmt.Fprintf(&sb, "Scene details: %s\n", payload.Notes)
	}
	if b.Style.Stylize {
		sb.WriteString("Favor a strongly stylized interpretation over photographic likeness.\n")
	}
	sb.WriteString("Square composition, full-bleed, rich color, suitable for print.")
	return sb.String()
}

func styleOrDefault(style string) string {
	if style == "" {
		return "soft watercolor"
	}
	return style
}
