package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fablepress/fable/internal/book"
)

// Job type identifiers. One tagged payload type per job kind, validated
// at the queue boundary so shape mismatches surface at enqueue time
// instead of corrupting a downstream stage.
const (
	TypeNarrative  = "narrative-generate"
	TypeIllustrate = "illustration-generate"
	TypeFinalize   = "book-finalize"
)

// NarrativePayload starts one narrative generation for a book. The asset
// list and style parameters are read from the store at execution time so
// a queued job never carries stale copies.
type NarrativePayload struct {
	BookID string `json:"book_id"`
}

// IllustratePayload generates one page's illustration.
type IllustratePayload struct {
	BookID     string           `json:"book_id"`
	PageID     string           `json:"page_id"`
	PageNumber int              `json:"page_number"`
	Text       string           `json:"text"`
	Style      book.StyleParams `json:"style"`
	IsCover    bool             `json:"is_cover"`
	Notes      string           `json:"notes,omitempty"`
}

// FinalizePayload reconciles a book once all its illustration jobs have
// settled.
type FinalizePayload struct {
	BookID string `json:"book_id"`
}

const narrativeSchemaJSON = `{
	"type": "object",
	"required": ["book_id"],
	"properties": {"book_id": {"type": "string", "minLength": 1}}
}`

const illustrateSchemaJSON = `{
	"type": "object",
	"required": ["book_id", "page_id", "page_number"],
	"properties": {
		"book_id": {"type": "string", "minLength": 1},
		"page_id": {"type": "string", "minLength": 1},
		"page_number": {"type": "integer", "minimum": 1},
		"text": {"type": "string"},
		"style": {"type": "object"},
		"is_cover": {"type": "boolean"},
		"notes": {"type": "string"}
	}
}`

const finalizeSchemaJSON = `{
	"type": "object",
	"required": ["book_id"],
	"properties": {"book_id": {"type": "string", "minLength": 1}}
}`

var payloadSchemas = map[string]*jsonschema.Schema{
	TypeNarrative:  jsonschema.MustCompileString("narrative.schema.json", narrativeSchemaJSON),
	TypeIllustrate: jsonschema.MustCompileString("illustrate.schema.json", illustrateSchemaJSON),
	TypeFinalize:   jsonschema.MustCompileString("finalize.schema.json", finalizeSchemaJSON),
}

// ValidatePayload checks raw against the schema registered for jobType.
// Unknown job types are rejected outright.
func ValidatePayload(jobType string, raw json.RawMessage) error {
	schema, ok := payloadSchemas[jobType]
	if !ok {
		return fmt.Errorf("unknown job type %q", jobType)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("payload for %s is not JSON: %w", jobType, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("payload for %s fails schema: %w", jobType, err)
	}
	return nil
}
