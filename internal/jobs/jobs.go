// Package jobs provides the durable job queue and the worker harness
// that executes the generation pipeline.
//
// Delivery is at-least-once; every handler must therefore be idempotent.
// The book/page writes are naturally idempotent keyed by page id, so
// duplicate delivery needs no extra deduplication.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablepress/fable/internal/objstore"
	"github.com/fablepress/fable/internal/providers"
	"github.com/fablepress/fable/internal/store"
)

// Status is the queue-side state of a job.
type Status string

const (
	// StatusQueued jobs are runnable once not_before passes.
	StatusQueued Status = "queued"
	// StatusWaiting jobs are parents gated on unsettled children.
	StatusWaiting Status = "waiting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one job row.
type Record struct {
	ID              string          `json:"id"`
	Type            string          `json:"job_type"`
	Status          Status          `json:"status"`
	Payload         json.RawMessage `json:"payload"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	NotBefore       time.Time       `json:"not_before"`
	ParentID        string          `json:"parent_id,omitempty"`
	PendingChildren int             `json:"pending_children"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Handler executes one job type.
type Handler interface {
	// Type returns the job type identifier this handler serves.
	Type() string

	// Execute runs one job. It must be idempotent: jobs may be
	// redelivered after crashes or broker retries. Dependencies are
	// retrieved via DepsFromContext(ctx). Returning an error wrapped
	// with Permanent suppresses retries.
	Execute(ctx context.Context, payload json.RawMessage) error
}

// ExhaustionHandler is implemented by handlers that need to run cleanup
// when a job fails for good (permanent failure, or the retry ceiling).
// The narrative handler uses it to mark the book FAILED; the
// illustration handler deliberately does not, because page-level retry
// exhaustion is a page outcome, never a book failure.
type ExhaustionHandler interface {
	OnExhausted(ctx context.Context, payload json.RawMessage, cause string)
}

// Dependencies provides shared resources to job handlers.
type Dependencies struct {
	Store   *store.Store
	Broker  *Broker
	Story   providers.StoryModel
	Image   providers.ImageModel
	Objects *objstore.Client
	Logger  *slog.Logger
}

type depsKey struct{}

// ContextWithDeps returns a context carrying handler dependencies.
func ContextWithDeps(ctx context.Context, deps Dependencies) context.Context {
	return context.WithValue(ctx, depsKey{}, deps)
}

// DepsFromContext retrieves handler dependencies from the context.
func DepsFromContext(ctx context.Context) Dependencies {
	deps, ok := ctx.Value(depsKey{}).(Dependencies)
	if !ok {
		return Dependencies{}
	}
	return deps
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the scheduler fails the job without retries.
// Used for deterministic defects such as model-output shape mismatches.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err suppresses retries.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Log returns the handler logger from deps, falling back to the
// default logger so handlers never nil-check.
func (d Dependencies) Log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func marshalPayload(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}
