package providers

import (
	"errors"
	"fmt"
)

// TransientError marks provider failures that are worth retrying:
// network errors, rate limits, 5xx responses.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient provider error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError marks deterministic model-output defects: a response
// whose shape does not match the request. Retrying reproduces the same
// defect, so these are never retried.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid model output: %s", e.Provider, e.Reason)
}

// ModerationRejection reports that a generated image was rejected by
// content screening. It is a valid terminal page outcome, not a failure;
// callers must complete the surrounding job successfully.
type ModerationRejection struct {
	Provider string
	Reason   string
}

func (e *ModerationRejection) Error() string {
	return fmt.Sprintf("%s: content screening rejected image: %s", e.Provider, e.Reason)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a deterministic output defect.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AsModerationRejection extracts a moderation rejection from err, if any.
func AsModerationRejection(err error) (*ModerationRejection, bool) {
	var mr *ModerationRejection
	if errors.As(err, &mr) {
		return mr, true
	}
	return nil, false
}
