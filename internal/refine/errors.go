package refine

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed, empty or oversized input, or a
// preference outside its enumerated set.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ModerationError lists every blocked term found in the input.
type ModerationError struct {
	Terms []string
}

func (e *ModerationError) Error() string {
	return "content is not family friendly: " + strings.Join(e.Terms, ", ")
}

// ExternalServiceError wraps a failed completion call.
type ExternalServiceError struct {
	Provider string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	provider := e.Provider
	if provider == "" {
		provider = "completion"
	}
	return fmt.Sprintf("%s service: %v", provider, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// CatastrophicFailure is anything unanticipated, usually a recovered panic.
type CatastrophicFailure struct {
	Stage string
	Cause any
}

func (e *CatastrophicFailure) Error() string {
	return fmt.Sprintf("unexpected failure during %s: %v", e.Stage, e.Cause)
}

func (e *CatastrophicFailure) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

const (
	KindValidation   = "validation"
	KindModeration   = "moderation"
	KindExternal     = "external"
	KindCatastrophic = "catastrophic"
)

// ErrorKind classifies err into the error taxonomy. External errors are
// checked first because a rejected completion wraps a *ModerationError.
// Unknown errors are treated as catastrophic.
func ErrorKind(err error) string {
	var (
		validationErr *ValidationError
		moderationErr *ModerationError
		externalErr   *ExternalServiceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &externalErr):
		return KindExternal
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &moderationErr):
		return KindModeration
	default:
		return KindCatastrophic
	}
}
