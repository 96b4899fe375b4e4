package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for the ingestion and query pipeline. Handlers map these
// onto HTTP statuses with HTTPStatus; everything else is a 500.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrProvider             = errors.New("provider error")
	ErrModelVersionMismatch = errors.New("model version mismatch")
)

// ExtractionCause narrows why a document's content could not be read.
type ExtractionCause string

const (
	CauseCorrupt     ExtractionCause = "corrupt"
	CauseEncrypted   ExtractionCause = "password-protected"
	CauseUnsupported ExtractionCause = "unsupported structure"
)

// ExtractionError means the stored bytes could not be turned into text.
// The document stays pending so a corrected re-upload can retry.
type ExtractionError struct {
	Cause ExtractionCause
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s)", e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// HTTPStatus maps a pipeline error to the status code callers see.
func HTTPStatus(err error) int {
	var exErr *ExtractionError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &exErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, ErrModelVersionMismatch):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
