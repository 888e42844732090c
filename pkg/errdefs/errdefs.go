// Package errdefs defines the error taxonomy shared by the ingestion
// pipeline, the query engine, and the transport layer. Each stage of the
// pipeline fails with its own type so that callers can tell a download
// failure from an extraction or indexing failure.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// AcquisitionError reports a failed remote fetch.
type AcquisitionError struct {
	URL string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed for %s: %v", e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ExtractionError reports a failed or unsupported format conversion.
type ExtractionError struct {
	Kind string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for kind %q: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IndexingError reports a failed embedding or vector-index write.
type IndexingError struct {
	Err error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing failed: %v", e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// RetrievalError reports that similarity search failed or that no
// grounded source was available for a query.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError reports that the text-generation call failed or
// timed out.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NotReadyError reports every referenced source that has not reached the
// completed state, not just the first one, so the caller can act on all
// of them at once.
type NotReadyError struct {
	IDs []string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("sources not ready: %s", strings.Join(e.IDs, ", "))
}

// NotFoundError reports an unknown source or conversation id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
