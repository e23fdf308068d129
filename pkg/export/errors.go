package export

import (
	"errors"
	"fmt"
)

// Error kinds, usable with errors.Is on any error returned by the exporter
var (
	// ErrConfiguration reports missing or conflicting inputs
	ErrConfiguration = errors.New("configuration error")
	// ErrConversion reports a volume or mesh that could not be converted
	ErrConversion = errors.New("conversion error")
	// ErrRepresentation reports a missing or unsupported segmentation representation
	ErrRepresentation = errors.New("representation error")
	// ErrGeometryMismatch reports a structure that could not be brought onto the image grid
	ErrGeometryMismatch = errors.New("geometry mismatch error")
)

// Error is the failure returned by StudyExporter.Export. Its message is meant for
// the person running the export.
type Error struct {
	// Kind is one of the Err* sentinels
	Kind error

	// State is the pipeline stage that failed
	State State

	// Message is the human-readable reason
	Message string

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *Error) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Reason returns the human-readable reason of err, or "" when err is nil.
// It mirrors the empty-string-means-success contract of the export call.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var exportErr *Error
	if errors.As(err, &exportErr) {
		return exportErr.Message
	}
	return err.Error()
}
