// Package errs defines the error taxonomy shared by the transcoding pipeline.
//
// Fatal conditions are sentinel errors that callers wrap with context and test
// with errors.Is. Failures scoped to a single unit of concurrent work (one JSON
// file, one image download) are struct errors that are collected by the
// enclosing pool and reported, never propagated into it.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a missing required file or key, or invalid run settings
	// such as split fractions that do not add up to one.
	ErrConfig = errors.New("configuration error")

	// ErrValidation marks malformed input: bad bounding boxes, unsupported
	// format tags, an empty package.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a dictionary lookup of a label or slot that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOutOfRange marks a dictionary index below zero or past the end.
	ErrOutOfRange = errors.New("index out of range")
)

// Configf returns an error wrapping ErrConfig.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsInput reports whether err was caused by the settings or data supplied by
// the caller rather than by the environment.
func IsInput(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrValidation)
}

// FileError reports a package file that could not be read or turned into an
// image graph. The file is skipped; the rest of the batch is unaffected.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// AcquisitionError reports an image whose content could not be fetched,
// cached or decoded. The image is dropped from downstream processing.
type AcquisitionError struct {
	URL string
	Key string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s (%s): %v", e.URL, e.Key, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
