package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryAddress     Category = "address"
	CategorySource      Category = "source"
	CategoryConsistency Category = "consistency"
	CategoryFetch       Category = "fetch"
	CategoryDecode      Category = "decode"
	CategoryEncode      Category = "encode"
	CategoryPipeline    Category = "pipeline"
	CategoryStorage     Category = "storage"
	CategoryConfig      Category = "config"
	CategoryCanceled    Category = "canceled"
	CategoryTransient   Category = "transient"
	CategoryInput       Category = "input"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable ProcessingError.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// Malformed reports an address that cannot be resolved into a description.
func Malformed(address, reason string) error {
	return New(CategoryAddress, "resolve", fmt.Errorf("%w: %s: %s", ErrMalformedAddress, address, reason))
}

// SourceNotFound reports a scheme with no registered source.
func SourceNotFound(scheme string) error {
	return New(CategorySource, "source.lookup", fmt.Errorf("%w: %q", ErrSourceNotFound, scheme))
}

// Unfulfilled reports a source that returned success without producing the artifact.
func Unfulfilled(address string) error {
	return New(CategoryConsistency, "fetch", fmt.Errorf("%w: %s", ErrUnfulfilledAfterFetch, address))
}

// InvalidImage reports bytes the decode collaborator rejected.
func InvalidImage(op string, cause error) error {
	if cause == nil {
		return New(CategoryDecode, op, ErrInvalidImage)
	}
	return New(CategoryDecode, op, fmt.Errorf("%w: %w", ErrInvalidImage, cause))
}

// Canceled reports an observed cooperative cancellation. The result matches
// both ErrCanceled and the context error that caused it.
func Canceled(op string, cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	return New(CategoryCanceled, op, fmt.Errorf("%w: %w", ErrCanceled, cause))
}

// FetchError wraps any failure raised while a source fulfilled a request.
type FetchError struct {
	Address string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("[%s] could not fetch %s: %v", CategoryFetch, e.Address, e.Err)
}

// Unwrap exposes both ErrFetchFailed and the underlying cause.
func (e *FetchError) Unwrap() []error { return []error{ErrFetchFailed, e.Err} }

// FetchFailed wraps cause as a FetchError for address.
func FetchFailed(address string, cause error) error {
	return &FetchError{Address: address, Err: cause}
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// IsCanceled reports whether err is a cooperative cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// CategoryOf returns the category of the outermost ProcessingError in err's
// chain, CategoryFetch for a bare FetchError, or "" when neither is present.
func CategoryOf(err error) Category {
	var fe *FetchError
	if errors.As(err, &fe) {
		return CategoryFetch
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrMalformedAddress      = errors.New("malformed address")
	ErrSourceNotFound        = errors.New("no source registered for scheme")
	ErrUnfulfilledAfterFetch = errors.New("request was never fulfilled")
	ErrFetchFailed           = errors.New("fetch failed")
	ErrInvalidImage          = errors.New("invalid image")
	ErrCanceled              = errors.New("fetch canceled")
	ErrCyclicSource          = errors.New("cyclic source address")
	ErrUnsupportedRequest    = errors.New("unsupported request kind")
	ErrRequestClosed         = errors.New("request closed")
	ErrUnsupportedFormat     = errors.New("unsupported image format")
	ErrInvalidDimensions     = errors.New("invalid dimensions")
	ErrEmptyInput            = errors.New("empty input")
	ErrNotFound              = errors.New("not found")
)
