// Package errors provides centralized error handling for the analysis engine.
// Every fallible operation in the public surface returns an *EnhancedError
// carrying a category from the engine's error taxonomy, the component that
// produced it, and structured context for logging.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// ErrorCategory identifies the kind of failure for routing and grouping.
type ErrorCategory string

// Engine error taxonomy. These are the only categories the public API emits;
// callers switch on them rather than on concrete error values.
const (
	CategoryValidation       ErrorCategory = "invalid-params"
	CategoryInvalidAudio     ErrorCategory = "invalid-audio"
	CategoryNotFound         ErrorCategory = "not-found"
	CategorySessionNotFound  ErrorCategory = "session-not-found"
	CategoryState            ErrorCategory = "wrong-state"
	CategoryCorruptData      ErrorCategory = "corrupt-data"
	CategoryVersionMismatch  ErrorCategory = "version-mismatch"
	CategoryInsufficientData ErrorCategory = "insufficient-data"
	CategoryOverflow         ErrorCategory = "overflow"
	CategoryLimit            ErrorCategory = "resource-exhausted"
	CategoryCancellation     ErrorCategory = "canceled"
	CategoryFileIO           ErrorCategory = "file-io"
	CategoryProcessing       ErrorCategory = "processing"
	CategoryInternal         ErrorCategory = "internal"
)

// ComponentUnknown is used when the component was not set by the builder.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with category, component and context metadata.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
	component string
	mu        sync.RWMutex
}

// Error implements the error interface.
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface.
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches two EnhancedErrors by category, otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component name the error was built with.
func (ee *EnhancedError) GetComponent() string {
	if ee.component == "" {
		return ComponentUnknown
	}
	return ee.component
}

// GetCategory returns the error category as a string.
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the structured context.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder accumulates metadata before producing an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err. A nil err produces an error
// whose message is its category name ("internal" when no category is set);
// prefer Newf for fresh errors.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error builder.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds a context key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build produces the final EnhancedError.
func (eb *ErrorBuilder) Build() *EnhancedError {
	category := eb.category
	if category == "" {
		category = CategoryInternal
	}
	err := eb.err
	if err == nil {
		err = stderrors.New(string(category))
	}
	return &EnhancedError{
		Err:       err,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: eb.component,
	}
}

// Standard library passthrough functions so this package can be imported as a
// drop-in replacement for the standard errors package.

// NewStd creates a new standard error.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// CategoryOf returns the taxonomy category of err, or CategoryInternal for
// errors that did not come out of this package.
func CategoryOf(err error) ErrorCategory {
	var enhancedErr *EnhancedError
	if As(err, &enhancedErr) {
		return enhancedErr.Category
	}
	return CategoryInternal
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsNotFound checks for CategoryNotFound, the miss condition for master call
// records. Unknown sessions carry CategorySessionNotFound and do not match.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// IsSessionNotFound checks for CategorySessionNotFound.
func IsSessionNotFound(err error) bool {
	return IsCategory(err, CategorySessionNotFound)
}

// IsOverflow checks for CategoryOverflow; callers should back off and retry.
func IsOverflow(err error) bool {
	return IsCategory(err, CategoryOverflow)
}

// IsWrongState checks for CategoryState.
func IsWrongState(err error) bool {
	return IsCategory(err, CategoryState)
}
