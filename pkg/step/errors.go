package step

import "fmt"

// Category classifies a stage failure. The set is closed; stages pick the
// category and the orchestrator carries it verbatim.
type Category string

// Error categories.
const (
	CategoryValidation    Category = "validation"
	CategoryNetwork       Category = "network"
	CategoryTimeout       Category = "timeout"
	CategoryRateLimit     Category = "rate_limit"
	CategoryProviderError Category = "provider_error"
	CategoryProcessing    Category = "processing"
	CategoryPolicy        Category = "policy"
	CategoryTenancy       Category = "tenancy"
	CategoryFatal         Category = "fatal"
	CategoryCancelled     Category = "cancelled"
)

// IsValid checks whether the category belongs to the closed set.
func (c Category) IsValid() bool {
	switch c {
	case CategoryValidation, CategoryNetwork, CategoryTimeout, CategoryRateLimit,
		CategoryProviderError, CategoryProcessing, CategoryPolicy, CategoryTenancy,
		CategoryFatal, CategoryCancelled:
		return true
	default:
		return false
	}
}

// DefaultRetryable returns the taxonomy's default retryability for the category.
// Stages may override (e.g. a stage that treats timeout as retryable).
func (c Category) DefaultRetryable() bool {
	switch c {
	case CategoryNetwork, CategoryRateLimit, CategoryProviderError, CategoryProcessing:
		return true
	default:
		return false
	}
}

// Error is the taxonomy error carried inside a failed Result.
type Error struct {
	Category  Category          `json:"category"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Context   map[string]string `json:"context,omitempty"`
}

// NewError creates an Error with the category's default retryability.
func NewError(category Category, message string) *Error {
	return &Error{
		Category:  category,
		Message:   message,
		Retryable: category.DefaultRetryable(),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// WithContext attaches a context key/value pair and returns the error.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithRetryable overrides the default retryability.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}
