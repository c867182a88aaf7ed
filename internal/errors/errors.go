package errors

import "fmt"

// TemoaError carries a stable error code plus everything a surface needs
// to present the failure: category, severity, structured details, and an
// optional hint for the user.
type TemoaError struct {
	Code       string            // stable identifier, e.g. "ERR_203_INDEX_VAULT_MISMATCH"
	Message    string            // human-readable description
	Category   Category          // derived from the code's numeric range
	Severity   Severity          // how the caller should react
	Details    map[string]string // structured context for logs and API payloads
	Cause      error             // wrapped original error, if any
	Retryable  bool              // whether retrying the operation may help
	Suggestion string            // actionable next step for the user
}

func (e *TemoaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As chains.
func (e *TemoaError) Unwrap() error { return e.Cause }

// Is treats two TemoaErrors with the same code as equivalent, so callers
// can match against a template error without caring about the message.
func (e *TemoaError) Is(target error) bool {
	t, ok := target.(*TemoaError)
	return ok && t.Code == e.Code
}

// WithDetail attaches a key-value pair to the error and returns it, so
// details can be chained onto a constructor call.
func (e *TemoaError) WithDetail(key, value string) *TemoaError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the next step shown to the user alongside the error.
func (e *TemoaError) WithSuggestion(suggestion string) *TemoaError {
	e.Suggestion = suggestion
	return e
}

// New builds a TemoaError for code. Category, severity, and retryability
// all derive from the code, so call sites supply only message and cause.
func New(code, message string, cause error) *TemoaError {
	return &TemoaError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Retryable: isRetryableCode(code),
		Cause:     cause,
	}
}

// Wrap lifts an existing error into a TemoaError, reusing its text as the
// message. A nil err stays nil so call sites can wrap unconditionally.
func Wrap(code string, err error) *TemoaError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// The shorthand constructors below pin the default code of each category.
// Call New directly when a more specific code applies.

// VaultError reports a vault root that cannot be enumerated or read.
func VaultError(message string, cause error) *TemoaError {
	return New(ErrCodeVaultUnreadable, message, cause)
}

// IndexError reports an on-disk index store that failed to load or save.
func IndexError(message string, cause error) *TemoaError {
	return New(ErrCodeIndexCorrupt, message, cause)
}

// SearchError reports a retrieval stage failure.
func SearchError(message string, cause error) *TemoaError {
	return New(ErrCodeRetrievalFailed, message, cause)
}

// ConfigError reports invalid configuration or parameters.
func ConfigError(message string, cause error) *TemoaError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// TimeoutError reports a stage that ran past its deadline.
func TimeoutError(message string, cause error) *TemoaError {
	return New(ErrCodeStageTimeout, message, cause)
}

// from pulls a *TemoaError out of err by direct assertion, without
// unwrapping. The predicates below classify the outermost error only.
func from(err error) (*TemoaError, bool) {
	te, ok := err.(*TemoaError)
	return te, ok
}

// IsRetryable reports whether the operation behind err is worth retrying.
func IsRetryable(err error) bool {
	te, ok := from(err)
	return ok && te.Retryable
}

// IsFatal reports whether err must abort the current operation.
func IsFatal(err error) bool {
	te, ok := from(err)
	return ok && te.Severity == SeverityFatal
}

// GetCode returns err's stable code, or "" for foreign errors.
func GetCode(err error) string {
	if te, ok := from(err); ok {
		return te.Code
	}
	return ""
}

// GetCategory returns err's category, or "" for foreign errors.
func GetCategory(err error) Category {
	if te, ok := from(err); ok {
		return te.Category
	}
	return ""
}
