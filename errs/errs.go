// Package errs implements the runtime's categorized error taxonomy.
// Every public operation returns either a success value or an *Error;
// categories are determined by fixed numeric code ranges.
package errs

import (
	"fmt"
	"unicode"
)

// Category groups related failure codes.
type Category string

const (
	CategoryModelNotFound      Category = "ModelNotFound"
	CategoryModelLoadError     Category = "ModelLoadError"
	CategoryInferenceError     Category = "InferenceError"
	CategoryNetworkError       Category = "NetworkError"
	CategoryStorageError       Category = "StorageError"
	CategoryInvalidInput       Category = "InvalidInput"
	CategoryResourceExhausted  Category = "ResourceExhausted"
	CategoryCancelled          Category = "Cancelled"
)

// Code is a stable numeric error identifier. Its range determines its Category.
type Code int

const (
	// 1000-1099 ModelNotFound
	ModelFileNotFound       Code = 1000
	ModelVersionNotAvailable Code = 1001

	// 1100-1199 ModelLoadError
	ModelFileCorrupted            Code = 1100
	ModelIncompatibleArchitecture Code = 1101
	ModelInsufficientMemory       Code = 1102
	ModelUnsupportedQuantization  Code = 1103
	ModelFileLocked               Code = 1104

	// 1200-1299 InferenceError
	InferenceModelNotLoaded            Code = 1200
	InferenceInvalidInput              Code = 1201
	InferenceContextWindowExceeded     Code = 1202
	InferenceTimeout                   Code = 1203
	InferenceHardwareAccelerationFailure Code = 1204

	// 1300-1399 NetworkError
	NetworkUnreachable       Code = 1300
	NetworkConnectionTimeout Code = 1301
	NetworkDNSFailure        Code = 1302
	NetworkSSLError          Code = 1303
	NetworkHTTPErrorBase     Code = 1304

	// 1400-1499 StorageError
	StorageInsufficientSpace Code = 1400
	StoragePermissionDenied  Code = 1401
	StorageReadError         Code = 1402
	StorageWriteError        Code = 1403
	StorageDiskFull          Code = 1404

	// 1500-1599 InvalidInput
	InvalidInputNullPointer     Code = 1500
	InvalidInputParameterValue  Code = 1501
	InvalidInputConfiguration   Code = 1502
	InvalidInputAudioFormat     Code = 1503
	InvalidInputModelHandle     Code = 1504

	// 1600-1699 ResourceExhausted
	ResourceOutOfMemory          Code = 1600
	ResourceTooManyOpenFiles     Code = 1601
	ResourceThreadPoolExhausted  Code = 1602
	ResourceGPUMemoryExhausted   Code = 1603

	// 1700-1799 Cancelled
	OperationCancelled Code = 1700
	OperationTimeout   Code = 1701
	OperationInterrupted Code = 1702
)

// category maps a Code to its Category by range.
func category(c Code) Category {
	switch {
	case c >= 1000 && c < 1100:
		return CategoryModelNotFound
	case c >= 1100 && c < 1200:
		return CategoryModelLoadError
	case c >= 1200 && c < 1300:
		return CategoryInferenceError
	case c >= 1300 && c < 1400:
		return CategoryNetworkError
	case c >= 1400 && c < 1500:
		return CategoryStorageError
	case c >= 1500 && c < 1600:
		return CategoryInvalidInput
	case c >= 1600 && c < 1700:
		return CategoryResourceExhausted
	case c >= 1700 && c < 1800:
		return CategoryCancelled
	default:
		return ""
	}
}

// retryableCodes are transient network/resource failures safe to retry internally.
var retryableCodes = map[Code]bool{
	NetworkUnreachable:          true,
	NetworkConnectionTimeout:    true,
	NetworkDNSFailure:           true,
	ResourceThreadPoolExhausted: true,
}

// Error is the structured failure value returned by every public operation.
type Error struct {
	Code               Code
	Category           Category
	Message            string
	Details            string
	RecoverySuggestion string
	cause              error
}

// New constructs an Error whose Category is derived from the code's range.
// It does not check the shape contract (message and details each at least
// 10 characters, message different from details); Valid reports whether
// an Error meets it. Cancellation/timeout codes don't require a recovery
// suggestion.
func New(code Code, message, details string) *Error {
	return &Error{
		Code:     code,
		Category: category(code),
		Message:  message,
		Details:  details,
	}
}

// WithRecovery attaches a recovery suggestion and returns the same Error for chaining.
func (e *Error) WithRecovery(suggestion string) *Error {
	e.RecoverySuggestion = suggestion
	return e
}

// WithCause wraps an underlying error for errors.Unwrap.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Category, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether this error's code is a transient failure
// safe for internal retry logic (spec.md §4.1 "retryable codes").
func (e *Error) Retryable() bool {
	return retryableCodes[e.Code]
}

// NetworkHTTPError constructs a NetworkError for a non-2xx HTTP response.
func NetworkHTTPError(status int, reason string) *Error {
	return New(
		NetworkHTTPErrorBase,
		fmt.Sprintf("remote request failed with HTTP %d", status),
		fmt.Sprintf("server responded %d: %s", status, reason),
	).WithRecovery("retry after a short delay or check network connectivity")
}

// Valid reports whether an Error satisfies the shape contract: message
// and details at least 10 characters, at least 95% printable, message
// different from details, and a code in a known category range.
func (e *Error) Valid() bool {
	if e == nil {
		return false
	}
	if len(e.Message) < 10 || len(e.Details) < 10 {
		return false
	}
	if e.Message == e.Details {
		return false
	}
	if category(e.Code) == "" {
		return false
	}
	return printableRatio(e.Message) >= 0.95 && printableRatio(e.Details) >= 0.95
}

func printableRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	printable := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsPrint(r) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}
