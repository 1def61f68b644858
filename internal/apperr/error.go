// Package apperr defines the structured error type used across every
// internal package: an operation name, a recovery kind, a human-readable
// message, and a details map carrying the offending identifiers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling and status-code
// mapping. Callers should switch on Kind, never on the message string.
type Kind string

const (
	KindDocumentNotFound       Kind = "document_not_found"
	KindChatNotFound           Kind = "chat_not_found"
	KindMessageNotFound        Kind = "message_not_found"
	KindToolNotFound           Kind = "tool_not_found"
	KindUnsupportedFileType    Kind = "unsupported_file_type"
	KindFileTooLarge           Kind = "file_too_large"
	KindInvalidBranch          Kind = "invalid_branch"
	KindValidation             Kind = "validation"
	KindDocumentProcessing     Kind = "document_processing"
	KindBackendUnavailable     Kind = "backend_unavailable"
	KindModelNotFound          Kind = "model_not_found"
	KindGeneration             Kind = "generation"
	KindEmbedding              Kind = "embedding"
	KindVectorSearch           Kind = "vector_search"
	KindWebSearch              Kind = "web_search"
	KindToolExecution          Kind = "tool_execution"
	KindMaxIterationsExceeded  Kind = "max_iterations_exceeded"
	KindCache                  Kind = "cache"
	KindInternal               Kind = "internal"
)

// retryableKinds lists the kinds whose recovery is "caller may retry",
// mirroring the spec's error-handling table. Used by Retryable.
var retryableKinds = map[Kind]bool{
	KindBackendUnavailable: true,
	KindModelNotFound:      true,
}

// Error is the structured error carried through every internal package.
// Op names the failing operation (e.g. "processor.Ingest",
// "retrieval.Search"); Kind drives status-hint and retry decisions; Details
// holds the offending identifiers (document id, chat id, tool name, ...).
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with no details attached.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewWithMessage creates an Error carrying a human-readable message.
func NewWithMessage(op string, kind Kind, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// NewWithDetails creates an Error carrying both a message and a details map.
func NewWithDetails(op string, kind Kind, message string, err error, details map[string]any) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err, Details: details}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind of err, returning "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the caller may retry the operation that
// produced err. Only BackendUnavailable and ModelNotFound are retryable;
// everything else (including ToolExecution, which the agent loop recovers
// from by reprompting rather than by retrying the call) is not.
func Retryable(err error) bool {
	return retryableKinds[KindOf(err)]
}

// StatusHint returns the HTTP-style status family associated with kind,
// for callers that want to map errors onto a transport without this
// package depending on net/http.
func StatusHint(kind Kind) int {
	switch kind {
	case KindDocumentNotFound, KindChatNotFound, KindMessageNotFound, KindToolNotFound:
		return 404
	case KindUnsupportedFileType, KindFileTooLarge, KindInvalidBranch, KindValidation, KindDocumentProcessing:
		return 400
	case KindBackendUnavailable, KindModelNotFound:
		return 503
	case KindGeneration, KindEmbedding, KindVectorSearch, KindWebSearch, KindMaxIterationsExceeded, KindCache:
		return 500
	default:
		return 500
	}
}
