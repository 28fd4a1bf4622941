package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrConflict      = fmt.Errorf("conflict")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrRemoteAPI    = fmt.Errorf("tally api error")
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid  = fmt.Errorf("authentication failed")
	ErrCircuitOpen  = fmt.Errorf("circuit open")
	ErrToolNotFound = fmt.Errorf("tool not found")
	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
	ErrDecryption   = fmt.Errorf("decryption failed")
	ErrAuditWrite   = fmt.Errorf("audit log write failed")

	ErrPermissionDenied = fmt.Errorf("permission denied")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "formops.AddField")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "form", "field"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// NewValidationError reports a user-correctable input problem. The detail is
// the message shown to the user, so it must stand on its own.
func NewValidationError(op, detail string) *DomainError {
	return &DomainError{Op: op, Err: ErrInvalidInput, Detail: detail}
}

// NewConflictError reports an optimistic-concurrency mismatch.
func NewConflictError(op, detail string) *DomainError {
	return &DomainError{Op: op, Err: ErrConflict, Detail: detail, SubSystem: "form"}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsConflict reports whether err is an optimistic-concurrency conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsRemote reports whether err came from the Tally API.
func IsRemote(err error) bool { return errors.Is(err, ErrRemoteAPI) }

// UserMessage is the standalone message for an error record. Domain errors
// show their detail; everything else shows its full text.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return err.Error()
}

// APIError is a non-success response from the Tally API, or a GraphQL
// response carrying a top-level errors array.
type APIError struct {
	StatusCode  int    // 0 for GraphQL errors delivered with a 200
	Message     string // remote message or response body excerpt
	Description string // GraphQL extensions.code, or the HTTP status text
	Method      string
	Path        string
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Path != "":
		return fmt.Sprintf("tally api %s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.Description, e.Message)
	case e.StatusCode > 0:
		return fmt.Sprintf("tally api: %d %s: %s", e.StatusCode, e.Description, e.Message)
	default:
		return fmt.Sprintf("tally api: %s: %s", e.Description, e.Message)
	}
}

// Unwrap exposes ErrRemoteAPI plus a status-derived category sentinel, so
// callers can match either the error kind or its cause.
func (e *APIError) Unwrap() []error {
	errs := []error{ErrRemoteAPI}
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		errs = append(errs, ErrRateLimit)
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		errs = append(errs, ErrAuthInvalid)
	case e.StatusCode == http.StatusNotFound:
		errs = append(errs, ErrNotFound)
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout:
		errs = append(errs, ErrTimeout)
	case e.StatusCode >= 500:
		errs = append(errs, ErrProviderError)
	}
	return errs
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderError) || errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown      ErrorCode = "UNKNOWN"
	CodeRemoteAPI    ErrorCode = "REMOTE_API"
	CodeRateLimit    ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid  ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen  ErrorCode = "CIRCUIT_OPEN"
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	CodeConfigLoad   ErrorCode = "CONFIG_LOAD"
	CodeDecryption   ErrorCode = "DECRYPTION"
	CodeAuditWrite   ErrorCode = "AUDIT_WRITE"

	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeFormNotFound   ErrorCode = "FORM_NOT_FOUND"
	CodeFieldNotFound  ErrorCode = "FIELD_NOT_FOUND"
	CodeGroupNotFound  ErrorCode = "GROUP_NOT_FOUND"
	CodeFormConflict   ErrorCode = "FORM_CONFLICT"
	CodeBackupInvalid  ErrorCode = "BACKUP_INVALID"
	CodeOptionsInvalid ErrorCode = "OPTIONS_INVALID"

	// Category codes, the fallback when no subsystem-specific code matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeConflict      ErrorCode = "CONFLICT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrConflict:      CodeConflict,
	ErrProviderError: CodeProviderError,

	ErrRateLimit:    CodeRateLimit,
	ErrAuthInvalid:  CodeAuthInvalid,
	ErrCircuitOpen:  CodeCircuitOpen,
	ErrToolNotFound: CodeToolNotFound,
	ErrConfigLoad:   CodeConfigLoad,
	ErrDecryption:   CodeDecryption,
	ErrAuditWrite:   CodeAuditWrite,

	ErrPermissionDenied: CodePermissionDenied,
}

// specificity orders the chain walk so that a status-derived cause wins
// over the generic remote-API kind.
var specificity = []error{
	ErrRateLimit, ErrAuthInvalid, ErrCircuitOpen, ErrConflict, ErrNotFound,
	ErrTimeout, ErrProviderError, ErrInvalidInput, ErrToolNotFound,
	ErrConfigLoad, ErrDecryption, ErrAuditWrite, ErrPermissionDenied,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"form":  CodeFormNotFound,
		"field": CodeFieldNotFound,
		"group": CodeGroupNotFound,
	},
	ErrConflict: {
		"form": CodeFormConflict,
	},
	ErrInvalidInput: {
		"backup":  CodeBackupInvalid,
		"options": CodeOptionsInvalid,
		"field":   CodeFieldNotFound,
		"group":   CodeGroupNotFound,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// DomainErrors with a SubSystem are resolved through subSystemCodeMap first.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for _, sentinel := range specificity {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	if errors.Is(err, ErrRemoteAPI) {
		return CodeRemoteAPI
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
