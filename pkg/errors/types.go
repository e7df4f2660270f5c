package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType int

const (
	// ErrorTypeNotFound indicates an unknown or torn-down stream
	ErrorTypeNotFound ErrorType = iota
	// ErrorTypeLimitExceeded indicates a configured limit was reached
	ErrorTypeLimitExceeded
	// ErrorTypeUnauthorized indicates a permission check failure
	ErrorTypeUnauthorized
	// ErrorTypeEncryption indicates the encryption stage failed
	ErrorTypeEncryption
	// ErrorTypeCompression indicates the compression stage failed
	ErrorTypeCompression
	// ErrorTypeDelivery indicates a subscriber delivery failure
	ErrorTypeDelivery
	// ErrorTypeValidation indicates a malformed request
	ErrorTypeValidation
	// ErrorTypeTransport indicates a transport layer error
	ErrorTypeTransport
	// ErrorTypeProtocol indicates a protocol error
	ErrorTypeProtocol
	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal
)

// Error codes
const (
	CodeStreamNotFound            = "STREAM_NOT_FOUND"
	CodeSubscriptionLimitExceeded = "SUBSCRIPTION_LIMIT_EXCEEDED"
	CodeInvalidClient             = "INVALID_CLIENT"
	CodeEncryptionFailed          = "ENCRYPTION_FAILED"
	CodeCompressionFailed         = "COMPRESSION_FAILED"
	CodeDeliveryFailed            = "DELIVERY_FAILED"
	CodeInvalidRequest            = "INVALID_REQUEST"
)

// Sentinels for errors.Is. Matching compares Type and Code only.
var (
	ErrStreamNotFound            = &Error{Type: ErrorTypeNotFound, Code: CodeStreamNotFound}
	ErrSubscriptionLimitExceeded = &Error{Type: ErrorTypeLimitExceeded, Code: CodeSubscriptionLimitExceeded}
	ErrInvalidClient             = &Error{Type: ErrorTypeUnauthorized, Code: CodeInvalidClient}
	ErrEncryptionFailed          = &Error{Type: ErrorTypeEncryption, Code: CodeEncryptionFailed}
	ErrCompressionFailed         = &Error{Type: ErrorTypeCompression, Code: CodeCompressionFailed}
	ErrDeliveryFailed            = &Error{Type: ErrorTypeDelivery, Code: CodeDeliveryFailed}
)

// Error represents a structured error with metadata
type Error struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Message, e.Details, e.Cause)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// New creates a new error
func New(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// As returns the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StreamNotFound reports an unknown, stopped or otherwise unusable stream.
func StreamNotFound(streamID string) *Error {
	return New(ErrorTypeNotFound, CodeStreamNotFound, "stream not found").WithDetails(streamID)
}

// StreamNotActive is a StreamNotFound variant for streams that exist but
// cannot accept the operation.
func StreamNotActive(streamID string) *Error {
	return New(ErrorTypeNotFound, CodeStreamNotFound, "stream not active").WithDetails(streamID)
}

func SubscriptionLimitExceeded(streamID string) *Error {
	return New(ErrorTypeLimitExceeded, CodeSubscriptionLimitExceeded, "subscription limit exceeded").WithDetails(streamID)
}

func InvalidClient(clientID string) *Error {
	return New(ErrorTypeUnauthorized, CodeInvalidClient, "invalid client").WithDetails(clientID)
}

func EncryptionFailed(cause error) *Error {
	return Wrap(cause, ErrorTypeEncryption, CodeEncryptionFailed, "encryption failed")
}

func CompressionFailed(cause error) *Error {
	return Wrap(cause, ErrorTypeCompression, CodeCompressionFailed, "compression failed")
}

func DeliveryFailed(clientID string, cause error) *Error {
	return Wrap(cause, ErrorTypeDelivery, CodeDeliveryFailed, "delivery failed").WithDetails(clientID)
}

func InvalidRequest(details string) *Error {
	return New(ErrorTypeValidation, CodeInvalidRequest, "invalid request").WithDetails(details)
}
