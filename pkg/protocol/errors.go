package protocol

import (
	"errors"
	"fmt"
)

// ErrorInfo is an error reported by the service, with an HTTP-like status
// code and an optional service-specific code.
type ErrorInfo struct {
	StatusCode int    `json:"status_code"`
	Code       int    `json:"code,omitempty"`
	Message    string `json:"message"`
}

// NewErrorInfo creates an ErrorInfo.
func NewErrorInfo(statusCode, code int, message string) *ErrorInfo {
	return &ErrorInfo{StatusCode: statusCode, Code: code, Message: message}
}

func (e *ErrorInfo) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (status %d, code %d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Retryable reports whether the failure may succeed on a later attempt.
// Client errors (4xx) are final; everything else is retryable.
func (e *ErrorInfo) Retryable() bool {
	return e.StatusCode < 400 || e.StatusCode >= 500
}

// StatusCode extracts the status code of the first *ErrorInfo in err's
// chain, or 0 when there is none.
func StatusCode(err error) int {
	var ei *ErrorInfo
	if errors.As(err, &ei) {
		return ei.StatusCode
	}
	return 0
}

// IsRetryable reports whether err may succeed on a later attempt. Errors
// without an *ErrorInfo (timeouts, dropped connections) are retryable.
func IsRetryable(err error) bool {
	var ei *ErrorInfo
	if errors.As(err, &ei) {
		return ei.Retryable()
	}
	return err != nil
}
