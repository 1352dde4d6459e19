package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout         = "SCRAPE_TIMEOUT"
	ErrCodeNavigation      = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeActionFailed    = "ACTION_FAILED"
	ErrCodeSnapshotFailed  = "SNAPSHOT_FAILED"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeSessionLimit    = "SESSION_LIMIT"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TrackError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type TrackError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *TrackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

// NewTrackError creates a new TrackError.
func NewTrackError(code, message string, err error) *TrackError {
	return &TrackError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *TrackError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
