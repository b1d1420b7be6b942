package entity

import "errors"

// ErrorCode is the closed taxonomy reported to callers.
type ErrorCode string

const (
	CodeClassification ErrorCode = "CLASSIFICATION_ERROR"
	CodeDatabase       ErrorCode = "DATABASE_ERROR"
	CodeAI             ErrorCode = "AI_ERROR"
	CodeRateLimit      ErrorCode = "RATE_LIMIT_ERROR"
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
)

// Standard domain errors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded: too many tokens used")
	ErrClassification    = errors.New("query classification failed")
	ErrDatabase          = errors.New("record store request failed")
	ErrAI                = errors.New("language model request failed")
	ErrValidation        = errors.New("invalid query filters")
	ErrInvalidRequest    = errors.New("invalid request parameters")
	ErrSessionNotFound   = errors.New("pseudonym session not found or expired")
	ErrIndexUnavailable  = errors.New("semantic index unavailable")
)

// TerminalError marks a model failure that must not be retried.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return "terminal: " + e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }
