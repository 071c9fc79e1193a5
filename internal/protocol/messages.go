package protocol

import (
	"net/http"
	"time"
)

// ErrorCode identifies a capture failure class in API responses.
type ErrorCode string

const (
	ErrInvalidAuth         ErrorCode = "INVALID_AUTH"
	ErrClientNotAllowed    ErrorCode = "CLIENT_NOT_ALLOWED"
	ErrFileTooLarge        ErrorCode = "FILE_TOO_LARGE"
	ErrDurationTooLong     ErrorCode = "DURATION_TOO_LONG"
	ErrRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrConversionFailed    ErrorCode = "CONVERSION_FAILED"
	ErrTranscriptionFailed ErrorCode = "TRANSCRIPTION_FAILED"
	ErrForwardingFailed    ErrorCode = "FORWARDING_FAILED"
	ErrInternal            ErrorCode = "INTERNAL_ERROR"
)

var errorStatus = map[ErrorCode]int{
	ErrInvalidAuth:         http.StatusUnauthorized,
	ErrClientNotAllowed:    http.StatusForbidden,
	ErrFileTooLarge:        http.StatusBadRequest,
	ErrDurationTooLong:     http.StatusBadRequest,
	ErrRateLimitExceeded:   http.StatusTooManyRequests,
	ErrConversionFailed:    http.StatusBadRequest,
	ErrTranscriptionFailed: http.StatusBadGateway,
	ErrForwardingFailed:    http.StatusServiceUnavailable,
	ErrInternal:            http.StatusInternalServerError,
}

// StatusFor maps an error code onto its HTTP response status.
// Unknown codes fall back to 500.
func StatusFor(code ErrorCode) int {
	if status, ok := errorStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// SuccessResponse is the JSON body for accepted captures.
type SuccessResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorResponse is the JSON body for rejected captures.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorCode `json:"error"`
	Message string    `json:"message"`
}

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

// TranscriptEvent is broadcast on the bus after a capture is forwarded.
type TranscriptEvent struct {
	RequestID string    `json:"request_id"`
	ClientID  string    `json:"client_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const SubjectTranscriptFinal = "capture.transcript.final"
