package youtube

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an upstream failure
type ErrorCode string

const (
	// CodeQuotaExceeded means the upstream API key's own quota ran out
	CodeQuotaExceeded ErrorCode = "quotaExceeded"
	// CodeNotFound means the channel does not exist upstream
	CodeNotFound ErrorCode = "notFound"
	// CodeOther covers every remaining upstream failure
	CodeOther ErrorCode = "other"
)

// ErrInvalidChannel marks a channel reference that is malformed before
// any fetch is attempted
var ErrInvalidChannel = errors.New("invalid channel reference")

// UpstreamError is a classified failure from the YouTube Data API
type UpstreamError struct {
	Code       ErrorCode
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}
