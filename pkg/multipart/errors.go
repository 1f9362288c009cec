package multipart

import (
	"errors"
	"fmt"
	"strconv"
)

// Errors
var (
	ErrEmptyBoundary        = errors.New("multipart: boundary must not be empty")
	ErrMissingContentLength = errors.New("multipart: content length must be set")
	ErrInvalidContentLength = errors.New("multipart: invalid content length")
	ErrMissingContentType   = errors.New("multipart: can't format a part without the content-type header set")
	ErrUnexpectedLine       = errors.New("multipart: unexpected line before boundary")
	ErrPartTooLarge         = errors.New("multipart: part too large")
	ErrLineTooLong          = errors.New("multipart: line too long")
	ErrTruncatedFrame       = errors.New("multipart: stream closed in the middle of a part")
	ErrInvalidJSON          = errors.New("multipart: invalid json body")
	ErrInvalidHeader        = errors.New("multipart: invalid header")
	ErrDecoderFailed        = errors.New("multipart: decoder failed")
	ErrWriterClosed         = errors.New("multipart: writer closed")
)

// ParseError describes malformed input: what the decoder expected and what
// it found instead. It unwraps to one of the sentinel errors above.
type ParseError struct {
	State    State
	Expected string
	Found    string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v (%s): expected %s, found %s", e.Err, e.State, e.Expected, e.Found)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const maxQuotedLen = 64

// quote renders raw input for error messages, truncated to a readable size
func quote(b []byte) string {
	if len(b) > maxQuotedLen {
		return strconv.Quote(string(b[:maxQuotedLen])) + "..."
	}
	return strconv.Quote(string(b))
}

// errorReason maps an error to a short label for metrics
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingContentLength):
		return "missing_content_length"
	case errors.Is(err, ErrInvalidContentLength):
		return "invalid_content_length"
	case errors.Is(err, ErrMissingContentType):
		return "missing_content_type"
	case errors.Is(err, ErrUnexpectedLine):
		return "unexpected_line"
	case errors.Is(err, ErrPartTooLarge):
		return "part_too_large"
	case errors.Is(err, ErrLineTooLong):
		return "line_too_long"
	case errors.Is(err, ErrTruncatedFrame):
		return "truncated_frame"
	default:
		return "sink"
	}
}
