package multipart

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultChunkSize is the read size used by Reader when none is configured
	DefaultChunkSize = 32 * 1024

	headerContentType   = "Content-Type"
	headerContentLength = "Content-Length"
)

// State is the position of the decoder state machine
type State int

const (
	StateSeekBoundary State = iota
	StateParsingHeaders
	StateReadingBody
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSeekBoundary:
		return "seeking boundary"
	case StateParsingHeaders:
		return "parsing headers"
	case StateReadingBody:
		return "reading body"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TruncatedFramePolicy decides what Close does with a part that was still
// being parsed when the transport closed
type TruncatedFramePolicy string

const (
	// TruncatedDrop logs and discards the partial part
	TruncatedDrop TruncatedFramePolicy = "drop"
	// TruncatedError reports ErrTruncatedFrame
	TruncatedError TruncatedFramePolicy = "error"
)

// ParseTruncatedFramePolicy parses a policy name, empty means TruncatedDrop
func ParseTruncatedFramePolicy(s string) (TruncatedFramePolicy, error) {
	switch TruncatedFramePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", TruncatedDrop:
		return TruncatedDrop, nil
	case TruncatedError:
		return TruncatedError, nil
	default:
		return "", fmt.Errorf("unknown truncated frame policy %q", s)
	}
}

// DecoderConfig holds configuration for a Decoder
type DecoderConfig struct {
	Boundary          string               // Delimiter without the leading "--"
	StrictBoundary    bool                 // Fail on non-blank lines outside a part instead of skipping them
	TruncatedFrame    TruncatedFramePolicy // What Close does mid-part
	MaxPartSize       int                  // Largest accepted Content-Length (0 = unlimited)
	MaxLineSize       int                  // Longest unterminated boundary or header line (0 = unlimited)
	InitialBufferSize int                  // Initial buffer capacity in bytes
	ChunkSize         int                  // Read size used by Reader
	Logger            *zerolog.Logger      // Optional, defaults to a no-op logger
	Recorder          Recorder             // Optional metrics hook
}

// Part is one fully decoded frame. The decoder keeps no reference to it.
type Part struct {
	Headers       map[string]string
	ContentType   string
	ContentLength int
	Body          []byte
}

// Header returns the value of the named header. An exact match wins, then
// the lookup falls back to a case-insensitive one.
func (p Part) Header(name string) string {
	v, _ := lookupHeader(p.Headers, name)
	return v
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// BodyKind tells how a DecodedPart body is represented
type BodyKind int

const (
	KindBinary BodyKind = iota // []byte
	KindJSON                   // value produced by encoding/json
	KindText                   // string
)

func (k BodyKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	default:
		return "binary"
	}
}

// DecodedPart is a Part whose body was decoded according to its content type
type DecodedPart struct {
	Headers       map[string]string
	ContentType   string
	ContentLength int
	Kind          BodyKind
	Body          any
}

// Sink receives the decoder output. Calls happen synchronously from Feed and
// Close. Returning an error from OnPart aborts the decoder.
type Sink interface {
	OnPart(part Part) error
	OnEnd()
	OnError(err error)
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are ignored.
type SinkFuncs struct {
	Part  func(Part) error
	End   func()
	Error func(error)
}

func (s SinkFuncs) OnPart(part Part) error {
	if s.Part == nil {
		return nil
	}
	return s.Part(part)
}

func (s SinkFuncs) OnEnd() {
	if s.End != nil {
		s.End()
	}
}

func (s SinkFuncs) OnError(err error) {
	if s.Error != nil {
		s.Error(err)
	}
}

// Collector is a Sink that keeps everything it receives
type Collector struct {
	Parts  []Part
	Ended  bool
	Errors []error
}

func (c *Collector) OnPart(part Part) error {
	c.Parts = append(c.Parts, part)
	return nil
}

func (c *Collector) OnEnd() {
	c.Ended = true
}

func (c *Collector) OnError(err error) {
	c.Errors = append(c.Errors, err)
}

// Recorder receives decoder statistics, see pkg/metrics for the Prometheus one
type Recorder interface {
	BytesFed(n int)
	PartDecoded(contentType string, size int)
	NoiseLine()
	DecodeError(reason string)
	BufferSize(n int)
}

type nopRecorder struct{}

func (nopRecorder) BytesFed(int) {}
func (nopRecorder) PartDecoded(string, int) {}
func (nopRecorder) NoiseLine() {}
func (nopRecorder) DecodeError(string) {}
func (nopRecorder) BufferSize(int) {}
