package api

import (
	"time"

	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/MathisTLD/multiparse/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

// ContentTypeNDJSON is the media type of streamed decode responses
const ContentTypeNDJSON = "application/x-ndjson"

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// PartResponse is the JSON form of a decoded part. Body holds parsed JSON,
// text, or base64 for binary parts, depending on Kind.
type PartResponse struct {
	ID            string            `json:"id,omitempty"`
	Index         int               `json:"index"`
	CapturedAt    *time.Time        `json:"captured_at,omitempty"`
	ContentType   string            `json:"content_type"`
	ContentLength int               `json:"content_length"`
	Headers       map[string]string `json:"headers"`
	Kind          string            `json:"kind"`
	Body          interface{}       `json:"body,omitempty"`
}

// StreamError is the last NDJSON line of a decode stream that failed after
// parts were already sent
type StreamError struct {
	Error   string `json:"error"`
	Emitted int    `json:"emitted"`
}

// CaptureResponse lists the ids of the parts a capture request stored
type CaptureResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind    string
	Port    int
	APIKey  string // empty disables authentication
	Decoder multipart.DecoderConfig
	Logger  *zerolog.Logger
}

// IPartStore defines the part store operations the API needs
type IPartStore interface {
	Save(part multipart.Part) (ksuid.KSUID, error)
	Get(id ksuid.KSUID) (storage.Entry, error)
	List(limit int) ([]storage.Entry, error)
	Delete(id ksuid.KSUID) error
	Count() (int, error)
}
