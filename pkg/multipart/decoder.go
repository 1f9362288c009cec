package multipart

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/MathisTLD/multiparse/pkg/buffer"
	"github.com/rs/zerolog"
)

var (
	crlf        = []byte("\r\n")
	dashes      = []byte("--")
	headerColon = []byte(":")
)

// step is the outcome of running one state
type step int

const (
	stepSuspend  step = iota // not enough bytes buffered, wait for the next Feed
	stepContinue             // state changed, keep going
	stepStop                 // end of stream
)

// partInProgress is the frame currently being parsed
type partInProgress struct {
	headers       map[string]string
	contentLength int
	body          []byte // view into the decoder buffer, set once fully available
}

// Decoder is an incremental multipart/x-mixed-replace decoder. Chunks are
// pushed with Feed in whatever sizes the transport delivers them; each
// complete frame is handed to the Sink as soon as its last body byte
// arrives. A Decoder is not safe for concurrent use.
type Decoder struct {
	config       DecoderConfig
	delimiter    []byte // "--" + boundary
	endDelimiter []byte // "--" + boundary + "--"
	sink         Sink
	logger       zerolog.Logger
	recorder     Recorder

	buf       *buffer.ByteBuffer
	cursor    int
	discarded int64
	state     State
	part      *partInProgress
	emitted   int
	err       error
}

// NewDecoder creates a decoder for the configured boundary
func NewDecoder(config DecoderConfig, sink Sink) (*Decoder, error) {
	if config.Boundary == "" {
		return nil, ErrEmptyBoundary
	}
	if config.MaxPartSize < 0 {
		return nil, fmt.Errorf("multipart: negative max part size %d", config.MaxPartSize)
	}
	if config.MaxLineSize < 0 {
		return nil, fmt.Errorf("multipart: negative max line size %d", config.MaxLineSize)
	}
	policy, err := ParseTruncatedFramePolicy(string(config.TruncatedFrame))
	if err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	config.TruncatedFrame = policy

	if sink == nil {
		sink = SinkFuncs{}
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "multipart").Str("boundary", config.Boundary).Logger()
	}

	var recorder Recorder = nopRecorder{}
	if config.Recorder != nil {
		recorder = config.Recorder
	}

	delimiter := append([]byte("--"), config.Boundary...)
	return &Decoder{
		config:       config,
		delimiter:    delimiter,
		endDelimiter: append(append([]byte{}, delimiter...), dashes...),
		sink:         sink,
		logger:       logger,
		recorder:     recorder,
		buf:          buffer.New(config.InitialBufferSize),
		state:        StateSeekBoundary,
	}, nil
}

// State returns the current state of the machine
func (d *Decoder) State() State {
	return d.state
}

// Buffered returns the number of bytes retained by the decoder
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Consumed returns the total number of input bytes the decoder has moved
// past, whether they were released or still sit in front of the cursor
func (d *Decoder) Consumed() int64 {
	return d.discarded + int64(d.cursor)
}

// Emitted returns the number of parts handed to the sink
func (d *Decoder) Emitted() int {
	return d.emitted
}

// Err returns the fatal error that stopped the decoder, if any
func (d *Decoder) Err() error {
	return d.err
}

// Feed appends chunk and advances the state machine as far as the buffered
// bytes allow. Any number of parts may be emitted before it returns. A
// non-nil error is fatal: the decoder must be rebuilt before reuse.
func (d *Decoder) Feed(chunk []byte) error {
	switch d.state {
	case StateFailed:
		return d.failure()
	case StateEnded:
		if len(chunk) > 0 {
			d.logger.Debug().Int("bytes", len(chunk)).Msg("ignoring data after end of stream")
		}
		return nil
	}

	d.buf.Append(chunk)
	d.recorder.BytesFed(len(chunk))

	if err := d.run(); err != nil {
		return err
	}

	d.purge()
	d.recorder.BufferSize(d.buf.Len())
	return nil
}

// Close tells the decoder that the transport closed. A part still in flight
// is dropped or reported as ErrTruncatedFrame depending on the configured
// policy; otherwise the sink receives OnEnd.
func (d *Decoder) Close() error {
	switch d.state {
	case StateFailed:
		return d.failure()
	case StateEnded:
		return nil
	}

	if d.state != StateSeekBoundary {
		if d.config.TruncatedFrame == TruncatedError {
			return d.fail(&ParseError{
				State:    d.state,
				Expected: "a complete part",
				Found:    fmt.Sprintf("end of input with %d unconsumed bytes", d.buf.Len()-d.cursor),
				Err:      ErrTruncatedFrame,
			})
		}
		d.logger.Warn().
			Str("state", d.state.String()).
			Int("pending", d.buf.Len()-d.cursor).
			Msg("dropping incomplete part at end of input")
	} else if pending := d.buf.Slice(d.cursor, d.buf.Len()); len(bytes.TrimSpace(pending)) > 0 {
		d.logger.Debug().Str("data", quote(pending)).Msg("dropping trailing bytes at end of input")
	}

	d.finish()
	return nil
}

// run drives the machine until it suspends, ends or fails
func (d *Decoder) run() error {
	for {
		var (
			next step
			err  error
		)
		switch d.state {
		case StateSeekBoundary:
			next, err = d.seekBoundary()
		case StateParsingHeaders:
			next, err = d.parseHeaders()
		case StateReadingBody:
			next, err = d.readBody()
		default:
			return nil
		}
		if err != nil {
			return d.fail(err)
		}
		if next != stepContinue {
			return nil
		}
	}
}

// nextLine returns the CRLF terminated line starting at from, terminator
// included. ok is false when the terminator is not buffered yet.
func (d *Decoder) nextLine(from int) (line []byte, ok bool) {
	search := from
	for {
		i := d.buf.IndexByte('\r', search)
		if i < 0 || i+1 >= d.buf.Len() {
			return nil, false
		}
		if d.buf.Slice(i+1, i+2)[0] == '\n' {
			return d.buf.Slice(from, i+2), true
		}
		search = i + 1
	}
}

// suspendLine waits for the rest of an unterminated line, unless it already
// outgrew MaxLineSize
func (d *Decoder) suspendLine() (step, error) {
	pending := d.buf.Len() - d.cursor
	if d.config.MaxLineSize > 0 && pending > d.config.MaxLineSize {
		return stepStop, &ParseError{
			State:    d.state,
			Expected: fmt.Sprintf("a CRLF within %d bytes", d.config.MaxLineSize),
			Found:    fmt.Sprintf("%d bytes starting with %s", pending, quote(d.buf.Slice(d.cursor, d.buf.Len()))),
			Err:      ErrLineTooLong,
		}
	}
	return stepSuspend, nil
}

// seekBoundary skips noise lines until a delimiter line is found
func (d *Decoder) seekBoundary() (step, error) {
	for {
		line, ok := d.nextLine(d.cursor)
		if !ok {
			// The closing delimiter is often the very last bytes of the
			// stream, without a line terminator.
			if bytes.HasPrefix(d.buf.Slice(d.cursor, d.buf.Len()), d.endDelimiter) {
				d.cursor = d.buf.Len()
				d.finish()
				return stepStop, nil
			}
			return d.suspendLine()
		}

		if !bytes.HasPrefix(line, d.delimiter) {
			if d.config.StrictBoundary && len(bytes.TrimSpace(line)) > 0 {
				return stepStop, &ParseError{
					State:    d.state,
					Expected: quote(d.delimiter),
					Found:    quote(line),
					Err:      ErrUnexpectedLine,
				}
			}
			d.logger.Debug().Str("line", quote(line)).Msg("removing unnecessary non-boundary line")
			d.recorder.NoiseLine()
			d.cursor += len(line)
			continue
		}

		d.cursor += len(line)
		if bytes.HasPrefix(line[len(d.delimiter):], dashes) {
			d.finish()
			return stepStop, nil
		}

		d.part = &partInProgress{headers: make(map[string]string)}
		d.state = StateParsingHeaders
		return stepContinue, nil
	}
}

// parseHeaders reads header lines until the empty line closing the block.
// The cursor only moves past a line once it has been stored, so a suspended
// call resumes exactly where it stopped.
func (d *Decoder) parseHeaders() (step, error) {
	headers := d.part.headers
	for {
		line, ok := d.nextLine(d.cursor)
		if !ok {
			return d.suspendLine()
		}
		d.cursor += len(line)

		content := line[:len(line)-len(crlf)]
		if len(content) == 0 {
			break
		}

		i := bytes.Index(content, headerColon)
		if i < 0 {
			d.logger.Debug().Str("line", quote(line)).Msg("skipping header line without colon")
			continue
		}
		headers[string(content[:i])] = strings.TrimSpace(string(content[i+1:]))
	}

	raw, ok := headers[headerContentLength]
	if !ok {
		return stepStop, &ParseError{
			State:    d.state,
			Expected: "a Content-Length header",
			Found:    fmt.Sprintf("headers %v", headerNames(headers)),
			Err:      ErrMissingContentLength,
		}
	}

	length, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || length > uint64(maxInt) {
		return stepStop, &ParseError{
			State:    d.state,
			Expected: "a non-negative decimal Content-Length",
			Found:    strconv.Quote(raw),
			Err:      ErrInvalidContentLength,
		}
	}
	if d.config.MaxPartSize > 0 && length > uint64(d.config.MaxPartSize) {
		return stepStop, &ParseError{
			State:    d.state,
			Expected: fmt.Sprintf("at most %d body bytes", d.config.MaxPartSize),
			Found:    fmt.Sprintf("Content-Length %d", length),
			Err:      ErrPartTooLarge,
		}
	}

	d.part.contentLength = int(length)
	d.state = StateReadingBody
	return stepContinue, nil
}

const maxInt = int(^uint(0) >> 1)

// readBody waits for contentLength bytes and emits the part
func (d *Decoder) readBody() (step, error) {
	end := d.cursor + d.part.contentLength
	if d.buf.Len() < end {
		return stepSuspend, nil
	}

	d.part.body = d.buf.Slice(d.cursor, end)
	d.cursor = end

	part, err := formatPart(d.part)
	if err != nil {
		return stepStop, &ParseError{
			State:    d.state,
			Expected: "a Content-Type header",
			Found:    fmt.Sprintf("headers %v", headerNames(d.part.headers)),
			Err:      err,
		}
	}

	d.part = nil
	d.state = StateSeekBoundary
	if err := d.sink.OnPart(part); err != nil {
		return stepStop, fmt.Errorf("multipart: sink rejected part: %w", err)
	}
	d.emitted++
	d.recorder.PartDecoded(part.ContentType, part.ContentLength)

	d.purge()
	return stepContinue, nil
}

// purge releases everything in front of the cursor
func (d *Decoder) purge() {
	if d.cursor == 0 {
		return
	}
	d.buf.DiscardPrefix(d.cursor)
	d.discarded += int64(d.cursor)
	d.cursor = 0
}

// finish moves to StateEnded, releasing whatever is still buffered
func (d *Decoder) finish() {
	d.part = nil
	d.cursor = d.buf.Len()
	d.purge()
	d.state = StateEnded
	d.sink.OnEnd()
}

func (d *Decoder) fail(err error) error {
	d.err = err
	d.part = nil
	d.state = StateFailed
	d.recorder.DecodeError(errorReason(err))
	d.logger.Error().Err(err).Msg("multipart decoding failed")
	d.sink.OnError(err)
	return err
}

func (d *Decoder) failure() error {
	return fmt.Errorf("%w: %w", ErrDecoderFailed, d.err)
}

func headerNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
