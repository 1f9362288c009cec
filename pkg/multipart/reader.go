package multipart

import (
	"context"
	"errors"
	"io"
)

// Reader pulls chunks from an io.Reader transport and yields decoded parts
// one at a time
type Reader struct {
	src     io.Reader
	decoder *Decoder
	chunk   []byte
	queue   []Part
	current Part
	ended   bool
	err     error
}

// NewReader creates a Reader decoding src with the given configuration
func NewReader(src io.Reader, config DecoderConfig) (*Reader, error) {
	size := config.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	r := &Reader{
		src:   src,
		chunk: make([]byte, size),
	}
	decoder, err := NewDecoder(config, SinkFuncs{
		Part: func(p Part) error {
			r.queue = append(r.queue, p)
			return nil
		},
		End: func() { r.ended = true },
	})
	if err != nil {
		return nil, err
	}
	r.decoder = decoder
	return r, nil
}

// Next advances to the next part. It returns false at the end of the
// stream or on error; check Err to tell them apart. The context is checked
// between reads, a blocked Read on the transport is not interrupted.
func (r *Reader) Next(ctx context.Context) bool {
	for len(r.queue) == 0 {
		if r.err != nil || r.ended {
			return false
		}
		if err := ctx.Err(); err != nil {
			r.err = err
			return false
		}
		r.fill()
	}

	r.current = r.queue[0]
	r.queue[0] = Part{}
	r.queue = r.queue[1:]
	return true
}

// fill reads one chunk and feeds it to the decoder
func (r *Reader) fill() {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		if ferr := r.decoder.Feed(r.chunk[:n]); ferr != nil {
			r.err = ferr
			return
		}
	}
	if errors.Is(err, io.EOF) {
		if cerr := r.decoder.Close(); cerr != nil {
			r.err = cerr
		}
		r.ended = true
		return
	}
	if err != nil {
		r.err = err
	}
}

// Part returns the part read by the last successful call to Next
func (r *Reader) Part() Part {
	return r.current
}

// Err returns the error that stopped iteration, nil at a clean end of stream
func (r *Reader) Err() error {
	return r.err
}

// Decoder exposes the underlying decoder for inspection
func (r *Reader) Decoder() *Decoder {
	return r.decoder
}

// Close closes the transport when it is an io.Closer
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadAll collects every part of src
func ReadAll(ctx context.Context, src io.Reader, config DecoderConfig) ([]Part, error) {
	r, err := NewReader(src, config)
	if err != nil {
		return nil, err
	}

	var parts []Part
	for r.Next(ctx) {
		parts = append(parts, r.Part())
	}
	return parts, r.Err()
}
