package multipart

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Writer produces the framing read by Decoder
type Writer struct {
	w        io.Writer
	boundary string
	buf      bytes.Buffer
	closed   bool
}

// NewWriter creates a Writer emitting frames separated by boundary
func NewWriter(w io.Writer, boundary string) (*Writer, error) {
	if boundary == "" {
		return nil, ErrEmptyBoundary
	}
	if strings.ContainsAny(boundary, "\r\n") {
		return nil, fmt.Errorf("%w: boundary contains a line break", ErrInvalidHeader)
	}
	return &Writer{w: w, boundary: boundary}, nil
}

// Boundary returns the delimiter used by the writer
func (w *Writer) Boundary() string {
	return w.boundary
}

// ContentType returns the Content-Type header value announcing the stream
func (w *Writer) ContentType() string {
	return "multipart/x-mixed-replace; boundary=" + w.boundary
}

// WritePart writes one frame. Content-Length is always derived from body;
// a Content-Length entry in headers is ignored. Content-Type comes first,
// the other headers follow sorted by name.
func (w *Writer) WritePart(headers map[string]string, body []byte) error {
	if w.closed {
		return ErrWriterClosed
	}

	names := make([]string, 0, len(headers))
	for name, value := range headers {
		if name == "" || strings.ContainsAny(name, ":\r\n") || strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%w: %q", ErrInvalidHeader, name)
		}
		if strings.EqualFold(name, headerContentLength) || name == headerContentType {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	w.buf.Reset()
	w.buf.WriteString("--")
	w.buf.WriteString(w.boundary)
	w.buf.Write(crlf)
	if ct, ok := headers[headerContentType]; ok {
		writeHeader(&w.buf, headerContentType, ct)
	}
	for _, name := range names {
		writeHeader(&w.buf, name, headers[name])
	}
	writeHeader(&w.buf, headerContentLength, strconv.Itoa(len(body)))
	w.buf.Write(crlf)
	w.buf.Write(body)
	w.buf.Write(crlf)

	_, err := w.w.Write(w.buf.Bytes())
	return err
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.Write(crlf)
}

// Close writes the closing delimiter. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := io.WriteString(w.w, "--"+w.boundary+"--\r\n")
	return err
}
