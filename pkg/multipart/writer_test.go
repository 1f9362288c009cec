package multipart

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "")
	assert.ErrorIs(t, err, ErrEmptyBoundary)

	_, err = NewWriter(&bytes.Buffer{}, "a\r\nb")
	assert.ErrorIs(t, err, ErrInvalidHeader)

	w, err := NewWriter(&bytes.Buffer{}, "frame")
	require.NoError(t, err)
	assert.Equal(t, "frame", w.Boundary())
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", w.ContentType())
}

func TestWriter_WritePart(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, "B")
	require.NoError(t, err)

	require.NoError(t, w.WritePart(map[string]string{
		"X-Seq":          "1",
		"Content-Type":   "text/plain",
		"Content-Length": "999",
		"A-First":        "a",
	}, []byte("hi")))
	require.NoError(t, w.Close())

	want := "--B\r\n" +
		"Content-Type: text/plain\r\n" +
		"A-First: a\r\n" +
		"X-Seq: 1\r\n" +
		"Content-Length: 2\r\n" +
		"\r\n" +
		"hi\r\n" +
		"--B--\r\n"
	assert.Equal(t, want, out.String())
}

func TestWriter_InvalidHeaders(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{}, "B")
	require.NoError(t, err)

	for _, headers := range []map[string]string{
		{"": "x"},
		{"Bad:Name": "x"},
		{"X-Inject": "a\r\nContent-Length: 0"},
	} {
		assert.ErrorIs(t, w.WritePart(headers, nil), ErrInvalidHeader)
	}
}

func TestWriter_Closed(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, "B")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, "--B--\r\n", out.String())
	assert.ErrorIs(t, w.WritePart(nil, nil), ErrWriterClosed)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriter_PropagatesWriteErrors(t *testing.T) {
	w, err := NewWriter(failingWriter{}, "B")
	require.NoError(t, err)
	assert.EqualError(t, w.WritePart(map[string]string{"Content-Type": "text/plain"}, []byte("x")), "disk full")
}

func TestWriter_RoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{"n":1}`),
		{},
		bytes.Repeat([]byte("\r\n--B\r\n"), 50),
	}

	var out bytes.Buffer
	w, err := NewWriter(&out, "B")
	require.NoError(t, err)
	for i, body := range bodies {
		ct := "application/octet-stream"
		if i == 0 {
			ct = MediaTypeJSON
		}
		require.NoError(t, w.WritePart(map[string]string{"Content-Type": ct}, body))
	}
	require.NoError(t, w.Close())

	d, sink := newTestDecoder(t, DecoderConfig{Boundary: "B", StrictBoundary: true})
	require.NoError(t, d.Feed(out.Bytes()))
	require.Len(t, sink.Parts, len(bodies))
	for i, body := range bodies {
		assert.Equal(t, body, sink.Parts[i].Body, "part %d", i)
	}
	assert.True(t, sink.Ended)
}
