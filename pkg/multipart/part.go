package multipart

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// Media types with a dedicated body decoding
const (
	MediaTypeJSON = "application/json"
	MediaTypeXML  = "application/xml"
)

// formatPart turns a fully read frame into a Part. The body is copied out of
// the decoder buffer, which is reused for the following frames.
func formatPart(p *partInProgress) (Part, error) {
	contentTypeHeader, ok := p.headers[headerContentType]
	if !ok {
		return Part{}, ErrMissingContentType
	}

	body := make([]byte, len(p.body))
	copy(body, p.body)

	return Part{
		Headers:       p.headers,
		ContentType:   MediaType(contentTypeHeader),
		ContentLength: p.contentLength,
		Body:          body,
	}, nil
}

// MediaType strips the parameters of a Content-Type value
func MediaType(value string) string {
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

// DecodeBody decodes the body according to the content type: JSON bodies are
// unmarshalled, XML bodies become text and anything else is returned as the
// original bytes. It has no side effects on the part.
func DecodeBody(part Part) (DecodedPart, error) {
	decoded := DecodedPart{
		Headers:       part.Headers,
		ContentType:   part.ContentType,
		ContentLength: part.ContentLength,
	}

	switch part.ContentType {
	case MediaTypeJSON:
		var value any
		if err := json.Unmarshal([]byte(utf8Text(part.Body)), &value); err != nil {
			return DecodedPart{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		decoded.Kind = KindJSON
		decoded.Body = value
	case MediaTypeXML:
		decoded.Kind = KindText
		decoded.Body = utf8Text(part.Body)
	default:
		decoded.Kind = KindBinary
		decoded.Body = part.Body
	}
	return decoded, nil
}

// utf8Text decodes b as UTF-8, replacing invalid sequences with U+FFFD
func utf8Text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// BoundaryFromContentType extracts the boundary parameter of a multipart
// Content-Type header value, e.g.
// "multipart/x-mixed-replace; boundary=frame". A leading "--" some cameras
// put in the parameter is removed.
func BoundaryFromContentType(value string) (string, error) {
	mt, params, err := mime.ParseMediaType(value)
	if err != nil {
		return "", fmt.Errorf("multipart: invalid content type %q: %w", value, err)
	}
	if !strings.HasPrefix(mt, "multipart/") {
		return "", fmt.Errorf("multipart: content type %q is not multipart", mt)
	}
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		return "", ErrEmptyBoundary
	}
	return boundary, nil
}
