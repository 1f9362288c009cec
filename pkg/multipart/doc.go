// Package multipart decodes multipart/x-mixed-replace streams incrementally.
//
// The decoder is fed raw chunks as they arrive from a socket or file and
// emits one Part per frame, without ever holding more than the unconsumed
// tail of the stream in memory.
//
// # Wire Format
//
//	--{boundary}\r\n
//	Header-Name: header-value\r\n
//	...
//	Content-Length: <decimal integer>\r\n
//	\r\n
//	<exactly Content-Length raw bytes>
//	--{boundary}\r\n
//	...
//	--{boundary}--
//
// Lines are CRLF terminated. Blank or unrelated lines in front of a boundary
// are skipped. Content-Length is mandatory for every part, Content-Type is
// required to format it. Header names are taken verbatim up to the first
// colon and values are trimmed.
//
// # State Machine
//
// The decoder moves between three states:
//   - StateSeekBoundary: skip lines until one starts with "--{boundary}"
//   - StateParsingHeaders: collect "name: value" lines until the empty line
//   - StateReadingBody: wait for Content-Length bytes, then emit the part
//
// When a state needs bytes that have not arrived yet it returns without
// touching the cursor; the next Feed resumes from the same place. A single
// Feed may therefore emit zero, one or many parts, always in stream order.
//
// # Usage
//
// Push based:
//
//	dec, err := multipart.NewDecoder(multipart.DecoderConfig{Boundary: "frame"}, multipart.SinkFuncs{
//	    Part: func(p multipart.Part) error {
//	        fmt.Println(p.ContentType, len(p.Body))
//	        return nil
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	for chunk := range chunks {
//	    if err := dec.Feed(chunk); err != nil {
//	        return err // malformed stream, dec is unusable
//	    }
//	}
//	return dec.Close()
//
// Pull based, over an io.Reader:
//
//	r, err := multipart.NewReader(resp.Body, multipart.DecoderConfig{Boundary: "frame"})
//	if err != nil {
//	    return err
//	}
//	for r.Next(ctx) {
//	    part := r.Part()
//	    ...
//	}
//	return r.Err()
//
// # Error Handling
//
// Waiting for more input is never an error. Malformed input is reported as a
// *ParseError wrapping one of ErrMissingContentLength, ErrInvalidContentLength,
// ErrMissingContentType, ErrUnexpectedLine, ErrPartTooLarge or
// ErrTruncatedFrame. After a fatal error every call returns an error wrapping
// ErrDecoderFailed; there is no resynchronisation.
package multipart
