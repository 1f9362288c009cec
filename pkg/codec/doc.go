// Package codec provides the binary record format multiparse uses to store
// decoded parts.
//
// A captured part is written to the part store as a single record holding its
// headers, its body and the capture time, with a checksum so a damaged entry
// is detected on read instead of being served.
//
// # Record Format
//
// Records are serialized in a binary format with the following structure:
//
//	[CRC32(4)][HeaderSize(4)][BodySize(4)][Timestamp(8)][Header][Body]
//
// Fields:
//   - CRC32: 32-bit CRC checksum for integrity validation (little-endian)
//   - HeaderSize: length of the header block in bytes (little-endian)
//   - BodySize: length of the body in bytes (little-endian)
//   - Timestamp: 64-bit Unix timestamp in nanoseconds (little-endian)
//   - Header: header block, one [NameLen(4)][ValueLen(4)][Name][Value] entry
//     per header sorted by name, lengths little-endian
//   - Body: the part body, stored verbatim
//
// The total record size is: 20 bytes (fixed prefix) + len(Header) + len(Body).
// Encoding the same part at the same instant always yields the same bytes.
// Header names and values are stored verbatim, so any byte sequence the
// decoder kept, colons and line breaks included, reads back unchanged.
//
// # CRC32 Calculation
//
// The CRC32 checksum is calculated over all fields except the CRC32 field itself:
//   - HeaderSize (4 bytes)
//   - BodySize (4 bytes)
//   - Timestamp (8 bytes)
//   - Header block (HeaderSize bytes)
//   - Body (BodySize bytes)
//
// # Usage
//
//	c := codec.NewPartCodec()
//
//	encoded, err := c.Encode(part)
//	if err != nil {
//	    return err
//	}
//
//	part, capturedAt, err := c.DecodePart(encoded)
//	if err != nil {
//	    return err // short, corrupted or malformed record
//	}
//
// Decode is the lower level call: it returns a Record whose Header and Body
// alias the input and leaves validation to the caller.
//
// # Error Handling
//
// Errors wrap one of ErrShortRecord, ErrCRCMismatch, ErrHeaderBlock or
// ErrFieldTooLong and can be matched with errors.Is.
//
// # Thread Safety
//
// PartCodec instances are safe for concurrent use. A Record must not be
// shared while Marshal is running since it sets the CRC32 field.
package codec
