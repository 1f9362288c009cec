package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"time"

	"github.com/MathisTLD/multiparse/pkg/multipart"
)

// HeaderLen is the fixed prefix of every encoded record
const HeaderLen = 20

// headerEntryLen is the length prefix of one header block entry
const headerEntryLen = 8

var (
	ErrShortRecord  = errors.New("codec: data too short for record")
	ErrCRCMismatch  = errors.New("codec: CRC32 mismatch")
	ErrHeaderBlock  = errors.New("codec: malformed header block")
	ErrFieldTooLong = errors.New("codec: field exceeds 4GiB")
)

// Record is a stored multipart part with integrity metadata
type Record struct {
	CRC32      uint32 // CRC32 checksum for integrity
	HeaderSize uint32 // Size of the header block in bytes
	BodySize   uint32 // Size of the body in bytes
	Timestamp  uint64 // Unix timestamp in nanoseconds
	Header     []byte // Length-prefixed name/value entries sorted by name
	Body       []byte // Part body
}

// PartCodec handles serialization and deserialization of stored parts
type PartCodec struct {
	now func() time.Time
}

// NewPartCodec creates a new part codec instance
func NewPartCodec() *PartCodec {
	return &PartCodec{now: time.Now}
}

// Encode serializes a part into the binary record format
// Format: [CRC32(4)][HeaderSize(4)][BodySize(4)][Timestamp(8)][Header][Body]
func (c *PartCodec) Encode(part multipart.Part) ([]byte, error) {
	r, err := NewRecord(part, c.now())
	if err != nil {
		return nil, err
	}
	return r.Marshal(), nil
}

// Decode deserializes a binary record. Header and Body alias data.
func (c *PartCodec) Decode(data []byte) (*Record, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(data))
	}

	r := &Record{}
	r.CRC32 = binary.LittleEndian.Uint32(data[0:4])
	r.HeaderSize = binary.LittleEndian.Uint32(data[4:8])
	r.BodySize = binary.LittleEndian.Uint32(data[8:12])
	r.Timestamp = binary.LittleEndian.Uint64(data[12:20])

	total := uint64(HeaderLen) + uint64(r.HeaderSize) + uint64(r.BodySize)
	if uint64(len(data)) < total {
		return nil, fmt.Errorf("%w: %d < %d", ErrShortRecord, len(data), total)
	}

	headerEnd := HeaderLen + int(r.HeaderSize)
	r.Header = data[HeaderLen:headerEnd]
	r.Body = data[headerEnd : headerEnd+int(r.BodySize)]

	return r, nil
}

// DecodePart decodes and validates a record and rebuilds the part it holds
func (c *PartCodec) DecodePart(data []byte) (multipart.Part, time.Time, error) {
	r, err := c.Decode(data)
	if err != nil {
		return multipart.Part{}, time.Time{}, err
	}
	if err := r.Validate(); err != nil {
		return multipart.Part{}, time.Time{}, err
	}
	part, err := r.Part()
	if err != nil {
		return multipart.Part{}, time.Time{}, err
	}
	return part, r.Time(), nil
}

// NewRecord builds a record for part stamped with at. The CRC is left zero
// until the record is marshalled.
func NewRecord(part multipart.Part, at time.Time) (*Record, error) {
	header := encodeHeaders(part.Headers)
	if uint64(len(header)) > uint64(^uint32(0)) || uint64(len(part.Body)) > uint64(^uint32(0)) {
		return nil, ErrFieldTooLong
	}
	return &Record{
		HeaderSize: uint32(len(header)),
		BodySize:   uint32(len(part.Body)),
		Timestamp:  uint64(at.UnixNano()),
		Header:     header,
		Body:       part.Body,
	}, nil
}

// Marshal sets the CRC and returns the encoded record
func (r *Record) Marshal() []byte {
	r.CRC32 = r.calculateCRC32()

	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint32(buf[0:], r.CRC32)
	binary.LittleEndian.PutUint32(buf[4:], r.HeaderSize)
	binary.LittleEndian.PutUint32(buf[8:], r.BodySize)
	binary.LittleEndian.PutUint64(buf[12:], r.Timestamp)
	copy(buf[HeaderLen:], r.Header)
	copy(buf[HeaderLen+len(r.Header):], r.Body)

	return buf
}

// Validate checks the integrity of a record using CRC32
func (r *Record) Validate() error {
	if sum := r.calculateCRC32(); r.CRC32 != sum {
		return fmt.Errorf("%w: %d != %d", ErrCRCMismatch, r.CRC32, sum)
	}
	return nil
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int {
	return HeaderLen + len(r.Header) + len(r.Body)
}

// Time returns the capture timestamp
func (r *Record) Time() time.Time {
	return time.Unix(0, int64(r.Timestamp)).UTC()
}

// Part rebuilds the multipart part. The body is copied so the result does not
// alias the decoded buffer.
func (r *Record) Part() (multipart.Part, error) {
	headers, err := decodeHeaders(r.Header)
	if err != nil {
		return multipart.Part{}, err
	}

	part := multipart.Part{
		Headers:       headers,
		ContentLength: len(r.Body),
		Body:          append([]byte(nil), r.Body...),
	}
	part.ContentType = multipart.MediaType(headers["Content-Type"])
	return part, nil
}

// calculateCRC32 covers every field except the CRC itself
func (r *Record) calculateCRC32() uint32 {
	crc := crc32.NewIEEE()

	var fixed [16]byte
	binary.LittleEndian.PutUint32(fixed[0:], r.HeaderSize)
	binary.LittleEndian.PutUint32(fixed[4:], r.BodySize)
	binary.LittleEndian.PutUint64(fixed[8:], r.Timestamp)
	crc.Write(fixed[:])
	crc.Write(r.Header)
	crc.Write(r.Body)

	return crc.Sum32()
}

// encodeHeaders lays out each header as
// [NameLen(4)][ValueLen(4)][Name][Value], sorted by name. Names and values
// are stored as is, so whatever the decoder accepted reads back unchanged.
func encodeHeaders(headers map[string]string) []byte {
	names := make([]string, 0, len(headers))
	size := 0
	for name, value := range headers {
		names = append(names, name)
		size += headerEntryLen + len(name) + len(value)
	}
	sort.Strings(names)

	buf := make([]byte, 0, size)
	for _, name := range names {
		value := headers[name]
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(name)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
		buf = append(buf, name...)
		buf = append(buf, value...)
	}
	return buf
}

func decodeHeaders(block []byte) (map[string]string, error) {
	headers := make(map[string]string)
	for len(block) > 0 {
		if len(block) < headerEntryLen {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrHeaderBlock, len(block))
		}
		nameLen := uint64(binary.LittleEndian.Uint32(block[0:4]))
		valueLen := uint64(binary.LittleEndian.Uint32(block[4:8]))
		block = block[headerEntryLen:]
		if nameLen+valueLen > uint64(len(block)) {
			return nil, fmt.Errorf("%w: entry of %d bytes exceeds the %d left", ErrHeaderBlock, nameLen+valueLen, len(block))
		}
		name := string(block[:nameLen])
		headers[name] = string(block[nameLen : nameLen+valueLen])
		block = block[nameLen+valueLen:]
	}
	return headers, nil
}
