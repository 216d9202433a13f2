package wire

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/stopbit"
)

// DefaultMaxDepth bounds document nesting when no explicit limit is
// configured.
const DefaultMaxDepth = 64

// ReaderConfig holds configuration for the wire reader.
type ReaderConfig struct {
	// MaxDepth is the maximum document nesting depth. Zero means
	// DefaultMaxDepth.
	MaxDepth int
}

// Reader decodes one self-describing document from a payload slice. A Reader
// is single-use and not safe for concurrent use.
type Reader struct {
	data     []byte
	pos      int
	maxDepth int
	names    []string // intern table, indexed by anchor id
}

// NewReader creates a reader over payload. The payload is not copied; the
// decoded message owns copies of everything it references.
func NewReader(payload []byte, config ReaderConfig) *Reader {
	maxDepth := config.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Reader{data: payload, maxDepth: maxDepth}
}

// ReadDocument parses a single document into a Message.
//
// On failure the returned message carries the fields decoded before the
// error, so non-strict callers can surface partial results.
func ReadDocument(payload []byte) (*message.Message, error) {
	return NewReader(payload, ReaderConfig{}).ReadDocument()
}

// ReadDocument parses the reader's payload into a Message.
func (r *Reader) ReadDocument() (*message.Message, error) {
	msg := &message.Message{}

	if b, ok := r.peek(); ok && b == CodeTypePrefix {
		r.pos++
		name, err := r.readStopBitString()
		if err != nil {
			return msg, err
		}
		msg.TypeName = name
	}

	fields, err := r.readFields(len(r.data), 0)
	msg.Fields = fields
	return msg, err
}

// readFields consumes name/value pairs (or anonymous values, when the
// document is untagged) until end or a terminator.
func (r *Reader) readFields(end, depth int) ([]message.Field, error) {
	var b message.FieldBuilder

	for r.pos < end {
		code := r.data[r.pos]

		switch {
		case code == CodePadding:
			r.pos++
			continue
		case code == CodePadding32:
			r.pos++
			n, err := r.readInt32(end)
			if err != nil {
				return b.Fields(), err
			}
			if r.pos+int(n) > end {
				return b.Fields(), errAt(ErrTruncated, r.pos)
			}
			r.pos += int(n)
			continue
		case code == CodePaddingEnd:
			r.pos++
			return b.Fields(), nil
		case code == CodeComment || code == CodeHint:
			r.pos++
			if _, err := r.readStopBitString(); err != nil {
				return b.Fields(), err
			}
			continue
		case code == CodeEventObject:
			r.pos++
			continue
		}

		if IsFieldName(code) {
			name, err := r.readFieldName(end)
			if err != nil {
				return b.Fields(), err
			}
			v, err := r.readValue(end, depth)
			if err != nil {
				b.Add(name, message.Null{})
				return b.Fields(), err
			}
			b.Add(name, v)
			continue
		}

		// Untagged framing: anonymous values.
		v, err := r.readValue(end, depth)
		if err != nil {
			return b.Fields(), err
		}
		b.Add("", v)
	}
	return b.Fields(), nil
}

// readFieldName consumes one field name in any of its encodings.
func (r *Reader) readFieldName(end int) (string, error) {
	code := r.data[r.pos]
	r.pos++

	switch {
	case IsCompactFieldName(code):
		return r.readString(CompactFieldNameLen(code))
	case code == CodeFieldNameAny || code == CodeEventName:
		return r.readStopBitString()
	case code == CodeFieldNumber:
		n, err := r.readStopBit()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(n, 10), nil
	case code == CodeFieldAnchor:
		id, err := r.readStopBit()
		if err != nil {
			return "", err
		}
		if id >= maxInternedNames {
			return "", errAt(ErrInternOverflow, r.pos)
		}
		name, err := r.readStopBitString()
		if err != nil {
			return "", err
		}
		for uint64(len(r.names)) <= id {
			r.names = append(r.names, "")
		}
		r.names[id] = name
		return name, nil
	case code == CodeNameRef:
		pos := r.pos - 1
		id, err := r.readStopBit()
		if err != nil {
			return "", err
		}
		if id >= uint64(len(r.names)) || r.names[id] == "" {
			return "", &UnknownFieldRefError{ID: id, Pos: pos}
		}
		return r.names[id], nil
	}
	return "", &UnknownTypeCodeError{Byte: code, Pos: r.pos - 1}
}

// readValue consumes one value of any type.
func (r *Reader) readValue(end, depth int) (message.Value, error) {
	if r.pos >= end {
		return nil, errAt(ErrTruncated, r.pos)
	}
	codePos := r.pos
	code := r.data[r.pos]
	r.pos++

	if IsCompactString(code) {
		s, err := r.readString(CompactStringLen(code))
		return message.Text(s), err
	}

	switch code {
	case CodeNull:
		return message.Null{}, nil
	case CodeBoolTrue:
		return message.Bool(true), nil
	case CodeBoolFalse:
		return message.Bool(false), nil

	case CodeInt8:
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return message.Int64(int8(b[0])), nil
	case CodeInt16:
		b, err := r.take(2)
		if err != nil {
			return nil, err
		}
		return message.Int64(int16(binary.LittleEndian.Uint16(b))), nil
	case CodeInt32:
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return message.Int64(int32(binary.LittleEndian.Uint32(b))), nil
	case CodeInt64:
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return message.Int64(binary.LittleEndian.Uint64(b)), nil
	case CodeUInt8:
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return message.UInt64(b[0]), nil
	case CodeUInt16:
		b, err := r.take(2)
		if err != nil {
			return nil, err
		}
		return message.UInt64(binary.LittleEndian.Uint16(b)), nil
	case CodeUInt32:
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return message.UInt64(binary.LittleEndian.Uint32(b)), nil
	case CodeUInt64:
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return message.UInt64(binary.LittleEndian.Uint64(b)), nil

	case CodeFloat32:
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return message.Float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case CodeFloat64:
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return message.Float64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil

	case CodeString8:
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		s, err := r.readString(int(b[0]))
		return message.Text(s), err
	case CodeString16:
		b, err := r.take(2)
		if err != nil {
			return nil, err
		}
		s, err := r.readString(int(binary.LittleEndian.Uint16(b)))
		return message.Text(s), err
	case CodeStringAny:
		s, err := r.readStopBitString()
		return message.Text(s), err

	case CodeBytesLength32, CodeU8Array:
		n, err := r.readInt32(end)
		if err != nil {
			return nil, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return message.Bytes(out), nil
	case CodeI8Array:
		n, err := r.readInt32(end)
		if err != nil {
			return nil, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return nil, err
		}
		vals := make(message.List, len(b))
		for i, x := range b {
			vals[i] = message.Int64(int8(x))
		}
		return vals, nil
	case CodeI64Array:
		n, err := r.readInt32(end)
		if err != nil {
			return nil, err
		}
		vals := make(message.List, 0, n)
		for i := int32(0); i < n; i++ {
			b, err := r.take(8)
			if err != nil {
				return nil, err
			}
			vals = append(vals, message.Int64(binary.LittleEndian.Uint64(b)))
		}
		return vals, nil

	case CodeTimestampMillis:
		return r.readTimestamp(time.Millisecond)
	case CodeTimestampMicros:
		return r.readTimestamp(time.Microsecond)
	case CodeTimestampNanos:
		return r.readTimestamp(time.Nanosecond)
	case CodeDuration:
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return message.Int64(binary.LittleEndian.Uint64(b)), nil
	case CodeZonedDateTime, CodeDate:
		s, err := r.readStopBitString()
		if err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339Nano, s); perr == nil {
			return message.Timestamp(ts.UnixNano()), nil
		}
		return message.Text(s), nil

	case CodeUUID:
		b, err := r.take(16)
		if err != nil {
			return nil, err
		}
		var id uuid.UUID
		copy(id[:], b)
		return message.UUID(id), nil

	case CodeTypePrefix:
		name, err := r.readStopBitString()
		if err != nil {
			return nil, err
		}
		v, err := r.readValue(end, depth)
		if err != nil {
			return nil, err
		}
		if n, ok := v.(message.Nested); ok && n.Msg != nil {
			n.Msg.TypeName = name
			return n, nil
		}
		return v, nil
	case CodeTypeLiteral:
		s, err := r.readStopBitString()
		return message.Text(s), err

	case CodeSequenceStart:
		if depth+1 > r.maxDepth {
			return nil, errAt(ErrDepthExceeded, codePos)
		}
		return r.readSequence(end, depth+1)
	}

	return nil, &UnknownTypeCodeError{Byte: code, Pos: codePos}
}

// readSequence parses a length-prefixed nested region as either a nested
// message (when it opens with a field name or type prefix) or a value list.
func (r *Reader) readSequence(end, depth int) (message.Value, error) {
	n, err := r.readStopBit()
	if err != nil {
		return nil, err
	}
	seqEnd := r.pos + int(n)
	if seqEnd > end || seqEnd < r.pos {
		return nil, errAt(ErrTruncated, r.pos)
	}

	nested := false
	typeName := ""
	if r.pos < seqEnd {
		first := r.data[r.pos]
		if first == CodeTypePrefix {
			r.pos++
			typeName, err = r.readStopBitString()
			if err != nil {
				return nil, err
			}
			nested = true
		} else if IsFieldName(first) || first == CodeEventObject {
			nested = true
		}
	}

	if nested {
		fields, err := r.readFields(seqEnd, depth)
		msg := &message.Message{TypeName: typeName, Fields: fields}
		if err != nil {
			return message.Nested{Msg: msg}, err
		}
		return message.Nested{Msg: msg}, nil
	}

	var list message.List
	for r.pos < seqEnd {
		if r.data[r.pos] == CodePadding {
			r.pos++
			continue
		}
		v, err := r.readValue(seqEnd, depth)
		if err != nil {
			return list, err
		}
		list = append(list, v)
	}
	return list, nil
}

func (r *Reader) readTimestamp(unit time.Duration) (message.Value, error) {
	b, err := r.take(8)
	if err != nil {
		return nil, err
	}
	v := int64(binary.LittleEndian.Uint64(b))
	if unit == time.Nanosecond {
		return message.Timestamp(v), nil
	}
	scale := int64(unit)
	if v > math.MaxInt64/scale || v < math.MinInt64/scale {
		return nil, errAt(ErrTimestampOverflow, r.pos-8)
	}
	return message.Timestamp(v * scale), nil
}

func (r *Reader) peek() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	return r.data[r.pos], true
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errAt(ErrTruncated, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) readStopBit() (uint64, error) {
	v, n, err := stopbit.Decode(r.data[r.pos:])
	if err != nil {
		return 0, errAt(err, r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *Reader) readInt32(end int) (int32, error) {
	if r.pos+4 > end {
		return 0, errAt(ErrTruncated, r.pos)
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	if v < 0 {
		return 0, errAt(ErrTruncated, r.pos-4)
	}
	return v, nil
}

func (r *Reader) readString(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errAt(ErrInvalidUTF8, r.pos-n)
	}
	return string(b), nil
}

func (r *Reader) readStopBitString() (string, error) {
	n, err := r.readStopBit()
	if err != nil {
		return "", err
	}
	if n > uint64(len(r.data)-r.pos) {
		return "", errAt(ErrTruncated, r.pos)
	}
	return r.readString(int(n))
}
