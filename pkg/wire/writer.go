package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/stopbit"
)

// Writer emits documents in canonical form: one fixed encoding per value
// kind, no interning, no padding. Decoding a canonical document yields a
// field-equivalent message, which makes the encoder usable for re-encoding
// checks and for building test fixtures. Two kinds do not round-trip: a Set
// is written as a sequence and reads back as a List, and a Map has no
// canonical encoding, so writing one returns an error.
type Writer struct {
	buf []byte
}

// Bytes returns the encoded document.
func (w *Writer) Bytes() []byte { return w.buf }

// AppendDocument encodes msg in canonical form and appends it to dst.
func AppendDocument(dst []byte, msg *message.Message) ([]byte, error) {
	w := &Writer{buf: dst}
	if err := w.WriteDocument(msg); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// WriteDocument appends a full document: optional type prefix, then fields.
func (w *Writer) WriteDocument(msg *message.Message) error {
	if msg.TypeName != "" {
		w.buf = append(w.buf, CodeTypePrefix)
		w.writeStopBitString(msg.TypeName)
	}
	return w.writeFields(msg.Fields)
}

func (w *Writer) writeFields(fields []message.Field) error {
	for _, f := range fields {
		if f.Name != "" {
			w.writeFieldName(f.Name)
		}
		if err := w.writeValue(f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeFieldName(name string) {
	if len(name) < 32 {
		w.buf = append(w.buf, byte(compactFieldNameMin+len(name)))
		w.buf = append(w.buf, name...)
		return
	}
	w.buf = append(w.buf, CodeFieldNameAny)
	w.writeStopBitString(name)
}

func (w *Writer) writeValue(v message.Value) error {
	switch val := v.(type) {
	case message.Null:
		w.buf = append(w.buf, CodeNull)
	case message.Bool:
		if val {
			w.buf = append(w.buf, CodeBoolTrue)
		} else {
			w.buf = append(w.buf, CodeBoolFalse)
		}
	case message.Int64:
		w.buf = append(w.buf, CodeInt64)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(val))
	case message.UInt64:
		w.buf = append(w.buf, CodeUInt64)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(val))
	case message.Float64:
		w.buf = append(w.buf, CodeFloat64)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(float64(val)))
	case message.Text:
		if len(val) < 32 {
			w.buf = append(w.buf, byte(compactStringMin+len(val)))
			w.buf = append(w.buf, val...)
		} else {
			w.buf = append(w.buf, CodeStringAny)
			w.writeStopBitString(string(val))
		}
	case message.Bytes:
		w.buf = append(w.buf, CodeBytesLength32)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(val)))
		w.buf = append(w.buf, val...)
	case message.Timestamp:
		w.buf = append(w.buf, CodeTimestampNanos)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(val))
	case message.UUID:
		w.buf = append(w.buf, CodeUUID)
		id := uuid.UUID(val)
		w.buf = append(w.buf, id[:]...)
	case message.List:
		return w.writeSequence([]message.Value(val))
	case message.Set:
		return w.writeSequence([]message.Value(val))
	case message.Nested:
		if val.Msg == nil {
			w.buf = append(w.buf, CodeNull)
			return nil
		}
		sub := &Writer{}
		if err := sub.WriteDocument(val.Msg); err != nil {
			return err
		}
		w.buf = append(w.buf, CodeSequenceStart)
		w.buf = stopbit.Append(w.buf, uint64(len(sub.buf)))
		w.buf = append(w.buf, sub.buf...)
	default:
		return fmt.Errorf("wire: cannot encode %T in canonical form", v)
	}
	return nil
}

func (w *Writer) writeSequence(vals []message.Value) error {
	sub := &Writer{}
	for _, v := range vals {
		if err := sub.writeValue(v); err != nil {
			return err
		}
	}
	w.buf = append(w.buf, CodeSequenceStart)
	w.buf = stopbit.Append(w.buf, uint64(len(sub.buf)))
	w.buf = append(w.buf, sub.buf...)
	return nil
}

func (w *Writer) writeStopBitString(s string) {
	w.buf = stopbit.Append(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}
