// Package decode turns raw excerpt payloads into messages using whichever
// encoding applies: the self-describing wire, fixed-layout SBE, or the
// compact tagged protocol. The dispatcher picks the decoder per payload.
package decode

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/schema"
)

// sbeHeaderSize is the standard SBE message header: block length, template
// id, schema id, version, each uint16 little-endian.
const sbeHeaderSize = 8

// SBEDecoder reads fixed-layout payloads in schema declaration order. All
// multi-byte primitives are little-endian; strings without a fixed length
// use a 16-bit length prefix.
type SBEDecoder struct {
	registry *schema.Registry
}

// NewSBEDecoder creates a decoder over a frozen registry.
func NewSBEDecoder(registry *schema.Registry) *SBEDecoder {
	return &SBEDecoder{registry: registry}
}

// Decode parses one payload. When any registry class declares a template
// id, the payload is expected to open with the 8-byte SBE header and the
// template selects the class; otherwise the registry default class drives
// the layout.
func (d *SBEDecoder) Decode(payload []byte) (*message.Message, error) {
	class, ok := d.registry.Default()
	if !ok {
		return &message.Message{}, ErrNoSchema
	}

	pos := 0
	if d.registry.HasTemplates() {
		if len(payload) < sbeHeaderSize {
			return &message.Message{}, &PayloadTooShortError{Field: "_header"}
		}
		templateID := int(binary.LittleEndian.Uint16(payload[2:4]))
		class, ok = d.registry.TemplateClass(templateID)
		if !ok {
			return &message.Message{}, &UnknownTemplateError{ID: templateID}
		}
		pos = sbeHeaderSize
	}

	msg := &message.Message{TypeName: class.Name}
	var b message.FieldBuilder

	for _, f := range class.Fields {
		if f.Offset >= 0 {
			base := 0
			if d.registry.HasTemplates() {
				base = sbeHeaderSize
			}
			pos = base + f.Offset
		}
		v, next, err := d.decodeField(payload, pos, f)
		if err != nil {
			msg.Fields = b.Fields()
			return msg, err
		}
		b.AddTyped(f.Name, v, f.DeclaredType)
		pos = next
	}

	msg.Fields = b.Fields()
	return msg, nil
}

func (d *SBEDecoder) decodeField(payload []byte, pos int, f schema.FieldDef) (message.Value, int, error) {
	fixed := func(n int) ([]byte, error) {
		if pos+n > len(payload) {
			return nil, &PayloadTooShortError{Field: f.Name}
		}
		return payload[pos : pos+n], nil
	}

	switch f.DeclaredType {
	case "byte", "int8":
		b, err := fixed(1)
		if err != nil {
			return nil, 0, err
		}
		return message.Int64(int8(b[0])), pos + 1, nil
	case "short", "int16":
		b, err := fixed(2)
		if err != nil {
			return nil, 0, err
		}
		return message.Int64(int16(binary.LittleEndian.Uint16(b))), pos + 2, nil
	case "int", "int32", "Integer":
		b, err := fixed(4)
		if err != nil {
			return nil, 0, err
		}
		return message.Int64(int32(binary.LittleEndian.Uint32(b))), pos + 4, nil
	case "long", "int64", "Long":
		b, err := fixed(8)
		if err != nil {
			return nil, 0, err
		}
		return message.Int64(binary.LittleEndian.Uint64(b)), pos + 8, nil
	case "uint8":
		b, err := fixed(1)
		if err != nil {
			return nil, 0, err
		}
		return message.UInt64(b[0]), pos + 1, nil
	case "uint16", "char":
		b, err := fixed(2)
		if err != nil {
			return nil, 0, err
		}
		return message.UInt64(binary.LittleEndian.Uint16(b)), pos + 2, nil
	case "uint32":
		b, err := fixed(4)
		if err != nil {
			return nil, 0, err
		}
		return message.UInt64(binary.LittleEndian.Uint32(b)), pos + 4, nil
	case "uint64":
		b, err := fixed(8)
		if err != nil {
			return nil, 0, err
		}
		return message.UInt64(binary.LittleEndian.Uint64(b)), pos + 8, nil
	case "float", "float32", "Float":
		b, err := fixed(4)
		if err != nil {
			return nil, 0, err
		}
		return message.Float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), pos + 4, nil
	case "double", "float64", "Double":
		b, err := fixed(8)
		if err != nil {
			return nil, 0, err
		}
		return message.Float64(math.Float64frombits(binary.LittleEndian.Uint64(b))), pos + 8, nil
	case "boolean", "bool", "Boolean":
		b, err := fixed(1)
		if err != nil {
			return nil, 0, err
		}
		return message.Bool(b[0] != 0), pos + 1, nil
	case "String", "CharSequence", "string":
		if f.Length > 0 {
			b, err := fixed(f.Length)
			if err != nil {
				return nil, 0, err
			}
			return fixedString(b, f.Name, pos+f.Length)
		}
		b, err := fixed(2)
		if err != nil {
			return nil, 0, err
		}
		n := int(binary.LittleEndian.Uint16(b))
		if pos+2+n > len(payload) {
			return nil, 0, &PayloadTooShortError{Field: f.Name}
		}
		s := payload[pos+2 : pos+2+n]
		if !utf8.Valid(s) {
			return nil, 0, &InvalidUTF8Error{Field: f.Name}
		}
		return message.Text(s), pos + 2 + n, nil
	case "byte[]", "bytes":
		n := f.Length
		if n == 0 {
			b, err := fixed(2)
			if err != nil {
				return nil, 0, err
			}
			n = int(binary.LittleEndian.Uint16(b))
			pos += 2
		}
		if pos+n > len(payload) {
			return nil, 0, &PayloadTooShortError{Field: f.Name}
		}
		out := make([]byte, n)
		copy(out, payload[pos:pos+n])
		return message.Bytes(out), pos + n, nil
	}

	// Unrecognized declared types consume nothing and decode as null; the
	// fixed layout cannot advance past something of unknown width.
	return message.Null{}, pos, nil
}

// fixedString trims a fixed-width char array at its first NUL.
func fixedString(b []byte, field string, next int) (message.Value, int, error) {
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	if !utf8.Valid(b) {
		return nil, 0, &InvalidUTF8Error{Field: field}
	}
	return message.Text(string(b)), next, nil
}
