package decode

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"unicode/utf8"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/schema"
	"github.com/hsterling/chronoview/pkg/stopbit"
)

// Compact tagged wire type nibbles.
const (
	ctBoolTrue  = 1
	ctBoolFalse = 2
	ctI8        = 3
	ctI16       = 4
	ctI32       = 5
	ctI64       = 6
	ctF64       = 7
	ctString    = 8
	ctBinary    = 9
	ctList      = 10
	ctSet       = 11
	ctMap       = 12
	ctStruct    = 13
	ctStop      = 14
)

// CompactDecoder reads the field-id-tagged zigzag-varint protocol. Field
// headers pack (delta<<4 | type); a zero delta means the absolute id
// follows as a zigzag varint. A struct ends at a stop nibble, a bare 0x00
// byte, or the end of the payload.
type CompactDecoder struct {
	registry *schema.Registry
	strict   bool
}

// NewCompactDecoder creates a decoder over a frozen registry. In strict
// mode unknown field ids are fatal instead of skipped.
func NewCompactDecoder(registry *schema.Registry, strict bool) *CompactDecoder {
	return &CompactDecoder{registry: registry, strict: strict}
}

// Decode parses one payload against the registry's default class.
func (d *CompactDecoder) Decode(payload []byte) (*message.Message, error) {
	class, ok := d.registry.Default()
	if !ok {
		return &message.Message{}, ErrNoSchema
	}
	msg := &message.Message{TypeName: class.Name}

	fields, warnings, _, err := d.decodeStruct(payload, 0, class.Name)
	msg.Fields = fields
	msg.Warnings = warnings
	return msg, err
}

// decodeStruct consumes fields until a stop marker and returns the cursor
// one byte past it.
func (d *CompactDecoder) decodeStruct(data []byte, pos int, class string) ([]message.Field, []string, int, error) {
	var b message.FieldBuilder
	var warnings []string
	lastID := 0

	for pos < len(data) {
		header := data[pos]
		pos++
		if header == 0x00 || header&0x0F == ctStop {
			return b.Fields(), warnings, pos, nil
		}

		delta := int(header >> 4)
		typ := int(header & 0x0F)

		var id int
		if delta != 0 {
			id = lastID + delta
		} else {
			v, n, err := stopbit.DecodeZigzag(data[pos:])
			if err != nil {
				return b.Fields(), warnings, pos, fmt.Errorf("%w at payload offset %d", ErrMalformedHeader, pos)
			}
			pos += n
			id = int(v)
		}
		lastID = id

		f, known := d.registry.FieldByID(class, id)
		if class == "" {
			// Schemaless struct: keep fields under their numeric ids.
			f = schema.FieldDef{Name: fmt.Sprintf("field_%d", id)}
			known = true
		}
		if !known {
			if d.strict {
				return b.Fields(), warnings, pos, &UnknownFieldIDError{ID: id, Class: class}
			}
			// Consume one value of the declared wire type and move on.
			_, ws, next, err := d.decodeValue(data, pos, typ, schema.FieldDef{Name: fmt.Sprintf("field_%d", id)})
			warnings = append(warnings, ws...)
			if err != nil {
				return b.Fields(), warnings, next, err
			}
			warnings = append(warnings, (&UnknownFieldIDError{ID: id, Class: class}).Error())
			pos = next
			continue
		}

		v, ws, next, err := d.decodeValue(data, pos, typ, f)
		warnings = append(warnings, ws...)
		if err != nil {
			return b.Fields(), warnings, next, err
		}
		b.AddTyped(f.Name, v, f.DeclaredType)
		pos = next
	}
	// End of data closes the outermost struct.
	return b.Fields(), warnings, pos, nil
}

func (d *CompactDecoder) decodeValue(data []byte, pos, typ int, f schema.FieldDef) (message.Value, []string, int, error) {
	switch typ {
	case ctBoolTrue:
		return message.Bool(true), nil, pos, nil
	case ctBoolFalse:
		return message.Bool(false), nil, pos, nil
	case ctI8:
		if pos >= len(data) {
			return nil, nil, pos, truncated(pos)
		}
		return message.Int64(int8(data[pos])), nil, pos + 1, nil
	case ctI16, ctI32, ctI64:
		v, n, err := stopbit.DecodeZigzag(data[pos:])
		if err != nil {
			return nil, nil, pos, truncated(pos)
		}
		return message.Int64(v), nil, pos + n, nil
	case ctF64:
		if pos+8 > len(data) {
			return nil, nil, pos, truncated(pos)
		}
		bits := binary.LittleEndian.Uint64(data[pos:])
		return message.Float64(math.Float64frombits(bits)), nil, pos + 8, nil
	case ctString:
		s, next, err := d.readBlob(data, pos)
		if err != nil {
			return nil, nil, pos, err
		}
		if !utf8.Valid(s) {
			return nil, nil, pos, &InvalidUTF8Error{Field: f.Name}
		}
		return message.Text(s), nil, next, nil
	case ctBinary:
		s, next, err := d.readBlob(data, pos)
		if err != nil {
			return nil, nil, pos, err
		}
		out := make([]byte, len(s))
		copy(out, s)
		return message.Bytes(out), nil, next, nil
	case ctList, ctSet:
		vals, ws, next, err := d.decodeCollection(data, pos, f)
		if err != nil {
			return nil, ws, next, err
		}
		if typ == ctSet {
			return message.Set(vals), ws, next, nil
		}
		return message.List(vals), ws, next, nil
	case ctMap:
		return d.decodeMap(data, pos, f)
	case ctStruct:
		return d.decodeNested(data, pos, f)
	}
	return nil, nil, pos, fmt.Errorf("%w: wire type %d at payload offset %d", ErrMalformedHeader, typ, pos-1)
}

func (d *CompactDecoder) decodeNested(data []byte, pos int, f schema.FieldDef) (message.Value, []string, int, error) {
	class := elementClass(f.DeclaredType)
	if _, ok := d.registry.Query(class); !ok {
		// Without a class the struct is still consumed; its fields keep
		// their numeric ids.
		fields, ws, next, err := d.decodeStruct(data, pos, "")
		nested := message.Nested{Msg: &message.Message{Fields: fields}}
		if err != nil {
			return nested, ws, next, err
		}
		ws = append(ws, (&MissingClassError{Class: class, Field: f.Name}).Error())
		return nested, ws, next, nil
	}

	fields, ws, next, err := d.decodeStruct(data, pos, class)
	nested := message.Nested{Msg: &message.Message{TypeName: class, Fields: fields}}
	return nested, ws, next, err
}

// decodeCollection reads a list or set: one byte (size<<4 | elem_type),
// with a varint size following when the packed size is 15.
func (d *CompactDecoder) decodeCollection(data []byte, pos int, f schema.FieldDef) ([]message.Value, []string, int, error) {
	if pos >= len(data) {
		return nil, nil, pos, truncated(pos)
	}
	header := data[pos]
	pos++
	size := int(header >> 4)
	elemType := int(header & 0x0F)
	if size == 15 {
		v, n, err := stopbit.Decode(data[pos:])
		if err != nil {
			return nil, nil, pos, truncated(pos)
		}
		pos += n
		size = int(v)
	}

	elemField := schema.FieldDef{Name: f.Name, DeclaredType: f.DeclaredType}
	var vals []message.Value
	var warnings []string
	for i := 0; i < size; i++ {
		v, ws, next, err := d.decodeValue(data, pos, elemType, elemField)
		warnings = append(warnings, ws...)
		if err != nil {
			return vals, warnings, next, err
		}
		vals = append(vals, v)
		pos = next
	}
	return vals, warnings, pos, nil
}

// decodeMap reads a map: one byte (key_type<<4 | value_type), a varint
// size, then size key/value pairs.
func (d *CompactDecoder) decodeMap(data []byte, pos int, f schema.FieldDef) (message.Value, []string, int, error) {
	if pos >= len(data) {
		return nil, nil, pos, truncated(pos)
	}
	header := data[pos]
	pos++
	keyType := int(header >> 4)
	valType := int(header & 0x0F)

	size64, n, err := stopbit.Decode(data[pos:])
	if err != nil {
		return nil, nil, pos, truncated(pos)
	}
	pos += n

	elemField := schema.FieldDef{Name: f.Name, DeclaredType: f.DeclaredType}
	var entries message.Map
	var warnings []string
	for i := uint64(0); i < size64; i++ {
		k, ws, next, err := d.decodeValue(data, pos, keyType, elemField)
		warnings = append(warnings, ws...)
		if err != nil {
			return entries, warnings, next, err
		}
		pos = next
		v, ws2, next2, err := d.decodeValue(data, pos, valType, elemField)
		warnings = append(warnings, ws2...)
		if err != nil {
			return entries, warnings, next2, err
		}
		pos = next2
		entries = append(entries, message.MapEntry{Key: k, Value: v})
	}
	return entries, warnings, pos, nil
}

func (d *CompactDecoder) readBlob(data []byte, pos int) ([]byte, int, error) {
	n64, n, err := stopbit.Decode(data[pos:])
	if err != nil {
		return nil, pos, truncated(pos)
	}
	pos += n
	if n64 > uint64(len(data)-pos) {
		return nil, pos, truncated(pos)
	}
	end := pos + int(n64)
	return data[pos:end], end, nil
}

func truncated(pos int) error {
	return fmt.Errorf("%w at payload offset %d", ErrTruncated, pos)
}

var genericRe = regexp.MustCompile(`^[\w.$]+<\s*([\w.$]+)`)

// elementClass extracts the schema class for nested structs: "Leg" from
// "Leg", "List<Leg>", or "java.util.List<com.acme.Leg>".
func elementClass(declaredType string) string {
	if m := genericRe.FindStringSubmatch(declaredType); m != nil {
		declaredType = m[1]
	}
	if i := lastDot(declaredType); i >= 0 {
		declaredType = declaredType[i+1:]
	}
	return declaredType
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
