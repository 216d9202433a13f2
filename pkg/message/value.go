package message

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is a decoded field value. It is a closed sum: the concrete types in
// this file are the only implementations. Traversals switch on the concrete
// type.
type Value interface {
	valueTag()
	String() string
}

// Null is the absence of a value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int64 is a signed integer; narrower signed wire types are sign-extended.
type Int64 int64

// UInt64 is an unsigned integer; narrower unsigned wire types are
// zero-extended.
type UInt64 uint64

// Float64 is a floating-point value; float32 wire values are widened.
type Float64 float64

// Text is a UTF-8 string.
type Text string

// Bytes is opaque binary data. The slice is owned by the Value.
type Bytes []byte

// Timestamp is UTC epoch nanoseconds.
type Timestamp int64

// UUID is a 128-bit identifier.
type UUID uuid.UUID

// List is an ordered sequence of values.
type List []Value

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   Value
	Value Value
}

// Map is an ordered sequence of key/value pairs. Insertion order is
// preserved; no key deduplication is performed.
type Map []MapEntry

// Set is an ordered collection of values read from a set container. Order is
// insertion order; duplicate values are not removed.
type Set []Value

// Nested wraps a sub-message so that structured payloads recurse through the
// same Message shape used at the top level.
type Nested struct {
	Msg *Message
}

func (Null) valueTag()    {}
func (Bool) valueTag()    {}
func (Int64) valueTag()   {}
func (UInt64) valueTag()  {}
func (Float64) valueTag() {}
func (Text) valueTag()    {}
func (Bytes) valueTag()   {}
func (Timestamp) valueTag() {}
func (UUID) valueTag()    {}
func (List) valueTag()    {}
func (Map) valueTag()     {}
func (Set) valueTag()     {}
func (Nested) valueTag()  {}

func (Null) String() string { return "<null>" }

func (v Bool) String() string { return strconv.FormatBool(bool(v)) }

func (v Int64) String() string { return strconv.FormatInt(int64(v), 10) }

func (v UInt64) String() string { return strconv.FormatUint(uint64(v), 10) }

func (v Float64) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

func (v Text) String() string { return string(v) }

func (v Bytes) String() string {
	return fmt.Sprintf("<bytes:%d> %s", len(v), hex.EncodeToString(v))
}

func (v Timestamp) String() string {
	return time.Unix(0, int64(v)).UTC().Format(time.RFC3339Nano)
}

func (v UUID) String() string { return uuid.UUID(v).String() }

func (v List) String() string { return fmt.Sprintf("[%d items]", len(v)) }

func (v Map) String() string { return fmt.Sprintf("{%d entries}", len(v)) }

func (v Set) String() string { return fmt.Sprintf("(%d items)", len(v)) }

func (v Nested) String() string {
	if v.Msg == nil {
		return "{}"
	}
	name := v.Msg.TypeName
	if name == "" {
		name = "object"
	}
	return fmt.Sprintf("{%s: %d fields}", name, len(v.Msg.Fields))
}

// Time returns the timestamp as a time.Time in UTC.
func (v Timestamp) Time() time.Time { return time.Unix(0, int64(v)).UTC() }

// joinValues renders a collection for flat export.
func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
