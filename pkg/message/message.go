// Package message defines the decoded message model shared by every decoder:
// an ordered list of named fields holding values from a closed sum type.
// Messages own all bytes they reference and may outlive the file mapping
// they were decoded from.
package message

import (
	"fmt"
	"strings"
)

// Kind distinguishes data excerpts from queue metadata excerpts.
type Kind int

const (
	// Data is a regular application message.
	Data Kind = iota
	// Metadata is queue bookkeeping written by the producer.
	Metadata
)

func (k Kind) String() string {
	if k == Metadata {
		return "metadata"
	}
	return "data"
}

// Field is one named value within a message. Order within Message.Fields
// reflects on-disk order and is significant.
type Field struct {
	Name         string
	Value        Value
	DeclaredType string
}

// Message is one decoded excerpt. Index and Offset are assigned by the
// container reader; TypeName is the decoded class name when the payload
// carried one.
//
// DecodeErr holds the error that interrupted a non-strict decode; the fields
// decoded before the failure are preserved. Warnings collects recoverable
// oddities such as skipped unknown field ids.
type Message struct {
	Index    int64
	Offset   int64
	Kind     Kind
	TypeName string
	Fields   []Field

	DecodeErr error
	Warnings  []string
}

// Get returns the first field with the given name, or false.
func (m *Message) Get(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether a field with the given name exists. Dotted names
// descend into nested messages.
func (m *Message) Has(name string) bool {
	head, rest, nested := strings.Cut(name, ".")
	f, ok := m.Get(head)
	if !ok {
		return false
	}
	if !nested {
		return true
	}
	n, ok := f.Value.(Nested)
	if !ok || n.Msg == nil {
		return false
	}
	return n.Msg.Has(rest)
}

func (m *Message) String() string {
	name := m.TypeName
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("Message[%d] %s (%d fields)", m.Index, name, len(m.Fields))
}

// FieldBuilder accumulates fields, renaming duplicates so every non-empty
// name stays unique within one message level. The second occurrence of a
// name becomes name#2, the third name#3, and so on. Empty names (untagged
// values) are kept as-is.
type FieldBuilder struct {
	fields []Field
	seen   map[string]int
}

// Add appends a field, applying duplicate-name suffixing.
func (b *FieldBuilder) Add(name string, v Value) {
	b.AddTyped(name, v, "")
}

// AddTyped appends a field with a declared schema type.
func (b *FieldBuilder) AddTyped(name string, v Value, declaredType string) {
	if name != "" {
		if b.seen == nil {
			b.seen = make(map[string]int)
		}
		b.seen[name]++
		if n := b.seen[name]; n > 1 {
			name = fmt.Sprintf("%s#%d", name, n)
		}
	}
	b.fields = append(b.fields, Field{Name: name, Value: v, DeclaredType: declaredType})
}

// Fields returns the accumulated fields.
func (b *FieldBuilder) Fields() []Field {
	return b.fields
}

// Len returns the number of fields added so far.
func (b *FieldBuilder) Len() int {
	return len(b.fields)
}
