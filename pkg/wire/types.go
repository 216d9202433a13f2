// Package wire decodes the self-describing binary format used inside
// Chronicle Queue excerpts. Every value is preceded by a single-byte type
// code; field names are embedded, optionally interned per document and
// referenced by id.
package wire

// Type codes. The set is closed: any byte outside this table (or inside the
// reserved alignment range) is a decode error, reported with its value and
// position.
const (
	// Alignment and special values.
	CodePadding       = 0x00 // single padding byte
	CodeNull          = 0x80
	CodeBytesLength32 = 0x81 // int32 LE length + raw bytes
	CodeSequenceStart = 0x82 // stop-bit length + nested document or value sequence
	CodeI64Array      = 0x83 // int32 LE count + count int64 LE
	CodeU8Array       = 0x84 // int32 LE length + raw bytes
	CodeI8Array       = 0x85 // int32 LE length + raw bytes

	// Strings with explicit length prefixes.
	CodeString8  = 0x86 // uint8 length + UTF-8
	CodeString16 = 0x87 // uint16 LE length + UTF-8

	// Booleans.
	CodeBoolFalse = 0x88
	CodeBoolTrue  = 0x89

	// Duration in nanoseconds, int64 LE.
	CodeDuration = 0x8A

	// Event object marker: the next field name is an event, the value follows.
	CodeEventObject = 0x8B

	// 0x8C and 0x8D are reserved for future alignment codes.

	CodePadding32  = 0x8E // int32 LE count of padding bytes to skip
	CodePaddingEnd = 0x8F // terminates the current document

	// Floating point.
	CodeFloat32 = 0x90
	CodeFloat64 = 0x91

	// Fixed-width integers. Signed codes sign-extend to 64 bits, unsigned
	// codes zero-extend.
	CodeInt8   = 0xA1
	CodeInt16  = 0xA2
	CodeInt32  = 0xA4
	CodeInt64  = 0xA8
	CodeUInt8  = 0xA5
	CodeUInt16 = 0xA6
	CodeUInt32 = 0xA7
	CodeUInt64 = 0xA9

	// Time values, normalized to UTC epoch nanoseconds on read.
	CodeTimestampMillis = 0xB0 // int64 LE epoch milliseconds
	CodeTimestampNanos  = 0xB1 // int64 LE epoch nanoseconds
	CodeZonedDateTime   = 0xB2 // stop-bit length + ISO-8601 text
	CodeDate            = 0xB3 // stop-bit length + ISO-8601 date text
	CodeTimestampMicros = 0xB4 // int64 LE epoch microseconds

	// Identifiers.
	CodeUUID       = 0xB5 // 16 raw bytes
	CodeTypePrefix = 0xB6 // stop-bit length + type name

	// Field names and strings without compact forms.
	CodeFieldNameAny = 0xB7 // stop-bit length + name
	CodeStringAny    = 0xB8 // stop-bit length + UTF-8
	CodeFieldNumber  = 0xB9 // stop-bit unsigned, rendered as decimal name

	CodeTypeLiteral = 0xBA // stop-bit length + type name, as a value
	CodeEventName   = 0xBB // stop-bit length + name

	// Name interning. An anchor defines (id, name) in the per-document
	// table and acts as the field name; a ref replays a defined id.
	CodeFieldAnchor = 0xBC // stop-bit id + stop-bit length + name
	CodeNameRef     = 0xBD // stop-bit id

	CodeHint    = 0xBE // stop-bit length + text, skipped
	CodeComment = 0xBF // stop-bit length + text, skipped
)

// Compact ranges: the low bits of the code carry the length.
const (
	compactFieldNameMin = 0xC0
	compactFieldNameMax = 0xDF
	compactStringMin    = 0xE0
	compactStringMax    = 0xFF
)

// maxInternedNames bounds the per-document field-name intern table.
const maxInternedNames = 128

// IsCompactFieldName reports whether code is a compact field name
// (0xC0-0xDF, length in the low 5 bits).
func IsCompactFieldName(code byte) bool {
	return code >= compactFieldNameMin && code <= compactFieldNameMax
}

// CompactFieldNameLen extracts the name length from a compact field name code.
func CompactFieldNameLen(code byte) int {
	return int(code - compactFieldNameMin)
}

// IsCompactString reports whether code is a compact string (0xE0-0xFF,
// length in the low 5 bits).
func IsCompactString(code byte) bool {
	return code >= compactStringMin
}

// CompactStringLen extracts the string length from a compact string code.
func CompactStringLen(code byte) int {
	return int(code - compactStringMin)
}

// IsFieldName reports whether code introduces a field name: the compact
// range, the explicit name codes, event names, and intern anchors/refs.
func IsFieldName(code byte) bool {
	if IsCompactFieldName(code) {
		return true
	}
	switch code {
	case CodeFieldNameAny, CodeFieldNumber, CodeEventName, CodeFieldAnchor, CodeNameRef:
		return true
	}
	return false
}

// IsDocumentStart reports whether code plausibly starts a self-describing
// document. The dispatcher uses this to pick the wire decoder.
func IsDocumentStart(code byte) bool {
	return IsFieldName(code) || code == CodeTypePrefix || code == CodeSequenceStart ||
		code == CodeEventObject || code == CodePadding
}
