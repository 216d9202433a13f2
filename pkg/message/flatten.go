package message

import "encoding/hex"

// Flatten converts the message into a flat map keyed by dot-notation paths,
// suitable for CSV export and field search. Nested messages contribute
// prefix.child keys; collections are rendered as joined strings; bytes are
// hex-encoded. The returned keys slice preserves field order.
func (m *Message) Flatten() (keys []string, row map[string]string) {
	row = map[string]string{
		"_index":  Int64(m.Index).String(),
		"_offset": Int64(m.Offset).String(),
		"_type":   m.TypeName,
	}
	keys = []string{"_index", "_offset", "_type"}

	for _, f := range m.Fields {
		keys = flattenValue(f.Name, f.Value, keys, row)
	}
	return keys, row
}

func flattenValue(prefix string, v Value, keys []string, row map[string]string) []string {
	switch val := v.(type) {
	case Null:
		keys = putFlat(prefix, "", keys, row)
	case Nested:
		if val.Msg == nil {
			keys = putFlat(prefix, "", keys, row)
			break
		}
		if val.Msg.TypeName != "" {
			keys = putFlat(prefix+"._type", val.Msg.TypeName, keys, row)
		}
		for _, f := range val.Msg.Fields {
			keys = flattenValue(prefix+"."+f.Name, f.Value, keys, row)
		}
	case List:
		keys = putFlat(prefix, joinValues(val), keys, row)
	case Set:
		keys = putFlat(prefix, joinValues(val), keys, row)
	case Map:
		s := ""
		for i, e := range val {
			if i > 0 {
				s += ", "
			}
			s += e.Key.String() + "=" + e.Value.String()
		}
		keys = putFlat(prefix, s, keys, row)
	case Bytes:
		keys = putFlat(prefix, hex.EncodeToString(val), keys, row)
	default:
		keys = putFlat(prefix, v.String(), keys, row)
	}
	return keys
}

func putFlat(key, value string, keys []string, row map[string]string) []string {
	if _, dup := row[key]; !dup {
		keys = append(keys, key)
	}
	row[key] = value
	return keys
}
