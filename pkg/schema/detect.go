package schema

import "strings"

// Markers that identify the generated-code families in class definitions.
// The compact tagged protocol's generated classes import and extend the
// org.apache.thrift runtime; SBE stubs reference the real-logic codecs.
var (
	compactMarkers = []string{"org.apache.thrift"}
	sbeMarkers     = []string{"uk.co.real_logic", "io.aeron.sbe", ".sbe."}
)

// DetectEncoding inspects imports (or constant-pool references), class
// inheritance, and field annotations to pick the payload encoding. First
// match wins: compact tagged, then SBE, then the self-describing wire.
func DetectEncoding(imports []string, classes []*ClassDef) Encoding {
	for _, imp := range imports {
		for _, marker := range compactMarkers {
			if strings.Contains(imp, marker) {
				return EncodingCompactTagged
			}
		}
	}
	for _, c := range classes {
		if strings.Contains(c.Extends, "TBase") {
			return EncodingCompactTagged
		}
	}

	for _, imp := range imports {
		for _, marker := range sbeMarkers {
			if strings.Contains(imp, marker) {
				return EncodingSBE
			}
		}
	}
	for _, c := range classes {
		if hasSbeAnnotations(c) {
			return EncodingSBE
		}
	}

	return EncodingSelfDescribing
}

func hasSbeAnnotations(c *ClassDef) bool {
	if c.TemplateID != 0 {
		return true
	}
	for _, f := range c.Fields {
		for _, a := range f.Annotations {
			if a == "SbeField" {
				return true
			}
		}
	}
	for _, inner := range c.Inner {
		if hasSbeAnnotations(inner) {
			return true
		}
	}
	return false
}
