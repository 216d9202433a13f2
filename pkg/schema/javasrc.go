package schema

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// SourceFile is the parse result of one class-definition source file.
type SourceFile struct {
	Path    string
	Package string
	Imports []string
	Classes []*ClassDef
}

var (
	packageRe = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)
	importRe  = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.*]+)\s*;`)

	classHeaderRe = regexp.MustCompile(
		`(?s)^(.*?)((?:(?:public|protected|private|static|final|abstract)\s+)*)class\s+(\w+)` +
			`(?:\s+extends\s+([\w.<>]+))?(?:\s+implements\s+(.+?))?\s*$`)

	fieldStmtRe = regexp.MustCompile(
		`^((?:@\w+(?:\([^)]*\))?\s*)*)` +
			`((?:(?:public|protected|private|static|final|transient|volatile)\s+)*)` +
			`([\w.$]+(?:<[^;=]*>)?(?:\[\])*)\s+(\w+)\s*(?:=[^;]*)?$`)

	annotationRe    = regexp.MustCompile(`@(\w+)(?:\(([^)]*)\))?`)
	annotationIntRe = regexp.MustCompile(`(\w+)\s*=\s*(-?\d+)`)
)

// ParseSourceFile parses a class-definition source file into class schemas.
func ParseSourceFile(path string) (*SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	sf, err := ParseSource(data)
	if err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	sf.Path = path
	return sf, nil
}

// ParseSource parses class-definition source text.
func ParseSource(src []byte) (*SourceFile, error) {
	text := stripComments(string(src))
	sf := &SourceFile{}

	if m := packageRe.FindStringSubmatch(text); m != nil {
		sf.Package = m[1]
	}
	for _, m := range importRe.FindAllStringSubmatch(text, -1) {
		sf.Imports = append(sf.Imports, m[1])
	}

	classes, err := parseClassRegion(text, sf.Package)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no class declaration found")
	}
	sf.Classes = classes
	return sf, nil
}

// parseClassRegion walks a region of source text, collecting class
// declarations. It is used for both the top level and class bodies; at the
// top level the field statements it sees (package, import) never match the
// field grammar and are dropped.
func parseClassRegion(text, pkg string) ([]*ClassDef, error) {
	classes, _, err := parseRegion(text, pkg)
	return classes, err
}

func parseRegion(text, pkg string) (classes []*ClassDef, fields []FieldDef, err error) {
	var stmt strings.Builder
	i := 0
	for i < len(text) {
		switch ch := text[i]; ch {
		case '{':
			end, ok := matchBrace(text, i)
			if !ok {
				return nil, nil, fmt.Errorf("unbalanced braces")
			}
			header := strings.TrimSpace(stmt.String())
			stmt.Reset()
			if m := classHeaderRe.FindStringSubmatch(header); m != nil && strings.Contains(header, "class ") {
				c, cerr := parseClassDecl(m, text[i+1:end], pkg)
				if cerr != nil {
					return nil, nil, cerr
				}
				classes = append(classes, c)
			}
			// Anything else (method, constructor, initializer) is skipped.
			i = end + 1
		case ';':
			if f, ok := parseFieldStmt(strings.TrimSpace(stmt.String())); ok {
				fields = append(fields, f)
			}
			stmt.Reset()
			i++
		default:
			stmt.WriteByte(ch)
			i++
		}
	}
	return classes, fields, nil
}

func parseClassDecl(m []string, body, pkg string) (*ClassDef, error) {
	c := &ClassDef{
		Name:    m[3],
		Package: pkg,
		Extends: strings.TrimSpace(m[4]),
	}

	// Class-level annotations live in the prefix before the modifiers.
	for _, ann := range annotationRe.FindAllStringSubmatch(m[1], -1) {
		if ann[1] == "SbeMessage" {
			for _, kv := range annotationIntRe.FindAllStringSubmatch(ann[2], -1) {
				if kv[1] == "templateId" {
					c.TemplateID, _ = strconv.Atoi(kv[2])
				}
			}
		}
	}

	inner, fields, err := parseRegion(body, pkg)
	if err != nil {
		return nil, err
	}
	c.Inner = inner
	c.Fields = fields
	return c, nil
}

// parseFieldStmt parses one semicolon-terminated statement as a field
// declaration. Static and transient fields are excluded; statements that do
// not fit the field grammar (method signatures, package/import lines) report
// ok=false.
func parseFieldStmt(stmt string) (FieldDef, bool) {
	if stmt == "" {
		return FieldDef{}, false
	}
	m := fieldStmtRe.FindStringSubmatch(stmt)
	if m == nil {
		return FieldDef{}, false
	}

	modifiers := m[2]
	if strings.Contains(modifiers, "static") || strings.Contains(modifiers, "transient") {
		return FieldDef{}, false
	}
	declaredType := m[3]
	switch declaredType {
	case "package", "import", "return", "throw", "class":
		return FieldDef{}, false
	}

	f := FieldDef{
		Name:         m[4],
		DeclaredType: declaredType,
		Offset:       -1,
	}
	for _, ann := range annotationRe.FindAllStringSubmatch(m[1], -1) {
		f.Annotations = append(f.Annotations, ann[1])
		kvs := annotationIntRe.FindAllStringSubmatch(ann[2], -1)
		switch ann[1] {
		case "XField":
			for _, kv := range kvs {
				if kv[1] == "id" {
					f.ID, _ = strconv.Atoi(kv[2])
				}
			}
		case "SbeField":
			for _, kv := range kvs {
				switch kv[1] {
				case "offset":
					f.Offset, _ = strconv.Atoi(kv[2])
				case "length":
					f.Length, _ = strconv.Atoi(kv[2])
				}
			}
		}
	}
	return f, true
}

// matchBrace returns the index of the brace closing the one at open.
func matchBrace(text string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// stripComments removes line and block comments, leaving string and
// character literals intact.
func stripComments(src string) string {
	var out strings.Builder
	out.Grow(len(src))
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i += 2
		case ch == '"' || ch == '\'':
			quote := ch
			out.WriteByte(ch)
			i++
			for i < len(src) {
				out.WriteByte(src[i])
				if src[i] == '\\' && i+1 < len(src) {
					i++
					out.WriteByte(src[i])
					i++
					continue
				}
				if src[i] == quote {
					i++
					break
				}
				i++
			}
		default:
			out.WriteByte(ch)
			i++
		}
	}
	return out.String()
}
