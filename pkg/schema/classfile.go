package schema

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Class-file access flags relevant to field selection.
const (
	accStatic    = 0x0008
	accTransient = 0x0080
	accSynthetic = 0x1000
)

const classMagic = 0xCAFEBABE

// ClassFile is the parse result of one compiled class file.
type ClassFile struct {
	Path    string
	Class   *ClassDef
	// Referenced lists class names this file references through its
	// constant pool; detection treats them like imports.
	Referenced []string
	// InnerNames lists simple names of inner classes declared by the
	// InnerClasses attribute, to be loaded from sibling files.
	InnerNames []string
}

// ParseClassFile parses a compiled class file. Inner classes named by the
// InnerClasses attribute are loaded from sibling .class files when present.
func ParseClassFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	cf, err := parseClassBytes(data)
	if err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	cf.Path = path

	dir := filepath.Dir(path)
	for _, inner := range cf.InnerNames {
		sibling := filepath.Join(dir, cf.Class.Name+"$"+inner+".class")
		if _, serr := os.Stat(sibling); serr != nil {
			continue
		}
		in, ierr := ParseClassFile(sibling)
		if ierr != nil {
			return nil, ierr
		}
		cf.Class.Inner = append(cf.Class.Inner, in.Class)
		cf.Referenced = append(cf.Referenced, in.Referenced...)
	}
	return cf, nil
}

// classReader is a cursor over class-file bytes. All multi-byte quantities
// in the class-file format are big-endian.
type classReader struct {
	data []byte
	pos  int
}

func (r *classReader) u1() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("truncated class file at %d", r.pos)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *classReader) u2() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("truncated class file at %d", r.pos)
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *classReader) u4() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("truncated class file at %d", r.pos)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *classReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("truncated class file at %d", r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// constPool holds the subset of the constant pool needed here: UTF-8 text,
// integers, and class name references.
type constPool struct {
	utf8    map[uint16]string
	ints    map[uint16]int32
	classes map[uint16]uint16 // class entry -> name entry
}

func parseClassBytes(data []byte) (*ClassFile, error) {
	r := &classReader{data: data}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != classMagic {
		return nil, fmt.Errorf("bad class file magic 0x%08X", magic)
	}
	if _, err := r.u4(); err != nil { // minor + major version
		return nil, err
	}

	pool, err := parseConstantPool(r)
	if err != nil {
		return nil, err
	}

	if _, err := r.u2(); err != nil { // access flags
		return nil, err
	}
	thisClass, err := r.u2()
	if err != nil {
		return nil, err
	}
	superClass, err := r.u2()
	if err != nil {
		return nil, err
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(ifaceCount); i++ {
		if _, err := r.u2(); err != nil {
			return nil, err
		}
	}

	binaryName := pool.className(thisClass)
	pkg, simple := splitBinaryName(binaryName)
	c := &ClassDef{Name: simple, Package: pkg}
	if superClass != 0 {
		if _, superSimple := splitBinaryName(pool.className(superClass)); superSimple != "Object" {
			c.Extends = superSimple
		}
	}

	// Field table.
	fieldCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(fieldCount); i++ {
		f, keep, err := parseFieldInfo(r, pool)
		if err != nil {
			return nil, err
		}
		if keep {
			c.Fields = append(c.Fields, f)
		}
	}

	// Method table, skipped wholesale.
	methodCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(methodCount); i++ {
		if _, err := r.u2(); err != nil { // access
			return nil, err
		}
		if _, err := r.u2(); err != nil { // name
			return nil, err
		}
		if _, err := r.u2(); err != nil { // descriptor
			return nil, err
		}
		if err := skipAttributes(r); err != nil {
			return nil, err
		}
	}

	cf := &ClassFile{Class: c}

	// Class attributes: InnerClasses and class-level annotations.
	attrCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(attrCount); i++ {
		name, body, err := readAttribute(r, pool)
		if err != nil {
			return nil, err
		}
		switch name {
		case "InnerClasses":
			cf.InnerNames = parseInnerClasses(body, pool, binaryName)
		case "RuntimeVisibleAnnotations":
			anns := parseAnnotations(body, pool)
			for _, a := range anns {
				if a.name == "SbeMessage" {
					c.TemplateID = a.ints["templateId"]
				}
			}
		}
	}

	for _, nameIdx := range pool.classes {
		ref := pool.utf8[nameIdx]
		if ref != "" && ref != binaryName {
			cf.Referenced = append(cf.Referenced, strings.ReplaceAll(ref, "/", "."))
		}
	}

	return cf, nil
}

func parseConstantPool(r *classReader) (*constPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	pool := &constPool{
		utf8:    make(map[uint16]string),
		ints:    make(map[uint16]int32),
		classes: make(map[uint16]uint16),
	}
	for i := uint16(1); i < count; i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 1: // Utf8
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			pool.utf8[i] = string(b)
		case 3: // Integer
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			pool.ints[i] = int32(v)
		case 4: // Float
			if _, err := r.u4(); err != nil {
				return nil, err
			}
		case 5, 6: // Long, Double occupy two pool slots
			if _, err := r.bytes(8); err != nil {
				return nil, err
			}
			i++
		case 7: // Class
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			pool.classes[i] = n
		case 8, 16, 19, 20: // String, MethodType, Module, Package
			if _, err := r.u2(); err != nil {
				return nil, err
			}
		case 9, 10, 11, 12, 17, 18: // refs, NameAndType, Dynamic
			if _, err := r.bytes(4); err != nil {
				return nil, err
			}
		case 15: // MethodHandle
			if _, err := r.bytes(3); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d", tag)
		}
	}
	return pool, nil
}

func (p *constPool) className(idx uint16) string {
	return p.utf8[p.classes[idx]]
}

func parseFieldInfo(r *classReader, pool *constPool) (FieldDef, bool, error) {
	access, err := r.u2()
	if err != nil {
		return FieldDef{}, false, err
	}
	nameIdx, err := r.u2()
	if err != nil {
		return FieldDef{}, false, err
	}
	descIdx, err := r.u2()
	if err != nil {
		return FieldDef{}, false, err
	}

	f := FieldDef{
		Name:         pool.utf8[nameIdx],
		DeclaredType: descriptorToType(pool.utf8[descIdx]),
		Offset:       -1,
	}

	attrCount, err := r.u2()
	if err != nil {
		return FieldDef{}, false, err
	}
	for i := 0; i < int(attrCount); i++ {
		name, body, err := readAttribute(r, pool)
		if err != nil {
			return FieldDef{}, false, err
		}
		if name != "RuntimeVisibleAnnotations" {
			continue
		}
		for _, a := range parseAnnotations(body, pool) {
			f.Annotations = append(f.Annotations, a.name)
			switch a.name {
			case "XField":
				f.ID = a.ints["id"]
			case "SbeField":
				if v, ok := a.ints["offset"]; ok {
					f.Offset = v
				}
				if v, ok := a.ints["length"]; ok {
					f.Length = v
				}
			}
		}
	}

	if access&(accStatic|accTransient|accSynthetic) != 0 {
		return FieldDef{}, false, nil
	}
	return f, true, nil
}

func readAttribute(r *classReader, pool *constPool) (string, []byte, error) {
	nameIdx, err := r.u2()
	if err != nil {
		return "", nil, err
	}
	length, err := r.u4()
	if err != nil {
		return "", nil, err
	}
	body, err := r.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	return pool.utf8[nameIdx], body, nil
}

func skipAttributes(r *classReader) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := r.u2(); err != nil {
			return err
		}
		length, err := r.u4()
		if err != nil {
			return err
		}
		if _, err := r.bytes(int(length)); err != nil {
			return err
		}
	}
	return nil
}

// annotation is a parsed runtime-visible annotation: its simple name and
// any integer-valued elements.
type annotation struct {
	name string
	ints map[string]int
}

func parseAnnotations(body []byte, pool *constPool) []annotation {
	r := &classReader{data: body}
	count, err := r.u2()
	if err != nil {
		return nil
	}
	var out []annotation
	for i := 0; i < int(count); i++ {
		a, err := parseAnnotation(r, pool)
		if err != nil {
			return out
		}
		out = append(out, a)
	}
	return out
}

func parseAnnotation(r *classReader, pool *constPool) (annotation, error) {
	typeIdx, err := r.u2()
	if err != nil {
		return annotation{}, err
	}
	a := annotation{name: annotationSimpleName(pool.utf8[typeIdx]), ints: make(map[string]int)}

	pairs, err := r.u2()
	if err != nil {
		return annotation{}, err
	}
	for i := 0; i < int(pairs); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return annotation{}, err
		}
		v, ok, err := parseElementValue(r, pool)
		if err != nil {
			return annotation{}, err
		}
		if ok {
			a.ints[pool.utf8[nameIdx]] = v
		}
	}
	return a, nil
}

// parseElementValue consumes one element_value, returning its integer value
// when it holds one.
func parseElementValue(r *classReader, pool *constPool) (int, bool, error) {
	tag, err := r.u1()
	if err != nil {
		return 0, false, err
	}
	switch tag {
	case 'B', 'C', 'I', 'S', 'Z':
		idx, err := r.u2()
		if err != nil {
			return 0, false, err
		}
		return int(pool.ints[idx]), true, nil
	case 'D', 'F', 'J', 's', 'c':
		_, err := r.u2()
		return 0, false, err
	case 'e':
		if _, err := r.bytes(4); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	case '@':
		_, err := parseAnnotation(r, pool)
		return 0, false, err
	case '[':
		n, err := r.u2()
		if err != nil {
			return 0, false, err
		}
		for i := 0; i < int(n); i++ {
			if _, _, err := parseElementValue(r, pool); err != nil {
				return 0, false, err
			}
		}
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("unknown element value tag %q", tag)
}

func parseInnerClasses(body []byte, pool *constPool, outerBinary string) []string {
	r := &classReader{data: body}
	count, err := r.u2()
	if err != nil {
		return nil
	}
	var names []string
	for i := 0; i < int(count); i++ {
		if _, err := r.u2(); err != nil { // inner class info index
			return names
		}
		outerIdx, err := r.u2()
		if err != nil {
			return names
		}
		nameIdx, err := r.u2()
		if err != nil {
			return names
		}
		if _, err := r.u2(); err != nil { // access flags
			return names
		}
		if pool.className(outerIdx) != outerBinary {
			continue
		}
		if name := pool.utf8[nameIdx]; name != "" {
			names = append(names, name)
		}
	}
	return names
}

// annotationSimpleName turns "Lcom/acme/XField;" into "XField".
func annotationSimpleName(descriptor string) string {
	s := strings.TrimSuffix(strings.TrimPrefix(descriptor, "L"), ";")
	if i := strings.LastIndexAny(s, "/."); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func splitBinaryName(binaryName string) (pkg, simple string) {
	s := strings.ReplaceAll(binaryName, "/", ".")
	if i := strings.LastIndex(s, "."); i >= 0 {
		pkg, s = s[:i], s[i+1:]
	}
	// Nested classes use Outer$Inner; the schema keys on the inner name.
	if j := strings.LastIndex(s, "$"); j >= 0 {
		s = s[j+1:]
	}
	return pkg, s
}

// descriptorToType maps a JVM field descriptor to the declared type name
// used by the schema decoders.
func descriptorToType(desc string) string {
	switch {
	case desc == "B":
		return "byte"
	case desc == "C":
		return "char"
	case desc == "D":
		return "double"
	case desc == "F":
		return "float"
	case desc == "I":
		return "int"
	case desc == "J":
		return "long"
	case desc == "S":
		return "short"
	case desc == "Z":
		return "boolean"
	case desc == "[B":
		return "byte[]"
	case strings.HasPrefix(desc, "L"):
		_, simple := splitBinaryName(strings.TrimSuffix(strings.TrimPrefix(desc, "L"), ";"))
		return simple
	case strings.HasPrefix(desc, "["):
		return descriptorToType(desc[1:]) + "[]"
	}
	return desc
}
