package schema

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// classFileBuilder assembles minimal class files for tests.
type classFileBuilder struct {
	pool     []byte
	poolLen  uint16
	thisIdx  uint16
	superIdx uint16
	fields   []byte
	nfields  uint16
	attrs    []byte
	nattrs   uint16
}

func newClassFileBuilder(binaryName string) *classFileBuilder {
	b := &classFileBuilder{}
	b.thisIdx = b.class(binaryName)
	b.superIdx = b.class("java/lang/Object")
	return b
}

func (b *classFileBuilder) utf8(s string) uint16 {
	b.pool = append(b.pool, 1)
	b.pool = binary.BigEndian.AppendUint16(b.pool, uint16(len(s)))
	b.pool = append(b.pool, s...)
	b.poolLen++
	return b.poolLen
}

func (b *classFileBuilder) integer(v int32) uint16 {
	b.pool = append(b.pool, 3)
	b.pool = binary.BigEndian.AppendUint32(b.pool, uint32(v))
	b.poolLen++
	return b.poolLen
}

func (b *classFileBuilder) class(binaryName string) uint16 {
	nameIdx := b.utf8(binaryName)
	b.pool = append(b.pool, 7)
	b.pool = binary.BigEndian.AppendUint16(b.pool, nameIdx)
	b.poolLen++
	return b.poolLen
}

// annotationBytes encodes a RuntimeVisibleAnnotations attribute body with a
// single annotation carrying integer elements.
func (b *classFileBuilder) annotationBytes(descriptor string, elems map[string]int32) []byte {
	typeIdx := b.utf8(descriptor)
	body := binary.BigEndian.AppendUint16(nil, 1) // one annotation
	body = binary.BigEndian.AppendUint16(body, typeIdx)
	body = binary.BigEndian.AppendUint16(body, uint16(len(elems)))
	for name, v := range elems {
		nameIdx := b.utf8(name)
		constIdx := b.integer(v)
		body = binary.BigEndian.AppendUint16(body, nameIdx)
		body = append(body, 'I')
		body = binary.BigEndian.AppendUint16(body, constIdx)
	}
	return body
}

func (b *classFileBuilder) addField(access uint16, name, descriptor string, annBody []byte) {
	nameIdx := b.utf8(name)
	descIdx := b.utf8(descriptor)
	b.fields = binary.BigEndian.AppendUint16(b.fields, access)
	b.fields = binary.BigEndian.AppendUint16(b.fields, nameIdx)
	b.fields = binary.BigEndian.AppendUint16(b.fields, descIdx)
	if annBody == nil {
		b.fields = binary.BigEndian.AppendUint16(b.fields, 0)
	} else {
		attrName := b.utf8("RuntimeVisibleAnnotations")
		b.fields = binary.BigEndian.AppendUint16(b.fields, 1)
		b.fields = binary.BigEndian.AppendUint16(b.fields, attrName)
		b.fields = binary.BigEndian.AppendUint32(b.fields, uint32(len(annBody)))
		b.fields = append(b.fields, annBody...)
	}
	b.nfields++
}

func (b *classFileBuilder) addClassAttr(name string, body []byte) {
	nameIdx := b.utf8(name)
	b.attrs = binary.BigEndian.AppendUint16(b.attrs, nameIdx)
	b.attrs = binary.BigEndian.AppendUint32(b.attrs, uint32(len(body)))
	b.attrs = append(b.attrs, body...)
	b.nattrs++
}

// innerClassesBytes encodes an InnerClasses attribute body declaring one
// inner class of outer.
func (b *classFileBuilder) innerClassesBytes(innerBinary, outerBinary, simpleName string) []byte {
	innerIdx := b.class(innerBinary)
	outerIdx := b.class(outerBinary)
	nameIdx := b.utf8(simpleName)
	body := binary.BigEndian.AppendUint16(nil, 1)
	body = binary.BigEndian.AppendUint16(body, innerIdx)
	body = binary.BigEndian.AppendUint16(body, outerIdx)
	body = binary.BigEndian.AppendUint16(body, nameIdx)
	body = binary.BigEndian.AppendUint16(body, 0)
	return body
}

func (b *classFileBuilder) bytes() []byte {
	out := binary.BigEndian.AppendUint32(nil, classMagic)
	out = binary.BigEndian.AppendUint32(out, 0x0034) // minor 0, major 52
	out = binary.BigEndian.AppendUint16(out, b.poolLen+1)
	out = append(out, b.pool...)
	out = binary.BigEndian.AppendUint16(out, 0x0021) // ACC_PUBLIC | ACC_SUPER
	out = binary.BigEndian.AppendUint16(out, b.thisIdx)
	out = binary.BigEndian.AppendUint16(out, b.superIdx)
	out = binary.BigEndian.AppendUint16(out, 0) // interfaces
	out = binary.BigEndian.AppendUint16(out, b.nfields)
	out = append(out, b.fields...)
	out = binary.BigEndian.AppendUint16(out, 0) // methods
	out = binary.BigEndian.AppendUint16(out, b.nattrs)
	out = append(out, b.attrs...)
	return out
}

func TestParseClassBytes_FieldsAndModifiers(t *testing.T) {
	b := newClassFileBuilder("com/acme/Order")
	b.addField(0x0002, "orderId", "J", nil)
	b.addField(0x0002|accStatic, "COUNTER", "I", nil)
	b.addField(0x0002|accTransient, "scratch", "Ljava/lang/String;", nil)
	b.addField(0x0002|accSynthetic, "this$0", "Lcom/acme/Outer;", nil)
	b.addField(0x0002, "symbol", "Ljava/lang/String;", nil)
	b.addField(0x0002, "payload", "[B", nil)

	cf, err := parseClassBytes(b.bytes())
	require.NoError(t, err)

	c := cf.Class
	assert.Equal(t, "Order", c.Name)
	assert.Equal(t, "com.acme", c.Package)
	assert.Equal(t, "", c.Extends)

	require.Len(t, c.Fields, 3)
	assert.Equal(t, "orderId", c.Fields[0].Name)
	assert.Equal(t, "long", c.Fields[0].DeclaredType)
	assert.Equal(t, "symbol", c.Fields[1].Name)
	assert.Equal(t, "String", c.Fields[1].DeclaredType)
	assert.Equal(t, "payload", c.Fields[2].Name)
	assert.Equal(t, "byte[]", c.Fields[2].DeclaredType)
}

func TestParseClassBytes_FieldAnnotations(t *testing.T) {
	b := newClassFileBuilder("com/acme/Tick")
	idAnn := b.annotationBytes("Lcom/acme/XField;", map[string]int32{"id": 5})
	b.addField(0x0002, "qty", "I", idAnn)
	sbeAnn := b.annotationBytes("Lcom/acme/SbeField;", map[string]int32{"offset": 8})
	b.addField(0x0002, "ts", "J", sbeAnn)

	cf, err := parseClassBytes(b.bytes())
	require.NoError(t, err)

	require.Len(t, cf.Class.Fields, 2)
	assert.Equal(t, 5, cf.Class.Fields[0].ID)
	assert.Contains(t, cf.Class.Fields[0].Annotations, "XField")
	assert.Equal(t, 8, cf.Class.Fields[1].Offset)
}

func TestParseClassBytes_TemplateAnnotation(t *testing.T) {
	b := newClassFileBuilder("com/acme/Quote")
	b.addField(0x0002, "mid", "D", nil)
	b.addClassAttr("RuntimeVisibleAnnotations",
		b.annotationBytes("Lcom/acme/SbeMessage;", map[string]int32{"templateId": 7}))

	cf, err := parseClassBytes(b.bytes())
	require.NoError(t, err)
	assert.Equal(t, 7, cf.Class.TemplateID)
}

func TestParseClassBytes_ReferencedClasses(t *testing.T) {
	b := newClassFileBuilder("com/acme/Event")
	b.class("org/apache/thrift/TBase")
	b.addField(0x0002, "id", "J", nil)

	cf, err := parseClassBytes(b.bytes())
	require.NoError(t, err)
	assert.Contains(t, cf.Referenced, "org.apache.thrift.TBase")

	assert.Equal(t, EncodingCompactTagged, DetectEncoding(cf.Referenced, []*ClassDef{cf.Class}))
}

func TestParseClassBytes_BadMagic(t *testing.T) {
	_, err := parseClassBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestParseClassFile_InnerClasses(t *testing.T) {
	dir := t.TempDir()

	inner := newClassFileBuilder("com/acme/Trade$Leg")
	inner.addField(0x0002, "venue", "Ljava/lang/String;", nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Trade$Leg.class"), inner.bytes(), 0o600))

	outer := newClassFileBuilder("com/acme/Trade")
	outer.addField(0x0002, "tradeId", "J", nil)
	outer.addClassAttr("InnerClasses",
		outer.innerClassesBytes("com/acme/Trade$Leg", "com/acme/Trade", "Leg"))
	outerPath := filepath.Join(dir, "Trade.class")
	require.NoError(t, os.WriteFile(outerPath, outer.bytes(), 0o600))

	cf, err := ParseClassFile(outerPath)
	require.NoError(t, err)

	require.Len(t, cf.Class.Inner, 1)
	assert.Equal(t, "Leg", cf.Class.Inner[0].Name)
	assert.Equal(t, []string{"venue"}, fieldNames(cf.Class.Inner[0]))
}
