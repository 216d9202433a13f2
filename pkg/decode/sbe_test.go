package decode

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/schema"
)

func sbeRegistry(t *testing.T) *schema.Registry {
	return makeRegistry(t, `
	public class Tick {
	    private int a;
	    private long b;
	    private String c;
	}
	`, schema.EncodingSBE)
}

func TestSBE_FixedLayout(t *testing.T) {
	payload := binary.LittleEndian.AppendUint32(nil, 7)
	payload = binary.LittleEndian.AppendUint64(payload, 123456789)
	payload = binary.LittleEndian.AppendUint16(payload, 5)
	payload = append(payload, "hello"...)

	d := NewSBEDecoder(sbeRegistry(t))
	msg, err := d.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "Tick", msg.TypeName)
	require.Len(t, msg.Fields, 3)
	assert.Equal(t, message.Int64(7), msg.Fields[0].Value)
	assert.Equal(t, message.Int64(123456789), msg.Fields[1].Value)
	assert.Equal(t, message.Text("hello"), msg.Fields[2].Value)
}

func TestSBE_PayloadTooShort(t *testing.T) {
	// Complete a and b, then a string length that overruns by one.
	payload := binary.LittleEndian.AppendUint32(nil, 7)
	payload = binary.LittleEndian.AppendUint64(payload, 1)
	payload = binary.LittleEndian.AppendUint16(payload, 6)
	payload = append(payload, "hello"...) // one byte short

	d := NewSBEDecoder(sbeRegistry(t))
	msg, err := d.Decode(payload)

	var short *PayloadTooShortError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "c", short.Field)
	// Fields before the failure are preserved.
	assert.Len(t, msg.Fields, 2)
}

func TestSBE_TemplateHeaderDispatch(t *testing.T) {
	reg := makeRegistry(t, `
	@SbeMessage(templateId = 7)
	public class ClassX {
	    private int a;
	}
	`, schema.EncodingSBE)

	// Header: blockLength=8, templateId=7, schemaId=0, version=0.
	payload := binary.LittleEndian.AppendUint16(nil, 8)
	payload = binary.LittleEndian.AppendUint16(payload, 7)
	payload = binary.LittleEndian.AppendUint16(payload, 0)
	payload = binary.LittleEndian.AppendUint16(payload, 0)
	// Body: bytes 07 00 00 0A read as int32 LE.
	payload = append(payload, 0x07, 0x00, 0x00, 0x0A)

	d := NewSBEDecoder(reg)
	msg, err := d.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "ClassX", msg.TypeName)
	require.Len(t, msg.Fields, 1)
	assert.Equal(t, message.Int64(167772167), msg.Fields[0].Value)
}

func TestSBE_UnknownTemplate(t *testing.T) {
	reg := makeRegistry(t, `
	@SbeMessage(templateId = 7)
	public class ClassX {
	    private int a;
	}
	`, schema.EncodingSBE)

	payload := binary.LittleEndian.AppendUint16(nil, 8)
	payload = binary.LittleEndian.AppendUint16(payload, 9) // no such template
	payload = append(payload, 0, 0, 0, 0)

	d := NewSBEDecoder(reg)
	_, err := d.Decode(payload)

	var unknown *UnknownTemplateError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 9, unknown.ID)
}

func TestSBE_ExplicitOffsets(t *testing.T) {
	reg := makeRegistry(t, `
	public class Padded {
	    @SbeField(offset = 0, length = 8) private long ts;
	    @SbeField(offset = 12) private int qty;
	}
	`, schema.EncodingSBE)

	payload := binary.LittleEndian.AppendUint64(nil, 99)
	payload = append(payload, 0, 0, 0, 0) // 4 bytes of padding at offset 8
	payload = binary.LittleEndian.AppendUint32(payload, 5)

	d := NewSBEDecoder(reg)
	msg, err := d.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, message.Int64(99), msg.Fields[0].Value)
	assert.Equal(t, message.Int64(5), msg.Fields[1].Value)
}

func TestSBE_FixedLengthString(t *testing.T) {
	reg := makeRegistry(t, `
	public class Sym {
	    @SbeField(offset = 0, length = 8) private String symbol;
	    private int qty;
	}
	`, schema.EncodingSBE)

	payload := append([]byte("EURUSD"), 0, 0) // NUL-padded to 8
	payload = binary.LittleEndian.AppendUint32(payload, 3)

	d := NewSBEDecoder(reg)
	msg, err := d.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, message.Text("EURUSD"), msg.Fields[0].Value)
	assert.Equal(t, message.Int64(3), msg.Fields[1].Value)
}

func TestSBE_InvalidUTF8(t *testing.T) {
	reg := makeRegistry(t, `
	public class S {
	    private String s;
	}
	`, schema.EncodingSBE)

	payload := binary.LittleEndian.AppendUint16(nil, 2)
	payload = append(payload, 0xFF, 0xFE)

	d := NewSBEDecoder(reg)
	_, err := d.Decode(payload)

	var bad *InvalidUTF8Error
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "s", bad.Field)
}
