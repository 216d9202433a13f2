package cq4

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/wire"
)

// fileBuilder assembles queue files for tests: a header excerpt followed by
// framed, 4-byte-aligned excerpts.
type fileBuilder struct {
	t   *testing.T
	buf []byte
}

func newFileBuilder(t *testing.T) *fileBuilder {
	t.Helper()
	return &fileBuilder{t: t}
}

func (f *fileBuilder) appendRaw(word uint32, payload []byte) *fileBuilder {
	f.buf = binary.LittleEndian.AppendUint32(f.buf, word)
	f.buf = append(f.buf, payload...)
	for len(f.buf)%excerptAlign != 0 {
		f.buf = append(f.buf, 0)
	}
	return f
}

func (f *fileBuilder) appendExcerpt(meta bool, payload []byte) *fileBuilder {
	word := headerReady | uint32(len(payload))
	if meta {
		word |= headerMetadata
	}
	return f.appendRaw(word, payload)
}

func (f *fileBuilder) appendPadding(n int) *fileBuilder {
	return f.appendRaw(headerReady|headerPadding|uint32(n), make([]byte, n))
}

func (f *fileBuilder) appendHeader(startIndex int64, rollCycle string) *fileBuilder {
	doc := &message.Message{Fields: []message.Field{
		{Name: "header", Value: message.Nested{Msg: &message.Message{Fields: []message.Field{
			{Name: "index", Value: message.Int64(startIndex)},
			{Name: "rollCycle", Value: message.Text(rollCycle)},
			{Name: "epoch", Value: message.Int64(0)},
			{Name: "sourceId", Value: message.Int64(1)},
		}}}},
	}}
	payload, err := wire.AppendDocument(nil, doc)
	require.NoError(f.t, err)
	return f.appendExcerpt(true, payload)
}

func (f *fileBuilder) appendOrder(id int64) *fileBuilder {
	doc := &message.Message{TypeName: "Order", Fields: []message.Field{
		{Name: "id", Value: message.Int64(id)},
		{Name: "qty", Value: message.Int64(10)},
	}}
	payload, err := wire.AppendDocument(nil, doc)
	require.NoError(f.t, err)
	return f.appendExcerpt(false, payload)
}

func (f *fileBuilder) write() string {
	f.t.Helper()
	path := filepath.Join(f.t.TempDir(), "queue.cq4")
	require.NoError(f.t, os.WriteFile(path, f.buf, 0o600))
	return path
}

func collect(t *testing.T, it *Iterator) []*Excerpt {
	t.Helper()
	var out []*Excerpt
	for it.Next() {
		out = append(out, it.Excerpt())
	}
	require.NoError(t, it.Err())
	return out
}

func TestIter_DataExcerpts(t *testing.T) {
	path := newFileBuilder(t).
		appendHeader(100, "DAILY").
		appendOrder(1).
		appendOrder(2).
		appendOrder(3).
		write()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(100), s.QueueInfo().StartIndex)
	assert.Equal(t, "DAILY", s.QueueInfo().RollCycle)
	assert.Equal(t, int64(1), s.QueueInfo().SourceID)

	excerpts := collect(t, s.Iter(false))
	require.Len(t, excerpts, 3)

	for i, ex := range excerpts {
		assert.Equal(t, int64(100+i), ex.Index)
		assert.Equal(t, message.Data, ex.Kind)

		doc, err := wire.ReadDocument(ex.Payload)
		require.NoError(t, err)
		assert.Equal(t, "Order", doc.TypeName)
		require.Len(t, doc.Fields, 2)
		assert.Equal(t, message.Field{Name: "id", Value: message.Int64(int64(i + 1))}, doc.Fields[0])
		assert.Equal(t, message.Field{Name: "qty", Value: message.Int64(10)}, doc.Fields[1])
	}
}

func TestIter_PaddingDoesNotIncrementIndex(t *testing.T) {
	path := newFileBuilder(t).
		appendHeader(5, "HOURLY").
		appendOrder(1).
		appendPadding(12).
		appendOrder(2).
		write()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	excerpts := collect(t, s.Iter(false))
	require.Len(t, excerpts, 2)
	assert.Equal(t, int64(5), excerpts[0].Index)
	assert.Equal(t, int64(6), excerpts[1].Index)
}

func TestIter_ByteAccounting(t *testing.T) {
	path := newFileBuilder(t).
		appendHeader(0, "DAILY").
		appendOrder(1).
		appendPadding(8).
		appendOrder(2).
		write()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	it := s.Iter(true)
	var sum int64
	for it.Next() {
		ex := it.Excerpt()
		sum += 4 + alignUp(int64(len(ex.Payload)))
	}
	require.NoError(t, it.Err())

	// Emitted excerpts plus the padding excerpt cover the consumed range.
	sum += 4 + alignUp(8)
	assert.Equal(t, it.Offset(), sum)
	assert.Equal(t, s.Size(), sum)
}

func TestIter_MetadataOnRequest(t *testing.T) {
	path := newFileBuilder(t).
		appendHeader(0, "DAILY").
		appendOrder(1).
		write()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	defaultView := collect(t, s.Iter(false))
	require.Len(t, defaultView, 1)
	assert.Equal(t, message.Data, defaultView[0].Kind)

	withMeta := collect(t, s.Iter(true))
	require.Len(t, withMeta, 2)
	assert.Equal(t, message.Metadata, withMeta[0].Kind)
	assert.Equal(t, message.Data, withMeta[1].Kind)
	// The metadata excerpt borrows the next data index without advancing it.
	assert.Equal(t, int64(0), withMeta[0].Index)
	assert.Equal(t, int64(0), withMeta[1].Index)
}

func TestIter_StopsAtNotReady(t *testing.T) {
	b := newFileBuilder(t).
		appendHeader(0, "DAILY").
		appendOrder(1)
	// A not-yet-written excerpt: zero header word, then garbage that must
	// never be reached.
	b.buf = binary.LittleEndian.AppendUint32(b.buf, 0)
	b.buf = append(b.buf, 0xDE, 0xAD, 0xBE, 0xEF)
	path := b.write()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	excerpts := collect(t, s.Iter(false))
	assert.Len(t, excerpts, 1)
}

func TestIter_MisalignedExcerpt(t *testing.T) {
	b := newFileBuilder(t).appendHeader(0, "DAILY")
	// Claims 64 payload bytes but the file ends first.
	b.buf = binary.LittleEndian.AppendUint32(b.buf, headerReady|64)
	b.buf = append(b.buf, 1, 2, 3, 4)
	path := b.write()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	it := s.Iter(false)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrMisalignedExcerpt)
}

func TestIter_StrictDirtyPadding(t *testing.T) {
	b := newFileBuilder(t).appendHeader(0, "DAILY")
	// One data excerpt with 5 payload bytes; corrupt an alignment byte.
	b.buf = binary.LittleEndian.AppendUint32(b.buf, headerReady|5)
	b.buf = append(b.buf, 1, 2, 3, 4, 5, 0xFF, 0, 0)
	path := b.write()

	s, err := OpenWithConfig(path, SessionConfig{Strict: true})
	require.NoError(t, err)
	defer s.Close()

	it := s.Iter(false)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrDirtyPadding)

	// The same file iterates cleanly without strict mode.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Len(t, collect(t, s2.Iter(false)), 1)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.cq4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_BadSignature(t *testing.T) {
	// A data (non-metadata) first excerpt is not a queue header.
	b := newFileBuilder(t)
	b.appendExcerpt(false, []byte{1, 2, 3, 4})
	path := b.write()

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrUnreadableHeader)
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cq4")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrUnreadableHeader)
}

func TestClose_InvalidatesIterator(t *testing.T) {
	path := newFileBuilder(t).
		appendHeader(0, "DAILY").
		appendOrder(1).
		appendOrder(2).
		write()

	s, err := Open(path)
	require.NoError(t, err)

	it := s.Iter(false)
	require.True(t, it.Next())
	require.NoError(t, s.Close())

	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrSessionClosed)
}

func TestReadExcerptAt(t *testing.T) {
	path := newFileBuilder(t).
		appendHeader(0, "DAILY").
		appendOrder(7).
		write()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	it := s.Iter(false)
	require.True(t, it.Next())
	offset := it.Excerpt().Offset

	ex, err := s.ReadExcerptAt(offset)
	require.NoError(t, err)
	require.NotNil(t, ex)
	assert.Equal(t, it.Excerpt().Payload, ex.Payload)

	_, err = s.ReadExcerptAt(offset + 1)
	assert.ErrorIs(t, err, ErrMisalignedExcerpt)
}

func TestQueueInfo_MetadataFileEnrichment(t *testing.T) {
	path := newFileBuilder(t).
		appendHeader(0, "").
		appendOrder(1).
		write()

	// Companion .cq4t: one metadata excerpt carrying roll cycle details.
	metaDoc := &message.Message{Fields: []message.Field{
		{Name: "header", Value: message.Nested{Msg: &message.Message{Fields: []message.Field{
			{Name: "rollCycle", Value: message.Text("FAST_DAILY")},
			{Name: "indexCount", Value: message.Int64(32)},
			{Name: "indexSpacing", Value: message.Int64(4)},
		}}}},
	}}
	payload, err := wire.AppendDocument(nil, metaDoc)
	require.NoError(t, err)
	metaBuf := binary.LittleEndian.AppendUint32(nil, headerReady|headerMetadata|uint32(len(payload)))
	metaBuf = append(metaBuf, payload...)
	require.NoError(t, os.WriteFile(path+"t", metaBuf, 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	info := s.QueueInfo()
	assert.Equal(t, "FAST_DAILY", info.RollCycle)
	assert.Equal(t, int64(32), info.IndexCount)
	assert.Equal(t, int64(4), info.IndexSpacing)
}
