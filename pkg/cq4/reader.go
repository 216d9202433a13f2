// Package cq4 reads Chronicle Queue data files: a header excerpt followed by
// 4-byte-aligned, length-prefixed excerpts, accessed through a read-only
// memory mapping. The reader yields raw payload slices; decoding them is the
// concern of the wire and decode packages.
//
// Excerpt header word (little-endian):
//
//	bit 31    ready    0 = not yet written, iteration stops
//	bit 30    metadata 1 = queue bookkeeping, 0 = application data
//	bit 29    padding  1 = skip payload without emission
//	bits 0-28 payload length
package cq4

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hsterling/chronoview/pkg/message"
)

const (
	headerReady    = uint32(1) << 31
	headerMetadata = uint32(1) << 30
	headerPadding  = uint32(1) << 29
	headerLenMask  = uint32(1)<<29 - 1

	excerptAlign = 4
)

// SessionConfig holds configuration for a reader session.
type SessionConfig struct {
	// Strict makes non-zero alignment padding a format error.
	Strict bool
}

// Excerpt is one framed unit from the file. Payload is an owned copy and
// remains valid after the session closes.
type Excerpt struct {
	Index   int64
	Offset  int64
	Kind    message.Kind
	Payload []byte
}

// ReaderSession owns one memory mapping over a queue file and hands out
// iterators with independent cursors. Not safe for concurrent use.
type ReaderSession struct {
	path   string
	file   *os.File
	mmap   []byte
	info   QueueInfo
	config SessionConfig
	closed bool
}

// Open maps the queue file at path with default configuration.
func Open(path string) (*ReaderSession, error) {
	return OpenWithConfig(path, SessionConfig{})
}

// OpenWithConfig maps the queue file at path and verifies its header. The
// companion metadata file (path + "t"), when present, enriches the queue
// info; its absence is not an error.
func OpenWithConfig(path string, config SessionConfig) (*ReaderSession, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cq4: open %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("cq4: stat %s: %w", path, err)
	}
	if stat.Size() < 4 {
		file.Close()
		return nil, ErrUnreadableHeader
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("cq4: mmap %s: %w", path, err)
	}

	s := &ReaderSession{path: path, file: file, mmap: data, config: config}

	word := binary.LittleEndian.Uint32(s.mmap)
	length := int64(word & headerLenMask)
	if word&headerReady == 0 || word&headerMetadata == 0 || word&headerPadding != 0 ||
		length == 0 || 4+length > int64(len(s.mmap)) {
		s.Close()
		return nil, ErrUnreadableHeader
	}
	info, err := parseHeaderDoc(s.mmap[4 : 4+length])
	if err != nil {
		s.Close()
		return nil, err
	}
	info.enrichFromMetadataFile(path + "t")
	s.info = info

	return s, nil
}

// QueueInfo returns the parsed header information.
func (s *ReaderSession) QueueInfo() QueueInfo {
	return s.info
}

// Path returns the mapped file path.
func (s *ReaderSession) Path() string {
	return s.path
}

// Size returns the mapped file size in bytes.
func (s *ReaderSession) Size() int64 {
	return int64(len(s.mmap))
}

// Iter returns an iterator over the file's excerpts in file order. Data
// excerpts receive contiguous indices starting at the header's start index.
// Metadata excerpts are only yielded when includeMetadata is set and never
// advance the data index; padding excerpts are never yielded.
func (s *ReaderSession) Iter(includeMetadata bool) *Iterator {
	return &Iterator{session: s, includeMetadata: includeMetadata}
}

// ReadExcerptAt reads the single excerpt whose header begins at offset. The
// returned excerpt has no index; callers doing random access are expected to
// know it. Padding and not-ready markers at offset return nil.
func (s *ReaderSession) ReadExcerptAt(offset int64) (*Excerpt, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if offset < 0 || offset%excerptAlign != 0 {
		return nil, ErrMisalignedExcerpt
	}
	if offset+4 > int64(len(s.mmap)) {
		return nil, ErrTruncated
	}
	word := binary.LittleEndian.Uint32(s.mmap[offset:])
	if word&headerReady == 0 || word&headerPadding != 0 {
		return nil, nil
	}
	length := int64(word & headerLenMask)
	if offset+4+length > int64(len(s.mmap)) {
		return nil, ErrMisalignedExcerpt
	}
	return s.capture(offset, word, length, -1), nil
}

// Close unmaps the file and releases the descriptor. Iterators detect the
// closed session on their next call.
func (s *ReaderSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.mmap != nil {
		err = unix.Munmap(s.mmap)
		s.mmap = nil
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *ReaderSession) capture(offset int64, word uint32, length int64, index int64) *Excerpt {
	kind := message.Data
	if word&headerMetadata != 0 {
		kind = message.Metadata
	}
	payload := make([]byte, length)
	copy(payload, s.mmap[offset+4:offset+4+length])
	return &Excerpt{Index: index, Offset: offset, Kind: kind, Payload: payload}
}

// Iterator walks excerpts in file order. Usage follows the usual pattern:
//
//	it := session.Iter(false)
//	for it.Next() {
//	    ex := it.Excerpt()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	session         *ReaderSession
	includeMetadata bool
	offset          int64
	dataCount       int64
	cur             *Excerpt
	err             error
	done            bool
}

// Next advances to the next emitted excerpt. It returns false at the end of
// the readable region or on error.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	s := it.session

	for {
		if s.closed {
			it.err = ErrSessionClosed
			return false
		}
		if it.offset+4 > int64(len(s.mmap)) {
			it.done = true
			return false
		}

		word := binary.LittleEndian.Uint32(s.mmap[it.offset:])
		if word&headerReady == 0 {
			// Not yet written: the readable region ends here.
			it.done = true
			return false
		}

		length := int64(word & headerLenMask)
		next := it.offset + 4 + alignUp(length)
		if it.offset+4+length > int64(len(s.mmap)) {
			it.err = ErrMisalignedExcerpt
			return false
		}
		if next > int64(len(s.mmap)) {
			next = int64(len(s.mmap))
		}

		if s.config.Strict {
			for _, b := range s.mmap[it.offset+4+length : next] {
				if b != 0 {
					it.err = fmt.Errorf("%w at offset %d", ErrDirtyPadding, it.offset+4+length)
					return false
				}
			}
		}

		if word&headerPadding != 0 {
			it.offset = next
			continue
		}

		isMeta := word&headerMetadata != 0
		if isMeta && !it.includeMetadata {
			it.offset = next
			continue
		}

		index := s.info.StartIndex + it.dataCount
		it.cur = s.capture(it.offset, word, length, index)
		if !isMeta {
			it.dataCount++
		}
		it.offset = next
		return true
	}
}

// Excerpt returns the excerpt produced by the last successful Next.
func (it *Iterator) Excerpt() *Excerpt {
	return it.cur
}

// Err returns the error that terminated iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Offset returns the iterator's current file offset.
func (it *Iterator) Offset() int64 {
	return it.offset
}

func alignUp(n int64) int64 {
	return (n + excerptAlign - 1) &^ (excerptAlign - 1)
}
