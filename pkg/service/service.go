// Package service loads, caches, and queries decoded queue messages on
// behalf of the CLI, export, and HTTP surfaces.
package service

import (
	"fmt"
	"strings"

	"github.com/hsterling/chronoview/pkg/cq4"
	"github.com/hsterling/chronoview/pkg/decode"
	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/schema"
)

// Config holds configuration for a message service.
type Config struct {
	// QueuePath is the .cq4 file to open.
	QueuePath string
	// IncludeMetadata yields metadata excerpts alongside data.
	IncludeMetadata bool
	// Strict aborts loading on the first decode error.
	Strict bool
	// MaxDepth bounds self-describing nesting. Zero means the default.
	MaxDepth int
	// Override forces one decoder for every payload.
	Override schema.Encoding
	// CacheDir enables the persistent offset cache when non-empty.
	CacheDir string
}

// Stats summarizes a loaded queue.
type Stats struct {
	Count        int
	ByType       map[string]int
	DecodeErrors int
	Warnings     int
}

// Service owns one reader session and the decoded messages from it.
type Service struct {
	session    *cq4.ReaderSession
	dispatcher *decode.Dispatcher
	config     Config
	cache      *offsetCache
	messages   []*message.Message
	loaded     bool
	closed     bool
}

// New opens the queue file and prepares a dispatcher over the registry. The
// registry may be nil for self-describing queues.
func New(registry *schema.Registry, config Config) (*Service, error) {
	dispatcher, err := decode.NewDispatcher(registry, decode.Config{
		Override: config.Override,
		Strict:   config.Strict,
		MaxDepth: config.MaxDepth,
	})
	if err != nil {
		return nil, err
	}

	session, err := cq4.OpenWithConfig(config.QueuePath, cq4.SessionConfig{Strict: config.Strict})
	if err != nil {
		return nil, err
	}

	s := &Service{session: session, dispatcher: dispatcher, config: config}
	if config.CacheDir != "" {
		cache, err := openOffsetCache(config.CacheDir)
		if err != nil {
			session.Close()
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Load decodes every excerpt into memory. In strict mode the first decode
// error aborts; otherwise failures ride along on their messages.
func (s *Service) Load() error {
	if s.loaded {
		return nil
	}

	it := s.session.Iter(s.config.IncludeMetadata)
	for it.Next() {
		ex := it.Excerpt()
		msg, err := s.dispatcher.Decode(ex)
		if err != nil {
			return err
		}
		s.messages = append(s.messages, msg)
		if s.cache != nil && msg.Kind == message.Data {
			if err := s.cache.put(s.session.Path(), s.session.Size(), msg.Index, msg.Offset); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.flush(); err != nil {
			return err
		}
	}
	s.loaded = true
	return nil
}

// QueueInfo returns header information for the open queue.
func (s *Service) QueueInfo() cq4.QueueInfo {
	return s.session.QueueInfo()
}

// Count returns the number of loaded messages.
func (s *Service) Count() int {
	return len(s.messages)
}

// Messages returns all loaded messages in file order.
func (s *Service) Messages() []*message.Message {
	return s.messages
}

// Page returns up to limit messages starting at position start.
func (s *Service) Page(start, limit int) []*message.Message {
	if start < 0 || start >= len(s.messages) || limit <= 0 {
		return nil
	}
	end := start + limit
	if end > len(s.messages) {
		end = len(s.messages)
	}
	return s.messages[start:end]
}

// MessageAt returns the message with the given queue index. When the queue
// is not loaded but an offset cache is present, the excerpt is fetched by
// its cached offset instead of scanning.
func (s *Service) MessageAt(index int64) (*message.Message, error) {
	if s.loaded {
		for _, m := range s.messages {
			if m.Index == index && m.Kind == message.Data {
				return m, nil
			}
		}
		return nil, fmt.Errorf("service: no message with index %d", index)
	}

	if s.cache != nil {
		if offset, ok := s.cache.get(s.session.Path(), s.session.Size(), index); ok {
			ex, err := s.session.ReadExcerptAt(offset)
			if err == nil && ex != nil {
				ex.Index = index
				return s.dispatcher.Decode(ex)
			}
		}
	}

	if err := s.Load(); err != nil {
		return nil, err
	}
	return s.MessageAt(index)
}

// FilterByType returns messages whose type name contains the pattern,
// case-insensitively.
func (s *Service) FilterByType(pattern string) []*message.Message {
	pattern = strings.ToLower(pattern)
	var out []*message.Message
	for _, m := range s.messages {
		if strings.Contains(strings.ToLower(m.TypeName), pattern) {
			out = append(out, m)
		}
	}
	return out
}

// SearchText returns messages whose flattened representation contains the
// term, case-insensitively.
func (s *Service) SearchText(term string) []*message.Message {
	term = strings.ToLower(term)
	var out []*message.Message
	for _, m := range s.messages {
		_, row := m.Flatten()
		for _, v := range row {
			if strings.Contains(strings.ToLower(v), term) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// SearchField returns messages whose flattened field equals value. Dotted
// field paths address nested messages.
func (s *Service) SearchField(field, value string) []*message.Message {
	var out []*message.Message
	for _, m := range s.messages {
		_, row := m.Flatten()
		if v, ok := row[field]; ok && v == value {
			out = append(out, m)
		}
	}
	return out
}

// Stats summarizes the loaded messages.
func (s *Service) Stats() Stats {
	stats := Stats{ByType: make(map[string]int)}
	for _, m := range s.messages {
		stats.Count++
		name := m.TypeName
		if name == "" {
			name = "(untyped)"
		}
		stats.ByType[name]++
		if m.DecodeErr != nil {
			stats.DecodeErrors++
		}
		stats.Warnings += len(m.Warnings)
	}
	return stats
}

// Close releases the session and the cache. Loaded messages stay valid;
// they own their bytes.
func (s *Service) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.session.Close()
	if s.cache != nil {
		if cerr := s.cache.close(); err == nil {
			err = cerr
		}
	}
	return err
}
