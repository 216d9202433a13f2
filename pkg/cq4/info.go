package cq4

import (
	"encoding/binary"
	"os"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/wire"
)

// QueueInfo describes a queue file as declared by its header excerpt,
// optionally enriched from a companion .cq4t metadata file.
type QueueInfo struct {
	StartIndex   int64
	RollCycle    string
	Epoch        int64
	SourceID     int64
	IndexCount   int64
	IndexSpacing int64
}

// parseHeaderDoc extracts queue info from the header excerpt's wire
// document. The document must carry a "header" field holding a nested
// block; anything else fails the signature check.
func parseHeaderDoc(payload []byte) (QueueInfo, error) {
	var info QueueInfo

	doc, err := wire.ReadDocument(payload)
	if err != nil {
		return info, ErrUnreadableHeader
	}
	f, ok := doc.Get("header")
	if !ok {
		return info, ErrUnreadableHeader
	}
	nested, ok := f.Value.(message.Nested)
	if !ok || nested.Msg == nil {
		return info, ErrUnreadableHeader
	}

	info.StartIndex = intField(nested.Msg, "index")
	info.Epoch = intField(nested.Msg, "epoch")
	info.SourceID = intField(nested.Msg, "sourceId")
	info.IndexCount = intField(nested.Msg, "indexCount")
	info.IndexSpacing = intField(nested.Msg, "indexSpacing")
	if rc, ok := nested.Msg.Get("rollCycle"); ok {
		if s, ok := rc.Value.(message.Text); ok {
			info.RollCycle = string(s)
		}
	}
	return info, nil
}

// enrichFromMetadataFile merges fields from a companion .cq4t file into
// info. The companion is optional and parse failures are ignored.
func (info *QueueInfo) enrichFromMetadataFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) < 4 {
		return
	}
	word := binary.LittleEndian.Uint32(data)
	if word&headerReady == 0 || word&headerMetadata == 0 {
		return
	}
	length := int(word & headerLenMask)
	if 4+length > len(data) {
		return
	}
	meta, err := parseHeaderDoc(data[4 : 4+length])
	if err != nil {
		return
	}
	if meta.RollCycle != "" {
		info.RollCycle = meta.RollCycle
	}
	if meta.IndexCount != 0 {
		info.IndexCount = meta.IndexCount
	}
	if meta.IndexSpacing != 0 {
		info.IndexSpacing = meta.IndexSpacing
	}
	if meta.Epoch != 0 {
		info.Epoch = meta.Epoch
	}
}

func intField(m *message.Message, name string) int64 {
	f, ok := m.Get(name)
	if !ok {
		return 0
	}
	switch v := f.Value.(type) {
	case message.Int64:
		return int64(v)
	case message.UInt64:
		return int64(v)
	}
	return 0
}
