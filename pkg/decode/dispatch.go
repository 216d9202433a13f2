package decode

import (
	"github.com/hsterling/chronoview/pkg/cq4"
	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/schema"
	"github.com/hsterling/chronoview/pkg/wire"
)

// Config holds dispatcher configuration.
type Config struct {
	// Override forces one decoder for every payload. EncodingAuto keeps
	// first-byte detection and the registry default active.
	Override schema.Encoding
	// Strict makes unknown type codes and unknown field ids fatal. In
	// non-strict mode decode failures are attached to the message with the
	// fields decoded so far preserved.
	Strict bool
	// MaxDepth bounds wire document nesting. Zero means the wire default.
	MaxDepth int
}

// Dispatcher selects a decoder per payload and normalizes the result into a
// Message stamped with the excerpt's index, offset, and kind.
type Dispatcher struct {
	registry *schema.Registry
	config   Config
}

// NewDispatcher creates a dispatcher. The registry may be nil when only
// self-describing payloads are expected; when present it must be frozen.
func NewDispatcher(registry *schema.Registry, config Config) (*Dispatcher, error) {
	if registry != nil && registry.Len() > 0 && !registry.Frozen() {
		return nil, schema.ErrNotFrozen
	}
	return &Dispatcher{registry: registry, config: config}, nil
}

// Decode converts one excerpt into a Message. In strict mode the decode
// error is returned; otherwise it is recorded on the message and iteration
// can continue.
func (d *Dispatcher) Decode(ex *cq4.Excerpt) (*message.Message, error) {
	msg, err := d.DecodePayload(ex.Payload)
	msg.Index = ex.Index
	msg.Offset = ex.Offset
	msg.Kind = ex.Kind
	if err != nil {
		if d.config.Strict {
			return msg, err
		}
		msg.DecodeErr = err
	}
	return msg, nil
}

// DecodePayload decodes a raw payload without excerpt framing context.
func (d *Dispatcher) DecodePayload(payload []byte) (*message.Message, error) {
	switch d.pick(payload) {
	case schema.EncodingSBE:
		if d.registry == nil {
			return &message.Message{}, ErrNoSchema
		}
		return NewSBEDecoder(d.registry).Decode(payload)
	case schema.EncodingCompactTagged:
		if d.registry == nil {
			return &message.Message{}, ErrNoSchema
		}
		return NewCompactDecoder(d.registry, d.config.Strict).Decode(payload)
	default:
		reader := wire.NewReader(payload, wire.ReaderConfig{MaxDepth: d.config.MaxDepth})
		return reader.ReadDocument()
	}
}

// pick chooses the encoding: an explicit override wins, then first-byte
// wire detection, then the registry default.
func (d *Dispatcher) pick(payload []byte) schema.Encoding {
	if d.config.Override != schema.EncodingAuto {
		return d.config.Override
	}
	if len(payload) > 0 && wire.IsDocumentStart(payload[0]) {
		return schema.EncodingSelfDescribing
	}
	if d.registry == nil || d.registry.Len() == 0 {
		return schema.EncodingSelfDescribing
	}
	return d.registry.Encoding()
}
