package network

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

// Wire field numbers for the StreamElement envelope. The envelope is kept
// deliberately small and hand-encoded with protowire rather than a
// generated message type: a full .proto/.pb.go pair buys nothing here
// since every field is either a varint or one opaque length-delimited
// blob (the row payload), and protowire is the documented low-level API
// for exactly that case (mirrors the teacher's dynamicpb usage in
// pkg/stream/io.go, which also builds wire bytes without a fixed
// generated schema).
const (
	fieldKind      = protowire.Number(1)
	fieldTimestamp = protowire.Number(2)
	fieldPayload   = protowire.Number(3)
)

// PayloadCodec converts an element's payload to and from the opaque bytes
// carried in field 3 of the wire envelope. The caller supplies the codec;
// network stays agnostic of the payload type, so this package has no
// dependency on scalar.
type PayloadCodec interface {
	Encode(payload any) []byte
	Decode(data []byte) (any, error)
}

// EncodeElement serializes e as a protobuf-wire-compatible byte string.
func EncodeElement(e streaming.Element, codec PayloadCodec) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))
	if e.Kind == streaming.KindTimestamped || e.Kind == streaming.KindWatermark {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(e.Timestamp))
	}
	if e.IsPayload() && codec != nil {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, codec.Encode(e.Payload))
	}
	return b
}

// DecodeElement parses the bytes produced by EncodeElement.
func DecodeElement(data []byte, codec PayloadCodec) (streaming.Element, error) {
	var e streaming.Element
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return streaming.Element{}, fmt.Errorf("network: malformed envelope tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldKind:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return streaming.Element{}, fmt.Errorf("network: malformed kind field: %w", protowire.ParseError(m))
			}
			e.Kind = streaming.ElementKind(v)
			data = data[m:]
		case fieldTimestamp:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return streaming.Element{}, fmt.Errorf("network: malformed timestamp field: %w", protowire.ParseError(m))
			}
			e.Timestamp = protowire.DecodeZigZag(v)
			data = data[m:]
		case fieldPayload:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return streaming.Element{}, fmt.Errorf("network: malformed payload field: %w", protowire.ParseError(m))
			}
			if codec != nil {
				payload, err := codec.Decode(v)
				if err != nil {
					return streaming.Element{}, fmt.Errorf("network: decode payload: %w", err)
				}
				e.Payload = payload
			}
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return streaming.Element{}, fmt.Errorf("network: malformed unknown field: %w", protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return e, nil
}
