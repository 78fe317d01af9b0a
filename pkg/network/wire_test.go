package network

import (
	"testing"

	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

type stringCodec struct{}

func (stringCodec) Encode(payload any) []byte { return []byte(payload.(string)) }
func (stringCodec) Decode(data []byte) (any, error) { return string(data), nil }

func TestEncodeDecodeElementRoundTrip(t *testing.T) {
	cases := []streaming.Element{
		streaming.Item("hello"),
		streaming.Timestamped("world", 42),
		streaming.Watermark(-7),
		streaming.FlushBatch(),
		streaming.FlushAndRestart(),
		streaming.Terminate(),
	}
	for _, e := range cases {
		b := EncodeElement(e, stringCodec{})
		got, err := DecodeElement(b, stringCodec{})
		if err != nil {
			t.Fatalf("decode %v: %v", e, err)
		}
		if got.Kind != e.Kind {
			t.Fatalf("kind mismatch: want %v got %v", e.Kind, got.Kind)
		}
		if e.Kind == streaming.KindTimestamped || e.Kind == streaming.KindWatermark {
			if got.Timestamp != e.Timestamp {
				t.Fatalf("timestamp mismatch: want %d got %d", e.Timestamp, got.Timestamp)
			}
		}
		if e.IsPayload() && got.Payload != e.Payload {
			t.Fatalf("payload mismatch: want %v got %v", e.Payload, got.Payload)
		}
	}
}

func TestLocalChannelSendReceive(t *testing.T) {
	ch := NewLocalChannel(2)
	if err := ch.Send(streaming.Item(1)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := ch.TrySend(streaming.Item(2)); err != nil {
		t.Fatalf("try send: %v", err)
	}
	if err := ch.TrySend(streaming.Item(3)); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	e, err := ch.Receive()
	if err != nil || e.Payload != 1 {
		t.Fatalf("unexpected receive: %v %v", e, err)
	}
	ch.Close()
	// second queued item drains before ErrClosed
	e, err = ch.Receive()
	if err != nil || e.Payload != 2 {
		t.Fatalf("expected queued item 2 after Close, got %v %v", e, err)
	}
	if _, err := ch.Receive(); err != ErrClosed {
		t.Fatalf("expected ErrClosed once drained, got %v", err)
	}
}
