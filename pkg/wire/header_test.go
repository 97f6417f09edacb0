package wire

import (
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		typ FrameType
		seq uint32
	}{
		{User, 0},
		{User, 1},
		{Ack, 0},
		{Ack, 4294967295},
		{User, 123456789},
	}

	for _, c := range cases {
		frame := AppendHeader(nil, c.typ, c.seq, []byte("payload"))

		gotType, gotSeq, payload, err := DecodeHeader(frame)
		if err != nil {
			t.Fatalf("DecodeHeader(%v, %d): unexpected error: %v", c.typ, c.seq, err)
		}
		if gotType != c.typ {
			t.Errorf("type: expected %v, got %v", c.typ, gotType)
		}
		if gotSeq != c.seq {
			t.Errorf("sequence: expected %d, got %d", c.seq, gotSeq)
		}
		if string(payload) != "payload" {
			t.Errorf("payload: expected %q, got %q", "payload", payload)
		}
	}
}

func TestDecodeHeaderShortFrame(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		_, _, _, err := DecodeHeader(make([]byte, n))
		if err != ErrShortFrame {
			t.Errorf("len=%d: expected ErrShortFrame, got %v", n, err)
		}
	}
}

func TestDecodeHeaderUnknownType(t *testing.T) {
	hdr := EncodeHeader(User, 1)
	// Force the type nibble to an unused value (not 0/USER, not 1/ACK).
	hdr[0] = (0x0F << 4) | ProtocolVersion

	_, _, _, err := DecodeHeader(hdr[:])
	if err == nil {
		t.Fatal("expected an error for an unknown frame type")
	}
}

func TestAckFrameHasNoPayload(t *testing.T) {
	frame := AppendHeader(nil, Ack, 42, nil)
	if len(frame) != HeaderSize {
		t.Errorf("expected ACK frame to be exactly %d bytes, got %d", HeaderSize, len(frame))
	}
}

func TestEncodeHeaderPacksVersionAndType(t *testing.T) {
	hdr := EncodeHeader(Ack, 0)
	if hdr[0]>>4 != byte(Ack) {
		t.Errorf("expected type nibble %d, got %d", Ack, hdr[0]>>4)
	}
	if hdr[0]&0x0F != ProtocolVersion {
		t.Errorf("expected version nibble %d, got %d", ProtocolVersion, hdr[0]&0x0F)
	}
}
