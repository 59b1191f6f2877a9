package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeCall,
		Seq:       12345,
	}
	body := []byte(`{"method":"add","payload":[2,3]}`)

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decodedHeader, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decodedHeader.CodecType != header.CodecType {
		t.Errorf("CodecType mismatch: got %d, want %d", decodedHeader.CodecType, header.CodecType)
	}
	if decodedHeader.MsgType != header.MsgType {
		t.Errorf("MsgType mismatch: got %s, want %s", decodedHeader.MsgType, header.MsgType)
	}
	if decodedHeader.Seq != header.Seq {
		t.Errorf("Seq mismatch: got %d, want %d", decodedHeader.Seq, header.Seq)
	}
	if decodedHeader.BodyLen != uint32(len(body)) {
		t.Errorf("BodyLen mismatch: got %d, want %d", decodedHeader.BodyLen, len(body))
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", decodedBody, body)
	}
}

func TestDecodeSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	for seq := uint32(1); seq <= 3; seq++ {
		h := &Header{CodecType: CodecTypeCBOR, MsgType: MsgTypeReply, Seq: seq}
		if err := Encode(&buf, h, []byte{byte(seq)}); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	for seq := uint32(1); seq <= 3; seq++ {
		h, body, err := Decode(&buf)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if h.Seq != seq || len(body) != 1 || body[0] != byte(seq) {
			t.Fatalf("frame %d decoded as seq=%d body=%v", seq, h.Seq, body)
		}
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	invalidHeader := []byte{0x00, 0x00, 0x00, Version, CodecTypeJSON, byte(MsgTypeCall), 0x00, 0x00, 0x30, 0x39, 0x00, 0x00, 0x00, 0x0B}
	var buf bytes.Buffer
	buf.Write(invalidHeader)
	buf.Write([]byte("hello world"))

	_, _, err := Decode(&buf)
	if err == nil {
		t.Fatal("Expected error for invalid magic number, but got nil")
	}
	if !strings.Contains(err.Error(), "invalid magic number") {
		t.Errorf("Error message should contain 'invalid magic number', instead: %v", err)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeHeartbeat,
	}
	var buf bytes.Buffer
	if err := Encode(&buf, &header, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decodedHeader, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedHeader.MsgType != MsgTypeHeartbeat {
		t.Errorf("MsgType mismatch: got %s, want %s", decodedHeader.MsgType, MsgTypeHeartbeat)
	}
	if decodedHeader.BodyLen != 0 || len(decodedBody) != 0 {
		t.Errorf("Expected empty body, got length %d", len(decodedBody))
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	cases := []struct {
		name  string
		patch func(frame []byte)
		want  string
	}{
		{"version", func(f []byte) { f[3] = 0xFF }, "unsupported version"},
		{"codec", func(f []byte) { f[4] = 9 }, "unsupported codec type"},
		{"msgType", func(f []byte) { f[5] = 7 }, "unsupported message type"},
		{"bodyLen", func(f []byte) { binary.BigEndian.PutUint32(f[10:14], MaxBodyLen+1) }, "frame body too large"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := []byte{
				MagicNumber, MagicByte2, MagicByte3,
				Version,
				CodecTypeJSON,
				byte(MsgTypeCall),
				0, 0, 0, 1,
				0, 0, 0, 0,
			}
			tc.patch(frame)

			_, _, err := Decode(bytes.NewReader(frame))
			if err == nil {
				t.Fatal("expected Decode to fail")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should contain '%s', got: %v", tc.want, err)
			}
		})
	}
}

func TestDecodeLargeBody(t *testing.T) {
	var buf bytes.Buffer

	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	header := &Header{
		CodecType: CodecTypeBinary,
		MsgType:   MsgTypeCall,
		Seq:       999,
	}
	if err := Encode(&buf, header, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedBody, largeBody) {
		t.Errorf("large body mismatch")
	}
}
