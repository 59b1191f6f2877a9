package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"worker-rpc/message"
)

// BinaryCodec lays an envelope out as two length-prefixed fields:
//
//	methodLen uint16 | method | payloadLen uint32 | payload
//
// A zero payloadLen means the payload is absent; a present JSON value is never empty.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.Envelope)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *Envelope")
	}
	if len(msg.Method) > 0xFFFF {
		return nil, fmt.Errorf("BinaryCodec: method name too long (%d bytes)", len(msg.Method))
	}

	total := 2 + len(msg.Method) + 4 + len(msg.Payload)
	buf := make([]byte, total)

	offset := 0
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.Method)))
	offset += 2

	copy(buf[offset:offset+len(msg.Method)], msg.Method)
	offset += len(msg.Method)

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Payload)))
	offset += 4

	copy(buf[offset:], msg.Payload)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.Envelope)
	if !ok {
		return errors.New("BinaryCodec: v must be *Envelope")
	}

	if len(data) < 2 {
		return errors.New("BinaryCodec: truncated method length")
	}
	offset := 0
	strLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if len(data) < offset+strLen+4 {
		return errors.New("BinaryCodec: truncated method")
	}
	msg.Method = string(data[offset : offset+strLen])
	offset += strLen

	payloadLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) != offset+payloadLen {
		return fmt.Errorf("BinaryCodec: payload length %d does not match body", payloadLen)
	}
	if payloadLen == 0 {
		msg.Payload = nil
		return nil
	}
	msg.Payload = make([]byte, payloadLen)
	copy(msg.Payload, data[offset:])

	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
