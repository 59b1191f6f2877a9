package codec

import (
	cborlib "github.com/fxamacker/cbor/v2"
)

// CBORCodec encodes the envelope with integer map keys; the JSON payload becomes a byte string.
type CBORCodec struct{}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return cborlib.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return cborlib.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
