package codec

import (
	msgpack "github.com/ugorji/go/codec"
)

// MsgpackCodec serializes messages with msgpack. Compact and self-describing.
type MsgpackCodec struct {
	h *msgpack.MsgpackHandle
}

func newMsgpackCodec() *MsgpackCodec {
	h := &msgpack.MsgpackHandle{WriteExt: true}
	h.RawToString = true
	return &MsgpackCodec{h: h}
}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	var out []byte
	if err := msgpack.NewEncoderBytes(&out, c.h).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.NewDecoderBytes(data, c.h).Decode(v)
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}

func (c *MsgpackCodec) Name() string {
	return NameMsgpack
}
