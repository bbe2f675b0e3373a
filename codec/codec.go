// Package codec serializes RPCMessage bodies. A channel picks one codec per frame and
// records its type byte in the frame header, so peers may mix codecs on one connection.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON    CodecType = 0
	CodecTypeBinary  CodecType = 1
	CodecTypeMsgpack CodecType = 2
)

// Codec names as they appear under the "codec" configuration key.
const (
	NameJSON    = "json"
	NameBinary  = "binary"
	NameMsgpack = "msgpack"

	// DefaultName is the codec an invoker's channel adapter advertises.
	DefaultName = NameBinary
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
	Name() string
}

var codecs = map[CodecType]Codec{
	CodecTypeJSON:    &JSONCodec{},
	CodecTypeBinary:  &BinaryCodec{},
	CodecTypeMsgpack: newMsgpackCodec(),
}

// GetCodec returns the codec for a header type byte, falling back to Binary.
func GetCodec(codecType CodecType) Codec {
	if c, ok := codecs[codecType]; ok {
		return c
	}
	return codecs[CodecTypeBinary]
}

// ByName looks a codec up by its configuration name.
func ByName(name string) (Codec, error) {
	for _, c := range codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
