package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"

	"chan-rpc/message"
)

var (
	errNotMessage = errors.New("BinaryCodec: v must be *RPCMessage")
	errShortBody  = errors.New("BinaryCodec: truncated body")
)

// BinaryCodec is a hand-rolled length-prefixed layout for RPCMessage:
//
//	method(str16) paramTypes(u16 n, str16...) attachments(u16 n, str16 key, str16 val...)
//	status(u8) error(str32) payload(bytes32)
//
// Attachment keys are written in sorted order so equal messages encode identically.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return nil, errNotMessage
	}
	if len(msg.ParamTypes) > math.MaxUint16 || len(msg.Attachments) > math.MaxUint16 {
		return nil, errors.New("BinaryCodec: too many parameter types or attachments")
	}

	// Calculate the length of the message up front so we allocate once.
	total := 2 + len(msg.Method) + 2 + 1 + 4 + len(msg.Error) + 4 + len(msg.Payload) + 2
	for _, p := range msg.ParamTypes {
		total += 2 + len(p)
	}
	keys := make([]string, 0, len(msg.Attachments))
	for k, val := range msg.Attachments {
		keys = append(keys, k)
		total += 4 + len(k) + len(val)
	}
	slices.Sort(keys)

	w := &binWriter{buf: make([]byte, 0, total)}
	w.str16(msg.Method)
	w.u16(uint16(len(msg.ParamTypes)))
	for _, p := range msg.ParamTypes {
		w.str16(p)
	}
	w.u16(uint16(len(keys)))
	for _, k := range keys {
		w.str16(k)
		w.str16(msg.Attachments[k])
	}
	w.buf = append(w.buf, byte(msg.Status))
	w.bytes32([]byte(msg.Error))
	w.bytes32(msg.Payload)
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return errNotMessage
	}

	r := &binReader{data: data}
	msg.Method = r.str16()
	if n := int(r.u16()); n > 0 {
		msg.ParamTypes = make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.ParamTypes = append(msg.ParamTypes, r.str16())
		}
	}
	if n := int(r.u16()); n > 0 {
		msg.Attachments = make(map[string]string, n)
		for i := 0; i < n && r.err == nil; i++ {
			k := r.str16()
			msg.Attachments[k] = r.str16()
		}
	}
	msg.Status = message.Status(r.u8())
	msg.Error = string(r.bytes32())
	msg.Payload = r.bytes32()
	return r.err
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func (c *BinaryCodec) Name() string {
	return NameBinary
}

type binWriter struct {
	buf []byte
	err error
}

func (w *binWriter) u16(n uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, n)
}

func (w *binWriter) str16(s string) {
	if len(s) > math.MaxUint16 {
		w.err = errors.New("BinaryCodec: string field longer than 65535 bytes")
		return
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *binWriter) bytes32(b []byte) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

type binReader struct {
	data []byte
	off  int
	err  error
}

func (r *binReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errShortBody
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *binReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *binReader) str16() string {
	return string(r.take(int(r.u16())))
}

func (r *binReader) bytes32() []byte {
	b := r.take(4)
	if b == nil {
		return nil
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(n) > uint64(len(r.data)-r.off) {
		r.err = errShortBody
		return nil
	}
	out := make([]byte, n)
	copy(out, r.take(int(n)))
	return out
}
