// Package bin implements the small fixed-width wire codec that the TL
// meta-message types in package mt encode and decode through.
package bin

import (
	"encoding/binary"

	"github.com/go-faster/errors"
)

// Buffer is a growable byte buffer with TL-aware Put/Consume helpers.
// It plays the same role as gotd/td's internal bin.Buffer: every wire
// message is built and read through one of these.
type Buffer struct {
	Buf []byte
}

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() {
	b.Buf = b.Buf[:0]
}

// Len reports the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.Buf)
}

// PutID writes a 32-bit TL constructor id.
func (b *Buffer) PutID(id uint32) {
	b.Buf = binary.LittleEndian.AppendUint32(b.Buf, id)
}

// PutInt writes a 32-bit signed integer.
func (b *Buffer) PutInt(v int32) {
	b.Buf = binary.LittleEndian.AppendUint32(b.Buf, uint32(v))
}

// PutLong writes a 64-bit signed integer.
func (b *Buffer) PutLong(v int64) {
	b.Buf = binary.LittleEndian.AppendUint64(b.Buf, uint64(v))
}

// PutBytes writes a length-prefixed byte string, padded to a multiple
// of four bytes, per the MTProto "bytes" serialization rule.
func (b *Buffer) PutBytes(v []byte) {
	n := len(v)
	switch {
	case n < 254:
		b.Buf = append(b.Buf, byte(n))
	default:
		b.Buf = append(b.Buf, 254, byte(n), byte(n>>8), byte(n>>16))
	}
	b.Buf = append(b.Buf, v...)
	if pad := padding(len(b.Buf)); pad > 0 {
		b.Buf = append(b.Buf, make([]byte, pad)...)
	}
}

// PutString writes a length-prefixed UTF-8 string using the same rule
// as PutBytes.
func (b *Buffer) PutString(v string) {
	b.PutBytes([]byte(v))
}

// PutVectorHeader writes the TL vector constructor id (0x1cb5c415)
// followed by the element count.
func (b *Buffer) PutVectorHeader(n int) {
	b.PutID(0x1cb5c415)
	b.PutInt(int32(n))
}

func padding(n int) int {
	if r := n % 4; r != 0 {
		return 4 - r
	}
	return 0
}

// ErrBufferTooShort is returned by Consume* methods when fewer bytes
// remain than the field being read requires.
var ErrBufferTooShort = errors.New("bin: buffer too short")

func (b *Buffer) take(n int) ([]byte, error) {
	if len(b.Buf) < n {
		return nil, ErrBufferTooShort
	}
	v := b.Buf[:n]
	b.Buf = b.Buf[n:]
	return v, nil
}

// PeekID reads the next 32-bit constructor id without consuming it.
func (b *Buffer) PeekID() (uint32, error) {
	if len(b.Buf) < 4 {
		return 0, ErrBufferTooShort
	}
	return binary.LittleEndian.Uint32(b.Buf[:4]), nil
}

// ConsumeID reads and consumes a 32-bit constructor id.
func (b *Buffer) ConsumeID() (uint32, error) {
	v, err := b.take(4)
	if err != nil {
		return 0, errors.Wrap(err, "consume id")
	}
	return binary.LittleEndian.Uint32(v), nil
}

// Int reads a 32-bit signed integer.
func (b *Buffer) Int() (int32, error) {
	v, err := b.take(4)
	if err != nil {
		return 0, errors.Wrap(err, "consume int")
	}
	return int32(binary.LittleEndian.Uint32(v)), nil
}

// Long reads a 64-bit signed integer.
func (b *Buffer) Long() (int64, error) {
	v, err := b.take(8)
	if err != nil {
		return 0, errors.Wrap(err, "consume long")
	}
	return int64(binary.LittleEndian.Uint64(v)), nil
}

// Bytes reads a length-prefixed, padded byte string.
func (b *Buffer) Bytes() ([]byte, error) {
	if len(b.Buf) == 0 {
		return nil, ErrBufferTooShort
	}
	var n, headerLen int
	if b.Buf[0] == 254 {
		if len(b.Buf) < 4 {
			return nil, ErrBufferTooShort
		}
		n = int(b.Buf[1]) | int(b.Buf[2])<<8 | int(b.Buf[3])<<16
		headerLen = 4
	} else {
		n = int(b.Buf[0])
		headerLen = 1
	}
	if _, err := b.take(headerLen); err != nil {
		return nil, err
	}
	v, err := b.take(n)
	if err != nil {
		return nil, errors.Wrap(err, "consume bytes")
	}
	out := append([]byte(nil), v...)
	if pad := padding(headerLen + n); pad > 0 {
		if _, err := b.take(pad); err != nil {
			return nil, errors.Wrap(err, "consume padding")
		}
	}
	return out, nil
}

// String reads a length-prefixed UTF-8 string.
func (b *Buffer) String() (string, error) {
	v, err := b.Bytes()
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// VectorHeader reads and validates a TL vector header, returning the
// element count.
func (b *Buffer) VectorHeader() (int, error) {
	id, err := b.ConsumeID()
	if err != nil {
		return 0, err
	}
	if id != 0x1cb5c415 {
		return 0, errors.Errorf("bin: unexpected vector id %#x", id)
	}
	n, err := b.Int()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Encoder is implemented by every TL object that can serialize itself.
type Encoder interface {
	Encode(b *Buffer) error
}

// Decoder is implemented by every TL object that can deserialize
// itself from a Buffer positioned right after its constructor id.
type Decoder interface {
	Decode(b *Buffer) error
}

// Object is a TL object that knows its own constructor id, used to
// build constructor-keyed dispatch tables.
type Object interface {
	Encoder
	Decoder
	ConstructorID() uint32
}
