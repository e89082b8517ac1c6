package eventqueue

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Frame encoding:
//
//	uvarint type | uvarint guest | varint thread | uvarint len | payload | crc32c
//
// The big-endian crc32c covers every byte of the frame before it.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrShortFrame = errors.New("eventqueue: short frame")
	ErrBadFrame   = errors.New("eventqueue: malformed frame")
	ErrChecksum   = errors.New("eventqueue: frame checksum mismatch")
)

// AppendFrame appends the encoding of r to dst.
func AppendFrame(dst []byte, r Record) []byte {
	start := len(dst)
	dst = binary.AppendUvarint(dst, uint64(r.Type))
	dst = binary.AppendUvarint(dst, uint64(r.Guest))
	dst = binary.AppendVarint(dst, int64(r.Thread))
	dst = binary.AppendUvarint(dst, uint64(len(r.Payload)))
	dst = append(dst, r.Payload...)
	return binary.BigEndian.AppendUint32(dst, crc32.Checksum(dst[start:], castagnoli))
}

// EncodeFrames encodes rs back to back.
func EncodeFrames(rs []Record) []byte {
	size := 0
	for _, r := range rs {
		size += 4*binary.MaxVarintLen16 + len(r.Payload) + 4
	}
	out := make([]byte, 0, size)
	for _, r := range rs {
		out = AppendFrame(out, r)
	}
	return out
}

// DecodeFrame decodes the first frame in b and returns it with the number of
// bytes consumed. The payload is copied out of b.
func DecodeFrame(b []byte) (Record, int, error) {
	var r Record
	off := 0
	next := func() (uint64, error) {
		v, n := binary.Uvarint(b[off:])
		if n == 0 {
			return 0, ErrShortFrame
		}
		if n < 0 {
			return 0, ErrBadFrame
		}
		off += n
		return v, nil
	}
	t, err := next()
	if err != nil {
		return r, 0, err
	}
	g, err := next()
	if err != nil {
		return r, 0, err
	}
	th, n := binary.Varint(b[off:])
	if n == 0 {
		return r, 0, ErrShortFrame
	}
	if n < 0 {
		return r, 0, ErrBadFrame
	}
	off += n
	plen, err := next()
	if err != nil {
		return r, 0, err
	}
	if t > 0xff || g > 0xffff || th < -1<<31 || th > 1<<31-1 {
		return r, 0, ErrBadFrame
	}
	if plen > uint64(len(b)-off) || len(b)-off-int(plen) < 4 {
		return r, 0, ErrShortFrame
	}
	end := off + int(plen)
	if crc32.Checksum(b[:end], castagnoli) != binary.BigEndian.Uint32(b[end:end+4]) {
		return r, 0, ErrChecksum
	}
	r = Record{Type: Type(t), Guest: uint16(g), Thread: int32(th)}
	if plen > 0 {
		r.Payload = append([]byte(nil), b[off:end]...)
	}
	return r, end + 4, nil
}

// DecodeFrames decodes a buffer holding zero or more complete frames.
func DecodeFrames(b []byte) ([]Record, error) {
	var out []Record
	for len(b) > 0 {
		r, n, err := DecodeFrame(b)
		if err != nil {
			return out, err
		}
		out = append(out, r)
		b = b[n:]
	}
	return out, nil
}

// WriteFrames writes the encoding of rs to w.
func WriteFrames(w io.Writer, rs []Record) error {
	_, err := w.Write(EncodeFrames(rs))
	return err
}
