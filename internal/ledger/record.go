package ledger

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(header, body []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(body)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, body...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, body)
	return binary.BigEndian.AppendUint32(out, crc)
}

// decodeRecord returns views into b; callers copy what they keep.
func decodeRecord(b []byte) (header, body []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n-4) < hlen {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	body = b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, body)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, false
	}
	return header, body, true
}

func timestampHeader(ms int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(ms))
}

func headerTimestamp(h []byte) (int64, bool) {
	if len(h) < 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(h[:8])), true
}
