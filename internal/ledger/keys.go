package ledger

import "encoding/binary"

var (
	metaKey     = []byte("ledger/m")
	entryPrefix = []byte("ledger/e/")
)

func keyEntry(seq uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	return binary.BigEndian.AppendUint64(k, seq)
}

func seqFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(entryPrefix):])
}

// entryBounds returns [lower, upper) covering every entry key.
func entryBounds() ([]byte, []byte) {
	upper := append([]byte(nil), entryPrefix...)
	upper[len(upper)-1]++
	return keyEntry(0), upper
}
