// Package ledger keeps an append-only journal of consumer sessions.
//
// # Overview
//
// Every lifecycle transition of a consumer queue (opened, configured, closed,
// torn down at shutdown, denied) is appended as one Entry. Event payloads are
// never written; the ledger exists so operators can see who consumed, with
// what subscription, and how many events each session admitted or dropped.
//
// Keys are lexicographically ordered for range scans:
//   - ledger/m               (metadata: lastSeq)
//   - ledger/e/{seq_be8}     (entries)
//
// Values are: uvarint headerLen | header | body | crc32c(header|body), where
// the header is the 8-byte big-endian append time in milliseconds and the
// body is the JSON encoding of the Entry.
//
//	l, _ := ledger.Open(db)
//	seq, _ := l.Append(ctx, ledger.Entry{Kind: ledger.KindOpened, PID: 42})
//	entries, next, _ := l.Read(ledger.ReadOptions{Limit: 100})
//	_, _ = l.TrimOlderThan(ctx, time.Now().Add(-24*time.Hour), 1024)
package ledger
