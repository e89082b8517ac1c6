// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// batches, range scans and metrics hooks.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("k"), []byte("v"))
//	_ = db.Scan([]byte("a"), []byte("z"), false, func(k, v []byte) bool {
//	    return true
//	})
package pebblestore
