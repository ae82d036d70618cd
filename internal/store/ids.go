package store

import (
	"encoding/hex"
	"sync/atomic"
	"time"
)

var (
	idSeq uint64
)

// newSortableID generates a lexicographically sortable 26-char ID suffix.
// Layout (hex): 16 chars timestamp ns + 10 chars sequence.
func newSortableID() string {
	ns := uint64(time.Now().UnixNano())
	seq := atomic.AddUint64(&idSeq, 1)
	var raw [13]byte
	for i := range 8 {
		raw[i] = byte(ns >> (56 - 8*i))
	}
	// Keep lower 40 bits for a fixed 10-hex-char suffix.
	for i := range 5 {
		raw[8+i] = byte(seq >> (32 - 8*i))
	}
	dst := make([]byte, 26)
	hex.Encode(dst, raw[:])
	return string(dst)
}

// NewOperationID generates a new operation (job) ID with the "op_" prefix.
func NewOperationID() string {
	return "op_" + newSortableID()
}
