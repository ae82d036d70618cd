package kv

import (
	"bytes"
	"testing"
)

func TestPutGetUint64BE(t *testing.T) {
	tests := []uint64{0, 1, 1<<32 - 1, 1 << 32, 1<<63 - 1, 1<<64 - 1}
	for _, v := range tests {
		b := PutUint64BE(nil, v)
		if len(b) != 8 {
			t.Fatalf("PutUint64BE: expected 8 bytes, got %d", len(b))
		}
		if got := GetUint64BE(b); got != v {
			t.Errorf("round-trip %d: got %d", v, got)
		}
	}
}

func TestInt64OrderedSortOrder(t *testing.T) {
	vals := []int64{-1 << 63, -1000, -1, 0, 1, 100, 1 << 40, 1<<63 - 1}
	for i, v := range vals {
		if got := GetInt64Ordered(PutInt64Ordered(nil, v)); got != v {
			t.Errorf("round-trip %d: got %d", v, got)
		}
		if i == 0 {
			continue
		}
		a := PutInt64Ordered(nil, vals[i-1])
		b := PutInt64Ordered(nil, v)
		if bytes.Compare(a, b) >= 0 {
			t.Errorf("sort order violated: %d >= %d in bytes", vals[i-1], v)
		}
	}
}
