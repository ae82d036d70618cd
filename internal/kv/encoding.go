package kv

import "encoding/binary"

const signBit = uint64(1) << 63

// PutUint64BE appends a big-endian uint64 to dst (8 bytes).
func PutUint64BE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// GetUint64BE reads a big-endian uint64 from b.
func GetUint64BE(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// PutInt64Ordered appends v so that byte order matches signed integer order.
func PutInt64Ordered(dst []byte, v int64) []byte {
	return PutUint64BE(dst, uint64(v)^signBit)
}

// GetInt64Ordered reads a value written by PutInt64Ordered.
func GetInt64Ordered(b []byte) int64 {
	return int64(GetUint64BE(b) ^ signBit)
}
