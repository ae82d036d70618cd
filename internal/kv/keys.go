package kv

import "bytes"

// Key prefixes. Each prefix ends with '|' as a separator.
const (
	PrefixCollection  = "c|" // c|{collection_id} => collection metadata (JSON)
	PrefixMemberCount = "n|" // n|{collection_id} => member count (8BE)
	PrefixMember      = "m|" // m|{collection_id}\x00{company_id:8BE}
)

const sep = '\x00'

// CollectionKey returns the key for collection metadata: c|{collection_id}
func CollectionKey(collectionID string) []byte {
	return append([]byte(PrefixCollection), collectionID...)
}

// CollectionPrefix returns the scan prefix for all collections.
func CollectionPrefix() []byte {
	return []byte(PrefixCollection)
}

// CollectionIDFromKey extracts the collection id from a c| key.
func CollectionIDFromKey(k []byte) (string, bool) {
	if !bytes.HasPrefix(k, []byte(PrefixCollection)) {
		return "", false
	}
	return string(k[len(PrefixCollection):]), true
}

// MemberCountKey returns the key holding a collection's member count: n|{collection_id}
func MemberCountKey(collectionID string) []byte {
	return append([]byte(PrefixMemberCount), collectionID...)
}

// MemberKey returns the key for one membership entry.
// Sort order within a collection: company id ascending (signed order preserved).
// m|{collection_id}\x00{company_id:8BE}
func MemberKey(collectionID string, companyID int64) []byte {
	k := MemberPrefix(collectionID)
	return PutInt64Ordered(k, companyID)
}

// MemberPrefix returns the scan prefix for a collection's members: m|{collection_id}\x00
func MemberPrefix(collectionID string) []byte {
	k := append([]byte(PrefixMember), collectionID...)
	return append(k, sep)
}

// MemberIDFromKey extracts the company id from a member key.
func MemberIDFromKey(k []byte) (int64, bool) {
	i := bytes.IndexByte(k, sep)
	if !bytes.HasPrefix(k, []byte(PrefixMember)) || i < 0 || len(k) != i+9 {
		return 0, false
	}
	return GetInt64Ordered(k[i+1:]), true
}

// PrefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
