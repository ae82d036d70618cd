package kv

import (
	"bytes"
	"testing"
)

func TestCollectionKeyRoundTrip(t *testing.T) {
	k := CollectionKey("0b6f0d3e-1111-4c3a-9c1e-6a0f3c2d1e00")
	id, ok := CollectionIDFromKey(k)
	if !ok {
		t.Fatal("CollectionIDFromKey: not ok")
	}
	if id != "0b6f0d3e-1111-4c3a-9c1e-6a0f3c2d1e00" {
		t.Errorf("collection id: got %q", id)
	}
	if _, ok := CollectionIDFromKey(MemberCountKey("x")); ok {
		t.Error("count key should not parse as collection key")
	}
}

func TestMemberKeySortOrder(t *testing.T) {
	k1 := MemberKey("coll", 5)
	k2 := MemberKey("coll", 40)
	k3 := MemberKey("coll", 1<<33)
	if bytes.Compare(k1, k2) >= 0 || bytes.Compare(k2, k3) >= 0 {
		t.Error("member keys should sort by company id")
	}
}

func TestMemberPrefixIsolation(t *testing.T) {
	key := MemberKey("likes", 7)
	if !bytes.HasPrefix(key, MemberPrefix("likes")) {
		t.Error("member key should start with its collection prefix")
	}
	// "likes" must not match the prefix of "likes2".
	if bytes.HasPrefix(MemberKey("likes2", 7), MemberPrefix("likes")) {
		t.Error("prefix of one collection matched another")
	}
	id, ok := MemberIDFromKey(key)
	if !ok || id != 7 {
		t.Errorf("MemberIDFromKey = %d, %v; want 7, true", id, ok)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	prefix := MemberPrefix("c1")
	upper := PrefixUpperBound(prefix)
	if bytes.Compare(MemberKey("c1", 1<<62), upper) >= 0 {
		t.Error("member key should sort below the upper bound")
	}
	if bytes.Compare(upper, prefix) <= 0 {
		t.Error("upper bound should sort above the prefix")
	}
	if PrefixUpperBound([]byte{0xFF, 0xFF}) != nil {
		t.Error("all-0xFF prefix has no upper bound")
	}
}
