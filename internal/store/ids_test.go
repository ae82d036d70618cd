package store

import (
	"strings"
	"testing"
)

func TestNewOperationID(t *testing.T) {
	id := NewOperationID()
	if !strings.HasPrefix(id, "op_") {
		t.Errorf("NewOperationID() = %q, want prefix %q", id, "op_")
	}
	// 26 hex chars + 3 prefix = 29
	if len(id) != 29 {
		t.Errorf("NewOperationID() length = %d, want 29", len(id))
	}
}

func TestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewOperationID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestIDsAreSortable(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewOperationID()
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] < ids[i-1] {
			t.Errorf("IDs not sortable: %q < %q at index %d", ids[i], ids[i-1], i)
		}
	}
}
