package engine

import (
	"testing"
	"time"

	"github.com/user/shuttle/internal/store"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		current, total int
		want           float64
	}{
		{0, 0, 0},
		{0, 10, 0},
		{25, 100, 25},
		{10000, 10000, 100},
	}
	for _, tt := range tests {
		if got := Percent(tt.current, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %v, want %v", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestETA(t *testing.T) {
	if eta := ETA(0, 100, time.Second); eta != nil {
		t.Fatalf("ETA without progress = %v, want nil", *eta)
	}
	eta := ETA(50, 100, 10*time.Second)
	if eta == nil || *eta != 10 {
		t.Fatalf("ETA(50, 100, 10s) = %v, want 10", eta)
	}
}

func TestStatusOf(t *testing.T) {
	now := time.Now()
	started := now.Add(-4 * time.Second)
	tests := []struct {
		name   string
		job    store.Job
		paused bool
		want   string
		eta    bool
	}{
		{"queued", store.Job{State: store.StatePending, Total: 10}, false, StatusQueued, false},
		{"running", store.Job{State: store.StateRunning, Total: 100, Current: 50, StartedAt: &started}, false, StatusInProgress, true},
		{"paused", store.Job{State: store.StateRunning, Total: 100, Current: 50, StartedAt: &started}, true, StatusPaused, false},
		{"cancelling", store.Job{State: store.StateRunning, Total: 100, CancelRequested: true}, false, StatusCancelling, false},
		{"completed", store.Job{State: store.StateCompleted, Total: 10, Current: 10}, false, store.StateCompleted, true},
		{"failed", store.Job{State: store.StateFailed, Total: 10, Current: 5}, false, store.StateFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := statusOf(&tt.job, tt.paused, now)
			if s.Status != tt.want {
				t.Errorf("Status = %q, want %q", s.Status, tt.want)
			}
			if (s.ETASeconds != nil) != tt.eta {
				t.Errorf("ETASeconds set = %v, want %v", s.ETASeconds != nil, tt.eta)
			}
		})
	}
}

func TestStatusOfUndoable(t *testing.T) {
	done := store.Job{Kind: store.KindBulkAdd, State: store.StateCancelled}
	if !statusOf(&done, false, time.Now()).Undoable {
		t.Error("finished bulk_add should be undoable")
	}
	undo := store.Job{Kind: store.KindUndo, State: store.StateCompleted}
	if statusOf(&undo, false, time.Now()).Undoable {
		t.Error("undo job should not be undoable")
	}
}
