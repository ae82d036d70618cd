package coord_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/user/shuttle/internal/coord"
)

func exerciseFlags(t *testing.T, f coord.Flags) {
	t.Helper()
	ctx := context.Background()

	got, err := f.CancelRequested(ctx, "op_1")
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if got {
		t.Fatal("flag set before RequestCancel")
	}

	if err := f.RequestCancel(ctx, "op_1"); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if got, _ := f.CancelRequested(ctx, "op_1"); !got {
		t.Error("flag not visible after RequestCancel")
	}
	if got, _ := f.CancelRequested(ctx, "op_2"); got {
		t.Error("flag leaked to another job")
	}

	if err := f.Clear(ctx, "op_1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := f.CancelRequested(ctx, "op_1"); got {
		t.Error("flag still set after Clear")
	}
}

func TestMemoryFlags(t *testing.T) {
	exerciseFlags(t, coord.NewMemory())
}

func TestRedisFlags(t *testing.T) {
	mr := miniredis.RunT(t)
	f, err := coord.OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", time.Minute)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	exerciseFlags(t, f)

	// Flags expire so abandoned operations do not leak keys.
	_ = f.RequestCancel(context.Background(), "op_ttl")
	if ttl := mr.TTL("operation:op_ttl:cancel"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := coord.Open(context.Background(), "etcd", ""); err == nil {
		t.Error("Open(etcd) should fail")
	}
}
