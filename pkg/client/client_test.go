package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/shuttle/internal/coord"
	"github.com/user/shuttle/internal/engine"
	"github.com/user/shuttle/internal/membership"
	"github.com/user/shuttle/internal/server"
	"github.com/user/shuttle/internal/store"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	members, err := membership.OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("OpenPebble: %v", err)
	}
	t.Cleanup(func() { members.Close() })

	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := store.NewStore(db)
	t.Cleanup(func() { s.Close() })

	eng, err := engine.New(engine.Config{}, s, members, coord.NewMemory())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(eng.Stop)

	srv := server.New(eng, members, server.Config{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL)
}

func seq(from, to int64) []int64 {
	out := []int64{}
	for id := from; id <= to; id++ {
		out = append(out, id)
	}
	return out
}

func TestClientBulkAddWaitUndo(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	src, err := c.CreateCollection(ctx, "src")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	dst, err := c.CreateCollection(ctx, "dst")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if n, err := c.AddCompanies(ctx, src.ID, seq(1, 75)); err != nil || n != 75 {
		t.Fatalf("AddCompanies = %d, %v", n, err)
	}

	task, err := c.BulkAdd(ctx, src.ID, dst.ID, ModeAll, nil)
	if err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	snapshots := 0
	st, err := c.Wait(ctx, task.TaskID, 5*time.Millisecond, func(*Status) { snapshots++ })
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if st.State != "completed" || st.Affected != 75 || snapshots == 0 {
		t.Fatalf("status = %+v after %d snapshots", st, snapshots)
	}

	undo, err := c.Undo(ctx, task.TaskID, "")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := c.Wait(ctx, undo.TaskID, 5*time.Millisecond, nil); err != nil {
		t.Fatalf("Wait undo: %v", err)
	}
	coll, err := c.GetCollection(ctx, dst.ID, 0, 10)
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if coll.Total != 0 {
		t.Fatalf("target total after undo = %d", coll.Total)
	}

	ops, err := c.ListOperations(ctx, 10)
	if err != nil || len(ops) != 2 {
		t.Fatalf("ListOperations = %d, %v", len(ops), err)
	}
}

func TestClientRemoveCompanies(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	coll, _ := c.CreateCollection(ctx, "coll")
	_, _ = c.AddCompanies(ctx, coll.ID, seq(1, 10))

	n, err := c.RemoveCompanies(ctx, coll.ID, ModeSelected, []int64{1, 2}, nil)
	if err != nil || n != 2 {
		t.Fatalf("RemoveCompanies = %d, %v", n, err)
	}
	if err := c.DeleteCollection(ctx, coll.ID); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	list, err := c.ListCollections(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("ListCollections = %v, %v", list, err)
	}
}

func TestClientAPIError(t *testing.T) {
	c := testClient(t)
	_, err := c.Status(context.Background(), "op_missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "OPERATION_NOT_FOUND" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
