package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/shuttle/internal/coord"
	"github.com/user/shuttle/internal/engine"
	"github.com/user/shuttle/internal/membership"
	"github.com/user/shuttle/internal/store"
)

func testServerWith(t *testing.T, cfg Config) (*Server, membership.Store) {
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

	cfg.ProgressInterval = 5 * time.Millisecond
	srv := New(eng, members, cfg)
	t.Cleanup(func() { srv.limiter.close() })
	return srv, members
}

func testServer(t *testing.T) (*Server, membership.Store) {
	t.Helper()
	return testServerWith(t, Config{Bind: ":0"})
}

func doRequest(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func createCollection(t *testing.T, srv *Server, name string, ids []int64) string {
	t.Helper()
	rr := doRequest(srv, "POST", "/api/v1/collections", CreateCollectionRequest{Name: name})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create collection status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var c CollectionSummary
	decodeResponse(t, rr, &c)
	if len(ids) > 0 {
		rr = doRequest(srv, "POST", "/api/v1/collections/"+c.ID+"/companies", AddCompaniesRequest{CompanyIDs: ids})
		if rr.Code != http.StatusOK {
			t.Fatalf("add companies status = %d, body: %s", rr.Code, rr.Body.String())
		}
	}
	return c.ID
}

func waitStatus(t *testing.T, srv *Server, taskID string) engine.Status {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		rr := doRequest(srv, "GET", "/api/v1/operations/"+taskID+"/status", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status code = %d, body: %s", rr.Code, rr.Body.String())
		}
		var st engine.Status
		decodeResponse(t, rr, &st)
		if store.IsTerminal(st.State) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("operation %s did not finish", taskID)
	return engine.Status{}
}

func ids(from, to int64) []int64 {
	out := []int64{}
	for id := from; id <= to; id++ {
		out = append(out, id)
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	rr := doRequest(srv, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestDocsEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	rr := doRequest(srv, "GET", "/openapi.json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("openapi status = %d", rr.Code)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	if _, ok := doc.Paths["/operations/{task_id}/status"]; !ok {
		t.Errorf("openapi missing status path")
	}

	etag := rr.Header().Get("ETag")
	req := httptest.NewRequest("GET", "/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	cached := httptest.NewRecorder()
	srv.Handler().ServeHTTP(cached, req)
	if etag == "" || cached.Code != http.StatusNotModified {
		t.Errorf("conditional openapi status = %d (etag %q), want 304", cached.Code, etag)
	}

	page := doRequest(srv, "GET", "/docs", nil)
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), `data-url="/openapi.json"`) {
		t.Errorf("docs page status = %d body = %q", page.Code, page.Body.String())
	}

	off, _ := testServerWith(t, Config{DocsDisabled: true})
	if rr := doRequest(off, "GET", "/docs", nil); rr.Code != http.StatusNotFound {
		t.Errorf("docs disabled status = %d, want 404", rr.Code)
	}
}

func TestCollectionCRUD(t *testing.T) {
	srv, _ := testServer(t)
	id := createCollection(t, srv, "My List", ids(1, 250))

	rr := doRequest(srv, "GET", "/api/v1/collections/"+id+"?offset=100&limit=20", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var c CollectionResponse
	decodeResponse(t, rr, &c)
	if c.Name != "My List" || c.Total != 250 || len(c.CompanyIDs) != 20 || c.CompanyIDs[0] != 101 {
		t.Fatalf("collection = %+v", c)
	}

	rr = doRequest(srv, "GET", "/api/v1/collections", nil)
	var list CollectionsResponse
	decodeResponse(t, rr, &list)
	if len(list.Collections) != 1 || list.Collections[0].ID != id {
		t.Fatalf("list = %+v", list)
	}

	rr = doRequest(srv, "DELETE", "/api/v1/collections/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doRequest(srv, "GET", "/api/v1/collections/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestBodyValidation(t *testing.T) {
	srv, _ := testServer(t)
	rr := doRequest(srv, "POST", "/api/v1/collections", map[string]any{"collection_name": 42})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp ErrorResponse
	decodeResponse(t, rr, &resp)
	if resp.Code != "INVALID_BODY" || len(resp.Details) == 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestBulkAddAndStatus(t *testing.T) {
	srv, _ := testServer(t)
	source := createCollection(t, srv, "src", ids(1, 120))
	target := createCollection(t, srv, "dst", ids(1, 20))

	rr := doRequest(srv, "POST", fmt.Sprintf("/api/v1/collections/%s/to/%s/companies/batch", source, target),
		BulkAddRequest{Mode: "all"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var task TaskResponse
	decodeResponse(t, rr, &task)
	if task.TaskID == "" || task.Total != 120 || task.Lane != store.LaneInteractive {
		t.Fatalf("task = %+v", task)
	}

	st := waitStatus(t, srv, task.TaskID)
	if st.State != store.StateCompleted || st.Current != 120 || st.Affected != 100 || st.Percent != 100 {
		t.Fatalf("status = %+v", st)
	}

	rr = doRequest(srv, "GET", "/api/v1/operations?limit=5", nil)
	var ops OperationsResponse
	decodeResponse(t, rr, &ops)
	if len(ops.Operations) != 1 || ops.Operations[0].TaskID != task.TaskID {
		t.Fatalf("operations = %+v", ops)
	}
}

func TestBulkAddErrors(t *testing.T) {
	srv, _ := testServer(t)
	source := createCollection(t, srv, "src", ids(1, 5))
	target := createCollection(t, srv, "dst", nil)
	missing := "7f1c5a52-3b7e-4a43-9f0e-2f6a3c1d9b10"
	path := func(src, dst string) string {
		return fmt.Sprintf("/api/v1/collections/%s/to/%s/companies/batch", src, dst)
	}

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"empty selection", path(source, target), BulkAddRequest{Mode: "selected"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad mode", path(source, target), map[string]any{"mode": "some"}, http.StatusBadRequest, "INVALID_BODY"},
		{"missing target", path(source, missing), BulkAddRequest{Mode: "all"}, http.StatusNotFound, "COLLECTION_NOT_FOUND"},
		{"bad id", path("nope", target), BulkAddRequest{Mode: "all"}, http.StatusBadRequest, "INVALID_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(srv, "POST", tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d, body: %s", rr.Code, tt.status, rr.Body.String())
			}
			var resp ErrorResponse
			decodeResponse(t, rr, &resp)
			if resp.Code != tt.code {
				t.Fatalf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestCancelAndUndoEndpoints(t *testing.T) {
	srv, members := testServer(t)
	source := createCollection(t, srv, "src", ids(1, 30))
	target := createCollection(t, srv, "dst", nil)

	rr := doRequest(srv, "POST", "/api/v1/operations/op_missing/cancel", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown status = %d", rr.Code)
	}

	rr = doRequest(srv, "POST", fmt.Sprintf("/api/v1/collections/%s/to/%s/companies/batch", source, target),
		BulkAddRequest{Mode: "selected", CompanyIDs: ids(1, 10)})
	var task TaskResponse
	decodeResponse(t, rr, &task)
	waitStatus(t, srv, task.TaskID)

	rr = doRequest(srv, "POST", "/api/v1/operations/"+task.TaskID+"/cancel", nil)
	var cancel StatusResponse
	decodeResponse(t, rr, &cancel)
	if cancel.Status != store.StateCompleted {
		t.Fatalf("cancel of finished job = %q", cancel.Status)
	}

	rr = doRequest(srv, "POST", "/api/v1/operations/"+task.TaskID+"/undo", UndoRequest{TargetCollectionID: target})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("undo status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var undo UndoResponse
	decodeResponse(t, rr, &undo)
	if undo.UndoTaskID == "" || undo.Total != 10 {
		t.Fatalf("undo = %+v", undo)
	}
	waitStatus(t, srv, undo.UndoTaskID)
	if n, _ := members.Count(context.Background(), target); n != 0 {
		t.Fatalf("target count after undo = %d", n)
	}

	rr = doRequest(srv, "POST", "/api/v1/operations/"+undo.UndoTaskID+"/undo", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("undo of undo status = %d, want 400", rr.Code)
	}
}

func TestDeleteCompanies(t *testing.T) {
	srv, _ := testServer(t)
	id := createCollection(t, srv, "coll", ids(1, 10))

	rr := doRequest(srv, "POST", "/api/v1/collections/"+id+"/companies/delete",
		DeleteCompaniesRequest{Mode: "all", ExcludeIDs: []int64{3}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var resp DeleteCompaniesResponse
	decodeResponse(t, rr, &resp)
	if resp.Deleted != 9 {
		t.Fatalf("deleted = %d, want 9", resp.Deleted)
	}
}

func TestOperationProgressStream(t *testing.T) {
	srv, _ := testServer(t)
	source := createCollection(t, srv, "src", ids(1, 60))
	target := createCollection(t, srv, "dst", nil)

	rr := doRequest(srv, "POST", fmt.Sprintf("/api/v1/collections/%s/to/%s/companies/batch", source, target),
		BulkAddRequest{Mode: "all"})
	var task TaskResponse
	decodeResponse(t, rr, &task)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/v1/operations/"+task.TaskID+"/progress", nil).WithContext(ctx)
	stream := httptest.NewRecorder()
	srv.Handler().ServeHTTP(stream, req)

	body := stream.Body.String()
	if ct := stream.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(body, "event: completed\n") {
		t.Fatalf("stream did not end with a completed event:\n%s", body)
	}
	if !strings.Contains(body, `"task_id":"`+task.TaskID+`"`) {
		t.Fatalf("stream events missing task id:\n%s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	doRequest(srv, "GET", "/api/v1/operations", nil)

	rr := doRequest(srv, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"shuttle_lane_depth", "shuttle_http_request_duration_seconds", `route="/api/v1/operations"`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestRateLimitedWrites(t *testing.T) {
	srv, _ := testServerWith(t, Config{RateLimit: RateLimitConfig{Enabled: true, WriteRPS: 0.001, WriteBurst: 1}})

	if rr := doRequest(srv, "POST", "/api/v1/collections", CreateCollectionRequest{Name: "a"}); rr.Code != http.StatusCreated {
		t.Fatalf("first write status = %d", rr.Code)
	}
	rr := doRequest(srv, "POST", "/api/v1/collections", CreateCollectionRequest{Name: "b"})
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second write status = %d, Retry-After %q", rr.Code, rr.Header().Get("Retry-After"))
	}
	if rr := doRequest(srv, "GET", "/api/v1/collections", nil); rr.Code != http.StatusOK {
		t.Fatalf("read status = %d", rr.Code)
	}
}
