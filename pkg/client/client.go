// Package client is a thin HTTP wrapper for the Shuttle API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a thin HTTP wrapper for the Shuttle API.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// New creates a new Shuttle client.
func New(url string) *Client {
	return &Client{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Scope modes.
const (
	ModeAll      = "all"
	ModeSelected = "selected"
)

// Task is returned when an operation is admitted.
type Task struct {
	TaskID string `json:"task_id"`
	Total  int    `json:"total"`
	Lane   string `json:"lane"`
}

// Status is the pollable progress of an operation.
type Status struct {
	TaskID      string   `json:"task_id"`
	Kind        string   `json:"kind"`
	Lane        string   `json:"lane"`
	State       string   `json:"state"`
	Status      string   `json:"status"`
	Current     int      `json:"current"`
	Total       int      `json:"total"`
	Affected    int      `json:"affected"`
	Percent     float64  `json:"percent"`
	ETASeconds  *float64 `json:"eta_seconds,omitempty"`
	Message     string   `json:"message,omitempty"`
	UndoOf      string   `json:"undo_of,omitempty"`
	Undoable    bool     `json:"undoable"`
	CreatedAt   string   `json:"created_at"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// Terminal reports whether the operation has finished.
func (s *Status) Terminal() bool {
	switch s.State {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Collection is a collection summary, optionally with a page of member ids.
type Collection struct {
	ID         string  `json:"id"`
	Name       string  `json:"collection_name"`
	Total      int     `json:"total"`
	CreatedAt  string  `json:"created_at"`
	CompanyIDs []int64 `json:"company_ids,omitempty"`
	Offset     int     `json:"offset,omitempty"`
	Limit      int     `json:"limit,omitempty"`
}

// Operations

// BulkAdd starts moving companies from source to target. Pass ModeAll with
// no ids, or ModeSelected with the ids to add.
func (c *Client) BulkAdd(ctx context.Context, sourceID, targetID, mode string, companyIDs []int64) (*Task, error) {
	body := map[string]any{"mode": mode}
	if len(companyIDs) > 0 {
		body["company_ids"] = companyIDs
	}
	var result Task
	path := fmt.Sprintf("/api/v1/collections/%s/to/%s/companies/batch", url.PathEscape(sourceID), url.PathEscape(targetID))
	if err := c.post(ctx, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches an operation's progress.
func (c *Client) Status(ctx context.Context, taskID string) (*Status, error) {
	var result Status
	if err := c.get(ctx, "/api/v1/operations/"+url.PathEscape(taskID)+"/status", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Wait polls until the operation finishes. onProgress, if set, is called
// with every snapshot.
func (c *Client) Wait(ctx context.Context, taskID string, interval time.Duration, onProgress func(*Status)) (*Status, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(st)
		}
		if st.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel requests cancellation and returns the resulting status.
func (c *Client) Cancel(ctx context.Context, taskID string) (string, error) {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/api/v1/operations/"+url.PathEscape(taskID)+"/cancel", nil, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

// Undo starts removing what a finished operation inserted. An empty
// targetID means the operation's own target.
func (c *Client) Undo(ctx context.Context, taskID, targetID string) (*Task, error) {
	body := map[string]any{}
	if targetID != "" {
		body["target_collection_id"] = targetID
	}
	var result struct {
		UndoTaskID string `json:"undo_task_id"`
		Total      int    `json:"total"`
	}
	if err := c.post(ctx, "/api/v1/operations/"+url.PathEscape(taskID)+"/undo", body, &result); err != nil {
		return nil, err
	}
	return &Task{TaskID: result.UndoTaskID, Total: result.Total}, nil
}

// ListOperations returns the newest operations first.
func (c *Client) ListOperations(ctx context.Context, limit int) ([]Status, error) {
	var result struct {
		Operations []Status `json:"operations"`
	}
	path := "/api/v1/operations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Operations, nil
}

// Collections

func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var result struct {
		Collections []Collection `json:"collections"`
	}
	if err := c.get(ctx, "/api/v1/collections", &result); err != nil {
		return nil, err
	}
	return result.Collections, nil
}

func (c *Client) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	var result Collection
	if err := c.post(ctx, "/api/v1/collections", map[string]string{"collection_name": name}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetCollection(ctx context.Context, id string, offset, limit int) (*Collection, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var result Collection
	if err := c.get(ctx, "/api/v1/collections/"+url.PathEscape(id)+"?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.doRequest(ctx, "DELETE", "/api/v1/collections/"+url.PathEscape(id), nil, nil)
}

// AddCompanies adds a small explicit set directly and returns how many were new.
func (c *Client) AddCompanies(ctx context.Context, id string, companyIDs []int64) (int, error) {
	var result struct {
		Added int `json:"added"`
	}
	if err := c.post(ctx, "/api/v1/collections/"+url.PathEscape(id)+"/companies", map[string]any{"company_ids": companyIDs}, &result); err != nil {
		return 0, err
	}
	return result.Added, nil
}

// RemoveCompanies deletes members synchronously. With ModeAll every member
// except excludeIDs is removed; with ModeSelected only companyIDs are.
func (c *Client) RemoveCompanies(ctx context.Context, id, mode string, companyIDs, excludeIDs []int64) (int, error) {
	body := map[string]any{"mode": mode}
	if len(companyIDs) > 0 {
		body["company_ids"] = companyIDs
	}
	if len(excludeIDs) > 0 {
		body["exclude_ids"] = excludeIDs
	}
	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := c.post(ctx, "/api/v1/collections/"+url.PathEscape(id)+"/companies/delete", body, &result); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

// HTTP helpers

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doRequest(ctx, "GET", path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doRequest(ctx, "POST", path, body, result)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}
