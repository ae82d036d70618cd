package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = `id, kind, source_collection_id, target_collection_id, undo_of,
	scope_mode, scope_ids, lane, state, total, current, affected, cancel_requested,
	message, created_at, started_at, completed_at`

// CreateJob inserts j in the pending state. ID and CreatedAt are filled in
// when empty.
func (s *Store) CreateJob(ctx context.Context, j *Job) error {
	if j.ID == "" {
		j.ID = NewOperationID()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.State = StatePending
	if j.Current < 0 || j.Current > j.Total {
		return fmt.Errorf("create job: current %d out of range [0, %d]", j.Current, j.Total)
	}

	var scopeIDs sql.NullString
	if len(j.Scope.IDs) > 0 {
		b, err := json.Marshal(j.Scope.IDs)
		if err != nil {
			return fmt.Errorf("encode scope ids: %w", err)
		}
		scopeIDs = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.Write.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, source_collection_id, target_collection_id, undo_of,
			scope_mode, scope_ids, lane, state, total, current, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Kind, j.SourceCollectionID, j.TargetCollectionID, nullString(j.UndoOf),
		j.Scope.Mode, scopeIDs, j.Lane, j.State, j.Total, j.Current, formatTime(j.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	s.events.Emit(j.ID, "admitted", fmt.Sprintf(`{"kind":%q,"lane":%q,"total":%d}`, j.Kind, j.Lane, j.Total))
	return nil
}

// GetJob returns a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.Read.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs returns the newest jobs first. An empty state matches all states.
func (s *Store) ListJobs(ctx context.Context, state string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + jobColumns + " FROM jobs"
	args := []any{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, state)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// JobIDsByState returns the ids of all jobs in state, oldest first.
func (s *Store) JobIDsByState(ctx context.Context, state string) ([]string, error) {
	rows, err := s.db.Read.QueryContext(ctx, "SELECT id FROM jobs WHERE state = ? ORDER BY id", state)
	if err != nil {
		return nil, fmt.Errorf("job ids by state: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkRunning moves a pending job to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	res, err := s.db.Write.ExecContext(ctx,
		"UPDATE jobs SET state = ?, started_at = ? WHERE id = ? AND state = ?",
		StateRunning, formatTime(time.Now().UTC()), id, StatePending,
	)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if err := s.expectOne(ctx, res, id); err != nil {
		return err
	}
	s.events.Emit(id, "started", "")
	return nil
}

// Checkpoint records progress for a running job: current becomes the number
// of candidates processed and ids are appended to the job's mutated set.
// Both land in one transaction. Current may never move backwards.
func (s *Store) Checkpoint(ctx context.Context, id string, current int, ids []int64) error {
	err := s.execTx(func(tx *sql.Tx) error {
		added := 0
		if len(ids) > 0 {
			stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO job_ids (job_id, company_id) VALUES (?, ?)")
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, cid := range ids {
				res, err := stmt.ExecContext(ctx, id, cid)
				if err != nil {
					return fmt.Errorf("record id %d: %w", cid, err)
				}
				n, _ := res.RowsAffected()
				added += int(n)
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET current = ?, affected = affected + ?
			WHERE id = ? AND state = ? AND current <= ? AND ? <= total`,
			current, added, id, StateRunning, current, current,
		)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n != 1 {
			return fmt.Errorf("%w: checkpoint %d on %s", ErrInvalidTransition, current, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// FinishJob moves a pending or running job to a terminal state.
func (s *Store) FinishJob(ctx context.Context, id, state, message string) error {
	if !IsTerminal(state) {
		return fmt.Errorf("%w: %q is not terminal", ErrInvalidTransition, state)
	}
	res, err := s.db.Write.ExecContext(ctx, `
		UPDATE jobs SET state = ?, message = ?, completed_at = ?
		WHERE id = ? AND state IN (?, ?)`,
		state, nullString(message), formatTime(time.Now().UTC()), id, StatePending, StateRunning,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if err := s.expectOne(ctx, res, id); err != nil {
		return err
	}
	data := ""
	if message != "" {
		b, _ := json.Marshal(map[string]string{"message": message})
		data = string(b)
	}
	s.events.Emit(id, state, data)
	return nil
}

// RequestCancel persists the cancel request on the job record. It is a no-op
// for terminal jobs and reports whether the job was still live.
func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Write.ExecContext(ctx,
		"UPDATE jobs SET cancel_requested = 1 WHERE id = ? AND state IN (?, ?)",
		id, StatePending, StateRunning,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	s.events.Emit(id, "cancel_requested", "")
	return true, nil
}

// AffectedIDs returns the ids a job mutated, ascending.
func (s *Store) AffectedIDs(ctx context.Context, id string) ([]int64, error) {
	rows, err := s.db.Read.QueryContext(ctx,
		"SELECT company_id FROM job_ids WHERE job_id = ? ORDER BY company_id", id)
	if err != nil {
		return nil, fmt.Errorf("affected ids: %w", err)
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		ids = append(ids, cid)
	}
	return ids, rows.Err()
}

// Events returns a job's lifecycle log, oldest first.
func (s *Store) Events(ctx context.Context, id string) ([]Event, error) {
	rows, err := s.db.Read.QueryContext(ctx,
		"SELECT id, job_id, type, COALESCE(data, ''), created_at FROM job_events WHERE job_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("job events: %w", err)
	}
	defer rows.Close()
	events := []Event{}
	for rows.Next() {
		var ev Event
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Type, &ev.Data, &createdAt); err != nil {
			return nil, err
		}
		ev.CreatedAt = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PruneEvents deletes lifecycle events recorded before the cutoff. Job
// records and their id sets are kept.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Write.ExecContext(ctx,
		"DELETE FROM job_events WHERE created_at < ?", before.UTC().Format("2006-01-02T15:04:05.000"))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) expectOne(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, j.State)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*Job, error) {
	var j Job
	var undoOf, scopeIDs, message, startedAt, completedAt sql.NullString
	var createdAt string
	var cancel int
	err := r.Scan(
		&j.ID, &j.Kind, &j.SourceCollectionID, &j.TargetCollectionID, &undoOf,
		&j.Scope.Mode, &scopeIDs, &j.Lane, &j.State, &j.Total, &j.Current, &j.Affected, &cancel,
		&message, &createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	j.UndoOf = undoOf.String
	j.Message = message.String
	j.CancelRequested = cancel != 0
	if scopeIDs.Valid && strings.TrimSpace(scopeIDs.String) != "" {
		if err := json.Unmarshal([]byte(scopeIDs.String), &j.Scope.IDs); err != nil {
			return nil, fmt.Errorf("decode scope ids: %w", err)
		}
	}
	j.CreatedAt = parseTime(createdAt)
	j.StartedAt = parseNullableTime(startedAt)
	j.CompletedAt = parseNullableTime(completedAt)
	return &j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
