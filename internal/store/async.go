package store

import (
	"database/sql"
	"log/slog"
)

const (
	asyncQueueSize = 4096
	asyncMaxBatch  = 256
)

// eventOp is a job event to write, or a flush sentinel when done is non-nil.
type eventOp struct {
	jobID string
	typ   string
	data  string
	done  chan struct{}
}

// AsyncWriter batches job lifecycle events and writes them in the background
// so progress checkpoints never wait on the audit log.
type AsyncWriter struct {
	db      *sql.DB
	pending chan eventOp
	stop    chan struct{}
	done    chan struct{}
}

// NewAsyncWriter creates and starts an AsyncWriter.
func NewAsyncWriter(db *sql.DB) *AsyncWriter {
	aw := &AsyncWriter{
		db:      db,
		pending: make(chan eventOp, asyncQueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go aw.loop()
	return aw
}

// Emit queues an event. If the channel is full the event is dropped.
func (aw *AsyncWriter) Emit(jobID, typ, data string) {
	select {
	case aw.pending <- eventOp{jobID: jobID, typ: typ, data: data}:
	default:
		slog.Debug("async writer: channel full, dropping event", "job_id", jobID, "type", typ)
	}
}

// Flush blocks until all currently pending events have been written.
func (aw *AsyncWriter) Flush() {
	select {
	case <-aw.done:
		return
	default:
	}
	done := make(chan struct{})
	select {
	case aw.pending <- eventOp{done: done}:
		<-done
	case <-aw.done:
	}
}

// Stop drains pending events, writes them, and returns.
func (aw *AsyncWriter) Stop() {
	select {
	case <-aw.stop:
	default:
		close(aw.stop)
	}
	<-aw.done
}

func (aw *AsyncWriter) loop() {
	defer close(aw.done)

	batch := make([]eventOp, 0, asyncMaxBatch)
	for {
		select {
		case op := <-aw.pending:
			batch = append(batch, op)
		case <-aw.stop:
			aw.drain(&batch)
			aw.flushBatch(batch)
			return
		}

		// Non-blocking drain up to asyncMaxBatch ops.
	fill:
		for len(batch) < asyncMaxBatch {
			select {
			case op := <-aw.pending:
				batch = append(batch, op)
			default:
				break fill
			}
		}

		aw.flushBatch(batch)
		batch = batch[:0]
	}
}

func (aw *AsyncWriter) drain(batch *[]eventOp) {
	for {
		select {
		case op := <-aw.pending:
			*batch = append(*batch, op)
		default:
			return
		}
	}
}

func (aw *AsyncWriter) flushBatch(batch []eventOp) {
	if len(batch) == 0 {
		return
	}

	var events []eventOp
	var flushSignals []chan struct{}
	for _, op := range batch {
		if op.done != nil {
			flushSignals = append(flushSignals, op.done)
		} else {
			events = append(events, op)
		}
	}

	if len(events) > 0 {
		tx, err := aw.db.Begin()
		if err != nil {
			slog.Error("async writer: begin tx", "error", err)
		} else {
			for _, ev := range events {
				if _, err := tx.Exec(
					"INSERT INTO job_events (job_id, type, data) VALUES (?, ?, ?)",
					ev.jobID, ev.typ, ev.data,
				); err != nil {
					slog.Debug("async writer: exec error", "error", err, "job_id", ev.jobID)
				}
			}
			if err := tx.Commit(); err != nil {
				slog.Error("async writer: commit", "error", err)
			}
		}
	}

	for _, ch := range flushSignals {
		close(ch)
	}
}
