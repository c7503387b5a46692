// Package ingest is the Ingest Buffer: WAL append, an
// in-memory row buffer with size/age flush triggers, and a callback
// fired on flush that the caller (cmd/vecstore) wires to the slice
// writer and, through xact, to the shard builder.
//
// Grounded on original_source/src/ingest.rs's Buffer/Ingestor shape: a
// mutex-protected (rows, first_seen) pair, WAL append as the durability
// boundary before the call proceeds, and the lock held only for the
// in-memory push-and-swap — never across I/O, per the design
package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/cmn/debug"
	"github.com/roylkng/genai-vectors/cmn/nlog"
	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/stats"
	"github.com/roylkng/genai-vectors/store"
)

const walKey = "wal/current.ndjson"

// FlushFunc is invoked outside the buffer lock whenever a flush trigger
// fires, with the extracted batch and the target index.
type FlushFunc func(ctx context.Context, index string, rows []core.VectorRecord)

// ValidateFunc checks a batch against the index's schema/dimension/size
// rules before it touches the WAL. A *cos.ErrBadRequest
// returned here rejects the whole batch with no side effects — this is
// what makes scenario S2 ("batch rejected before WAL") hold.
type ValidateFunc func(ctx context.Context, index string, records []core.VectorRecord) error

type indexBuffer struct {
	rows      []core.VectorRecord
	firstSeen time.Time
}

// Buffer is one process-wide ingest buffer shared across all indexes;
// each index gets its own row slice but append/WAL share the same
// durability boundary.
type Buffer struct {
	adapter  store.Adapter
	rowLimit int
	ageLimit time.Duration
	onFlush  FlushFunc
	validate ValidateFunc

	mu      sync.Mutex
	buffers map[string]*indexBuffer
}

func NewBuffer(adapter store.Adapter, rowLimit int, ageLimit time.Duration, onFlush FlushFunc, validate ValidateFunc) *Buffer {
	if rowLimit <= 0 {
		rowLimit = core.DefaultRowLimit
	}
	if ageLimit <= 0 {
		ageLimit = core.DefaultAgeLimit
	}
	return &Buffer{
		adapter:  adapter,
		rowLimit: rowLimit,
		ageLimit: ageLimit,
		onFlush:  onFlush,
		validate: validate,
		buffers:  make(map[string]*indexBuffer),
	}
}

// Append is the append(): WAL first (the durability boundary),
// then buffer, then — if a flush trigger fires — hand the extracted batch
// to onFlush outside the lock.
func (b *Buffer) Append(ctx context.Context, index string, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > core.MaxBatchRecords {
		return cos.NewErrBadRequest("batch of %d records exceeds max %d", len(records), core.MaxBatchRecords)
	}
	if b.validate != nil {
		if err := b.validate(ctx, index, records); err != nil {
			stats.IngestRejectedTotal.WithLabelValues(index).Inc()
			return err
		}
	}

	var walBytes []byte
	for i := range records {
		line, err := json.Marshal(&records[i])
		if err != nil {
			return cos.NewErrBadRequest("record %s: %v", records[i].ID, err)
		}
		walBytes = append(walBytes, line...)
		walBytes = append(walBytes, '\n')
	}

	// Durability boundary: the WAL append must succeed before this call
	// proceeds.
	if err := b.adapter.Append(ctx, walKey, walBytes); err != nil {
		return errors.Wrap(cos.NewErrTransient(err, "wal append"), "ingest append")
	}

	stats.IngestRowsTotal.WithLabelValues(index).Add(float64(len(records)))

	extracted := b.push(index, records)
	if extracted != nil && b.onFlush != nil {
		debug.Assert(len(extracted) > 0, "ingest: push returned a non-nil empty batch")
		b.assertLockNotHeld()
		stats.FlushesTotal.WithLabelValues(index, "trigger").Inc()
		b.onFlush(ctx, index, extracted)
	}
	return nil
}

// assertLockNotHeld verifies the buffer lock is free, i.e. that the
// caller is about to invoke onFlush (I/O-bound) outside the mutex that
// guards the in-memory row buffer.
func (b *Buffer) assertLockNotHeld() {
	debug.AssertFunc(func() bool {
		if !b.mu.TryLock() {
			return false
		}
		b.mu.Unlock()
		return true
	})
}

// push appends records to the index's buffer and, if a flush trigger
// fires, atomically swaps the buffered rows out and returns them. The
// lock is held only across this in-memory operation.
func (b *Buffer) push(index string, records []core.VectorRecord) []core.VectorRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[index]
	if !ok {
		buf = &indexBuffer{}
		b.buffers[index] = buf
	}
	if len(buf.rows) == 0 {
		buf.firstSeen = time.Now()
	}
	buf.rows = append(buf.rows, records...)

	if len(buf.rows) >= b.rowLimit || time.Since(buf.firstSeen) >= b.ageLimit {
		extracted := buf.rows
		buf.rows = nil
		debug.Assert(len(buf.rows) == 0, "ingest: buffer not fully drained after flush swap")
		nlog.Infof("ingest: flushing %d rows for index %s", len(extracted), index)
		return extracted
	}
	return nil
}

// Flush forces extraction of any buffered rows for index regardless of
// trigger state; used by a periodic sweep so age-triggered flushes are
// not solely dependent on the next append() call arriving.
func (b *Buffer) Flush(ctx context.Context, index string) {
	b.mu.Lock()
	buf, ok := b.buffers[index]
	var extracted []core.VectorRecord
	if ok && len(buf.rows) > 0 {
		extracted = buf.rows
		buf.rows = nil
	}
	b.mu.Unlock()

	if extracted != nil && b.onFlush != nil {
		b.assertLockNotHeld()
		stats.FlushesTotal.WithLabelValues(index, "forced").Inc()
		b.onFlush(ctx, index, extracted)
	}
}

// FlushAgedOut sweeps every index whose buffer has aged past the age
// limit and flushes it, without requiring a new append() call to notice.
func (b *Buffer) FlushAgedOut(ctx context.Context) {
	b.mu.Lock()
	var due []string
	for index, buf := range b.buffers {
		if len(buf.rows) > 0 && time.Since(buf.firstSeen) >= b.ageLimit {
			due = append(due, index)
		}
	}
	b.mu.Unlock()

	for _, index := range due {
		b.Flush(ctx, index)
	}
}
