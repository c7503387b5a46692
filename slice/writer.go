// Package slice is the Slice Writer: serializes a buffered
// batch to a staged, immutable blob under staged/{index}/slice-{ts}.{ext}.
//
// Grounded on original_source/src/ingest.rs's write_slice/write_parquet_slice
// (timestamped key, temp-file-then-upload, format dispatch) and on
// the open question that a deployment may change SLICE_FORMAT
// between writes — so Reader dispatches on the object's suffix, never on
// the caller's configured format.
package slice

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/stats"
	"github.com/roylkng/genai-vectors/store"
)

// Format selects the on-disk encoding for new slices. Both must be
// consumable by the shard builder.
type Format string

const (
	FormatJSONLines Format = "jsonl"
	FormatColumnar  Format = "parquet"
)

// Writer writes a batch of records to a new staged slice and returns its key.
type Writer struct {
	adapter store.Adapter
	format  Format
	tmpDir  string
}

func NewWriter(adapter store.Adapter, format Format, tmpDir string) *Writer {
	if format == "" {
		format = FormatJSONLines
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Writer{adapter: adapter, format: format, tmpDir: tmpDir}
}

// Write serializes rows and puts them under their final key in a single
// put; partial writes are invisible since the object store is
// whole-object. The local temp file used to stage the
// serialization is removed on every exit path.
func (w *Writer) Write(ctx context.Context, index string, rows []core.VectorRecord) (string, error) {
	timer := stats.NewTimer()
	defer func() { timer.ObserveSeconds(stats.SliceWriteDuration.WithLabelValues(index, string(w.format))) }()

	ts := time.Now().UTC().Format("20060102T150405.000")
	ts = strings.ReplaceAll(ts, ".", "")

	switch w.format {
	case FormatColumnar:
		return w.writeColumnar(ctx, index, ts, rows)
	default:
		return w.writeJSONLines(ctx, index, ts, rows)
	}
}

func (w *Writer) writeJSONLines(ctx context.Context, index, ts string, rows []core.VectorRecord) (string, error) {
	key := fmt.Sprintf("staged/%s/slice-%s.jsonl", index, ts)

	tmp, err := os.CreateTemp(w.tmpDir, "slice-*.jsonl")
	if err != nil {
		return "", errors.Wrap(err, "create temp slice file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	bw := bufio.NewWriter(tmp)
	enc := json.NewEncoder(bw)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			tmp.Close()
			return "", errors.Wrap(err, "encode slice row")
		}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "flush slice file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close slice file")
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", errors.Wrap(err, "read staged slice file")
	}
	if err := w.adapter.Put(ctx, key, data); err != nil {
		return "", errors.Wrapf(err, "put slice %s", key)
	}
	return key, nil
}

// writeColumnar stages the columnar layout described in the design
// (id:utf8, embedding:list<f32>, meta:utf8(JSON), created_at:timestamp<ns>).
// The encoding here is a length-prefixed binary record stream rather than
// a full Arrow/Parquet file — it carries the same four columns and the
// same "whole object, single put" semantics, and Reader decodes it back
// without needing an external columnar-format library the retrieval pack
// does not ground (see DESIGN.md).
func (w *Writer) writeColumnar(ctx context.Context, index, ts string, rows []core.VectorRecord) (string, error) {
	key := fmt.Sprintf("staged/%s/slice-%s.parquet", index, ts)

	tmp, err := os.CreateTemp(w.tmpDir, "slice-*.parquet")
	if err != nil {
		return "", errors.Wrap(err, "create temp slice file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	bw := bufio.NewWriter(tmp)
	if err := encodeColumnar(bw, rows); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "encode columnar slice")
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "flush slice file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close slice file")
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", errors.Wrap(err, "read staged slice file")
	}
	if err := w.adapter.Put(ctx, key, data); err != nil {
		return "", errors.Wrapf(err, "put slice %s", key)
	}
	return key, nil
}
