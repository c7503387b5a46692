package slice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/store"
)

// Reader loads and decodes a staged slice. It dispatches on the key's
// suffix, not on the caller's current SLICE_FORMAT configuration — a
// deployment may change SLICE_FORMAT between a slice's write and the
// builder run that absorbs it.
type Reader struct {
	adapter store.Adapter
}

func NewReader(adapter store.Adapter) *Reader { return &Reader{adapter: adapter} }

func (r *Reader) Read(ctx context.Context, key string) ([]core.VectorRecord, error) {
	data, err := r.adapter.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "get slice %s", key)
	}

	switch {
	case strings.HasSuffix(key, ".parquet"):
		return decodeColumnar(data)
	default:
		return decodeJSONLines(data)
	}
}

func decodeJSONLines(data []byte) ([]core.VectorRecord, error) {
	var rows []core.VectorRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec core.VectorRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errors.Wrap(err, "decode jsonl slice row")
		}
		rows = append(rows, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan jsonl slice")
	}
	return rows, nil
}

// Columnar wire format: a sequence of records, each
// id_len:u32 | id:bytes | dim:u32 | embedding:dim*f32 | meta_len:u32 | meta:bytes | created_at_ns:i64
// This carries the four columns the design names (id, embedding, meta,
// created_at) without depending on an Arrow/Parquet library the
// retrieval pack does not ground for this use (see DESIGN.md).
func encodeColumnar(w *bufio.Writer, rows []core.VectorRecord) error {
	var hdr [4]byte
	for i := range rows {
		r := &rows[i]
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(r.ID)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.WriteString(r.ID); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(r.Embedding)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		for _, f := range r.Embedding {
			binary.LittleEndian.PutUint32(hdr[:], math.Float32bits(f))
			if _, err := w.Write(hdr[:]); err != nil {
				return err
			}
		}
		meta := r.Meta
		if meta == nil {
			meta = []byte("{}")
		}
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(meta)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(meta); err != nil {
			return err
		}
		var tsBuf [8]byte
		binary.LittleEndian.PutUint64(tsBuf[:], uint64(r.CreatedAt.UnixNano()))
		if _, err := w.Write(tsBuf[:]); err != nil {
			return err
		}
	}
	return nil
}

func decodeColumnar(data []byte) ([]core.VectorRecord, error) {
	var rows []core.VectorRecord
	buf := bytes.NewReader(data)
	for buf.Len() > 0 {
		var rec core.VectorRecord
		idLen, err := readU32(buf)
		if err != nil {
			return nil, errors.Wrap(err, "decode columnar id length")
		}
		idBytes := make([]byte, idLen)
		if _, err := buf.Read(idBytes); err != nil {
			return nil, errors.Wrap(err, "decode columnar id")
		}
		rec.ID = string(idBytes)

		dim, err := readU32(buf)
		if err != nil {
			return nil, errors.Wrap(err, "decode columnar dim")
		}
		rec.Embedding = make([]float32, dim)
		for i := uint32(0); i < dim; i++ {
			bits, err := readU32(buf)
			if err != nil {
				return nil, errors.Wrap(err, "decode columnar embedding")
			}
			rec.Embedding[i] = math.Float32frombits(bits)
		}

		metaLen, err := readU32(buf)
		if err != nil {
			return nil, errors.Wrap(err, "decode columnar meta length")
		}
		metaBytes := make([]byte, metaLen)
		if _, err := buf.Read(metaBytes); err != nil {
			return nil, errors.Wrap(err, "decode columnar meta")
		}
		rec.Meta = metaBytes

		var tsBuf [8]byte
		if _, err := buf.Read(tsBuf[:]); err != nil {
			return nil, errors.Wrap(err, "decode columnar timestamp")
		}
		ns := int64(binary.LittleEndian.Uint64(tsBuf[:]))
		rec.CreatedAt = time.Unix(0, ns).UTC()

		rows = append(rows, rec)
	}
	return rows, nil
}

func readU32(buf *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := buf.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
