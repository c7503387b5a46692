package store_test

import (
	"context"
	"testing"

	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/store"
)

func TestMemoryGetMissingKeyIsNotFound(t *testing.T) {
	m := store.NewMemory()
	_, err := m.Get(context.Background(), "absent")
	if !cos.IsErrNotFound(err) {
		t.Fatalf("Get(absent) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Put(ctx, "k", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}
}

func TestMemoryAppendConcatenates(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Append(ctx, "wal", []byte("a\n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Append(ctx, "wal", []byte("b\n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := m.Get(ctx, "wal")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "a\nb\n" {
		t.Errorf("Get = %q, want %q", got, "a\nb\n")
	}
}

func TestMemoryListFiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_ = m.Put(ctx, "staged/a/slice-1.jsonl", []byte("x"))
	_ = m.Put(ctx, "staged/a/slice-2.jsonl", []byte("x"))
	_ = m.Put(ctx, "staged/b/slice-1.jsonl", []byte("x"))

	keys, err := m.List(ctx, "staged/a/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List returned %d keys, want 2: %v", len(keys), keys)
	}
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete of absent key should not error: %v", err)
	}
	_ = m.Put(ctx, "k", []byte("x"))
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !cos.IsErrNotFound(err) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryPutCopiesBytesDefensively(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	data := []byte("hello")
	if err := m.Put(ctx, "k", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data[0] = 'H'
	got, _ := m.Get(ctx, "k")
	if string(got) != "hello" {
		t.Errorf("mutation of caller's slice leaked into storage: got %q", got)
	}
}
