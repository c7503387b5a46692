package main

import (
	"context"

	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/core/meta"
	"github.com/roylkng/genai-vectors/ingest"
	"github.com/roylkng/genai-vectors/query"
	"github.com/roylkng/genai-vectors/shard"
	"github.com/roylkng/genai-vectors/slice"
	"github.com/roylkng/genai-vectors/store"
	"github.com/roylkng/genai-vectors/xact"
)

// service wires the Object Store Adapter, Index Catalog, Ingest Buffer,
// Slice Writer, Shard Builder, Manifest Manager, and Query Executor into
// the single pipeline the design describes. The HTTP/RPC surface that
// would drive this (CRUD, auth, request parsing) is out of scope per
// the design and lives outside this module.
type service struct {
	adapter     store.Adapter
	catalog     *meta.Catalog
	manifests   *meta.ManifestStore
	buffer      *ingest.Buffer
	writer      *slice.Writer
	builder     *shard.Builder
	executor    *query.Executor
	coordinator *xact.Coordinator
}

func newService(cfg *processConfig, adapter store.Adapter) *service {
	catalog := meta.NewCatalog(adapter)
	manifests := meta.NewManifestStore(adapter)
	writer := slice.NewWriter(adapter, cfg.sliceFormat(), "")
	builder := shard.NewBuilder(adapter, catalog, manifests, cfg.ShardMax)
	executor := query.NewExecutor(adapter, manifests)

	svc := &service{
		adapter:   adapter,
		catalog:   catalog,
		manifests: manifests,
		writer:    writer,
		builder:   builder,
		executor:  executor,
	}

	svc.coordinator = xact.NewCoordinator(adapter, builder.Process)
	svc.buffer = ingest.NewBuffer(adapter, cfg.RowLimit, cfg.ageLimit(), svc.onFlush, svc.validate)
	return svc
}

// validate is ingest.ValidateFunc: it resolves the index's config (or
// derives a default from the first record's dimension) and checks the
// whole batch against it before the buffer's WAL append.
func (s *service) validate(ctx context.Context, index string, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	cfg, err := s.catalog.GetOrCreate(ctx, index, len(records[0].Embedding))
	if err != nil {
		return err
	}
	return cfg.ValidateBatch(records)
}

// onFlush is ingest.FlushFunc: it stages the extracted rows as a slice and
// hands that slice to the per-index coordinator for shard building.
func (s *service) onFlush(ctx context.Context, index string, rows []core.VectorRecord) {
	key, err := s.writer.Write(ctx, index, rows)
	if err != nil {
		return
	}
	s.coordinator.TriggerSlice(ctx, index, key)
}

func (s *service) Append(ctx context.Context, index string, records []core.VectorRecord) error {
	return s.buffer.Append(ctx, index, records)
}

func (s *service) Search(ctx context.Context, req query.Request) ([]query.Result, error) {
	return s.executor.Search(ctx, req)
}
