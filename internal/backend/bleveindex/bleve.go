// Package bleveindex is a backend storing each index in its own Bleve v2
// index. Servers without a path keep their indexes in memory.
package bleveindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	bq "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
)

// ID is the backend id used in server configuration.
const ID = "bleve"

// Register adds the bleve backend to reg.
func Register(reg *backend.Registry) {
	reg.Register(ID, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg)
	})
}

// Backend implements backend.Backend on Bleve.
type Backend struct {
	mu      sync.RWMutex
	server  string
	path    string
	logger  *slog.Logger
	indexes map[string]bleve.Index
	closed  bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend. An empty cfg.Path keeps every index in memory.
func New(cfg backend.Config) (*Backend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, errors.New(errors.ErrCodeBackend, fmt.Sprintf("failed to create directory %s", cfg.Path), err)
		}
	}
	return &Backend{
		server:  cfg.ServerID,
		path:    cfg.Path,
		logger:  logger,
		indexes: make(map[string]bleve.Index),
	}, nil
}

func (b *Backend) indexPath(indexID string) string {
	if b.path == "" {
		return ""
	}
	return filepath.Join(b.path, indexID+".bleve")
}

// validateIndexIntegrity checks a Bleve index directory before opening.
// Returns nil if valid or absent.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// open opens or creates the Bleve index of schema. A corrupted index on
// disk is cleared and recreated empty; its items are reindexed from the
// tracker.
func (b *Backend) open(schema field.Schema) (bleve.Index, error) {
	m, err := buildMapping(schema)
	if err != nil {
		return nil, err
	}

	path := b.indexPath(schema.IndexID())
	if path == "" {
		return bleve.NewMemOnly(m)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		b.logger.Warn("bleve_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		return bleve.New(path, m)
	case err != nil && isCorruptionError(err):
		b.logger.Warn("bleve_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, m)
	}
	return idx, err
}

func (b *Backend) get(indexID string) (bleve.Index, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.New(errors.ErrCodeBackend, "backend is closed", nil)
	}
	idx, ok := b.indexes[indexID]
	if !ok {
		return nil, errors.New(errors.ErrCodeBackend, fmt.Sprintf("index %q is not added to server %q", indexID, b.server), nil)
	}
	return idx, nil
}

// AddIndex opens the index, reusing data on disk.
func (b *Backend) AddIndex(_ context.Context, schema field.Schema) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indexes[schema.IndexID()]; ok {
		return nil
	}
	idx, err := b.open(schema)
	if err != nil {
		return errors.New(errors.ErrCodeBackend, fmt.Sprintf("failed to open index %q", schema.IndexID()), err)
	}
	b.indexes[schema.IndexID()] = idx
	return nil
}

// UpdateIndex recreates the index with the new field mapping. Bleve
// mappings are fixed at creation, so the data is always dropped.
func (b *Backend) UpdateIndex(ctx context.Context, schema field.Schema) (bool, error) {
	if err := b.RemoveIndex(ctx, schema.IndexID()); err != nil {
		return false, err
	}
	if err := b.AddIndex(ctx, schema); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveIndex closes the index and deletes its files.
func (b *Backend) RemoveIndex(_ context.Context, indexID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[indexID]; ok {
		delete(b.indexes, indexID)
		if err := idx.Close(); err != nil {
			b.logger.Warn("bleve_index_close_failed",
				slog.String("index", indexID),
				slog.String("error", err.Error()))
		}
	}
	if path := b.indexPath(indexID); path != "" {
		if err := os.RemoveAll(path); err != nil {
			return errors.New(errors.ErrCodeBackend, fmt.Sprintf("failed to remove %s", path), err)
		}
	}
	return nil
}

// IndexItems stores items in one batch. Items whose document cannot be
// built are left out of the returned ids.
func (b *Backend) IndexItems(_ context.Context, schema field.Schema, items []*field.Item) ([]item.ID, error) {
	if len(items) == 0 {
		return nil, nil
	}
	idx, err := b.get(schema.IndexID())
	if err != nil {
		return nil, err
	}

	batch := idx.NewBatch()
	indexed := make([]item.ID, 0, len(items))
	for _, it := range items {
		if err := batch.Index(it.ID.String(), document(schema, it)); err != nil {
			b.logger.Warn("bleve_document_rejected",
				slog.String("index", schema.IndexID()),
				slog.String("item", it.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		indexed = append(indexed, it.ID)
	}

	if err := idx.Batch(batch); err != nil {
		return nil, errors.New(errors.ErrCodeBackend, "failed to execute batch", err)
	}
	return indexed, nil
}

// DeleteItems removes ids from the index.
func (b *Backend) DeleteItems(_ context.Context, schema field.Schema, ids []item.ID) error {
	if len(ids) == 0 {
		return nil
	}
	idx, err := b.get(schema.IndexID())
	if err != nil {
		return err
	}
	return deleteDocs(idx, item.Strings(ids))
}

// DeleteAllItems removes every document, or those of one datasource.
func (b *Backend) DeleteAllItems(ctx context.Context, schema field.Schema, datasource string) error {
	idx, err := b.get(schema.IndexID())
	if err != nil {
		return err
	}

	count, err := idx.DocCount()
	if err != nil {
		return errors.New(errors.ErrCodeBackend, "failed to count documents", err)
	}
	if count == 0 {
		return nil
	}

	var q bq.Query = bleve.NewMatchAllQuery()
	if datasource != "" {
		tq := bleve.NewTermQuery(datasource)
		tq.SetField(fieldDatasource)
		q = tq
	}
	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	req.Fields = []string{}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return errors.New(errors.ErrCodeBackend, "failed to list documents", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return deleteDocs(idx, ids)
}

func deleteDocs(idx bleve.Index, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := idx.Batch(batch); err != nil {
		return errors.New(errors.ErrCodeBackend, "failed to delete documents", err)
	}
	return nil
}

// DocCount returns the number of documents in an index.
func (b *Backend) DocCount(indexID string) (uint64, error) {
	idx, err := b.get(indexID)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Indexes returns the ids of the open indexes, sorted.
func (b *Backend) Indexes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.indexes))
	for id := range b.indexes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SupportsDataType reports whether t can be indexed. Every field type is.
func (b *Backend) SupportsDataType(t field.Type) bool {
	return t.Valid()
}

// SupportsFeature reports optional capabilities.
func (b *Backend) SupportsFeature(f backend.Feature) bool {
	switch f {
	case backend.FeatureFacets, backend.FeatureDatasourceDelete:
		return true
	}
	return false
}

// Close closes every open index.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for id, idx := range b.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.indexes, id)
	}
	return firstErr
}
