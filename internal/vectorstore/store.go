// Package vectorstore defines the Store contract the Tile Builder and
// Query Facade consume: typed collections with vector and scalar
// indexes, chunked upsert, primary-key and range query, and vector
// search. The vector store itself is an external collaborator per the
// spec — this interface is the seam a real deployment would implement
// against Milvus, Qdrant, or similar; internal/vectorstore/duckdbstore
// is the one concrete adapter this repo ships, so the Persistence
// Pipeline and Query Facade have something runnable to be tested
// against.
package vectorstore

import "context"

// FieldType enumerates the column types a collection schema can declare.
type FieldType int

const (
	FieldInt64 FieldType = iota
	FieldFloat
	FieldInt
	FieldString
	FieldVector
	FieldJSON
)

// Metric is the similarity metric for a vector field.
type Metric string

const (
	MetricCosine Metric = "COSINE"
	MetricL2     Metric = "L2"
)

// Field describes one column of a collection schema.
type Field struct {
	Name       string
	Type       FieldType
	Dim        int // vector dimension, only meaningful for FieldVector
	Metric     Metric
	PrimaryKey bool
}

// Schema is the typed shape of a collection, per spec.md §6.2.
type Schema struct {
	Name   string
	Fields []Field
}

// Row is a single entity to upsert or a single result row; keys are
// field names from the schema.
type Row map[string]any

// SearchHit is one result of a vector search, with its distance under
// the field's declared metric.
type SearchHit struct {
	Row      Row
	Distance float64
}

// Store is the vector-store contract. All methods are safe for
// concurrent use; within one call the store may block on network I/O,
// matching §5's suspension-point model.
type Store interface {
	// HasCollection reports whether name currently exists.
	HasCollection(ctx context.Context, name string) (bool, error)

	// ListCollections enumerates every collection currently known to
	// the store, for the Lifecycle Controller's Updater.
	ListCollections(ctx context.Context) ([]string, error)

	// CreateCollection creates (and indexes) a collection from schema.
	// If the collection exists and repopulate is true, it is dropped
	// first; if it exists and repopulate is false, CreateCollection
	// returns the existing collection unchanged (idempotent, per
	// spec.md §3's lifecycle note).
	CreateCollection(ctx context.Context, schema Schema, repopulate bool) error

	// DropCollection deletes a collection outright; used by rollback.
	DropCollection(ctx context.Context, name string) error

	// InsertChunked inserts rows in batches of batchSize, flushing after
	// each batch. On any error it returns immediately without inserting
	// the remaining rows — the caller is responsible for the
	// roll-back-by-drop policy described in spec.md §4.3.
	InsertChunked(ctx context.Context, name string, rows []Row, batchSize int) error

	// Load and Release page a collection in/out of the store's working
	// set, driven by the Lifecycle Controller.
	Load(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error

	// NumEntities returns the row count of a collection.
	NumEntities(ctx context.Context, name string) (int64, error)

	// QueryByPK fetches rows whose primary key is in pks, projecting
	// only the named fields (or all fields when fields is empty).
	QueryByPK(ctx context.Context, name string, pks []int64, fields []string) ([]Row, error)

	// QueryRange fetches rows whose primary key lies in [start, end),
	// used for the contiguous zorder ranges the zorder package produces.
	QueryRange(ctx context.Context, name string, start, end int64, fields []string) ([]Row, error)

	// SearchVector runs a top-limit nearest-neighbor search against
	// field under metric.
	SearchVector(ctx context.Context, name, field string, query []float32, metric Metric, limit int, fields []string) ([]SearchHit, error)

	// StreamEmbeddings walks the rows of an Embeddings Collection in
	// batches of batchSize, calling fn for each batch in primary-key
	// order. This is the Embeddings Pipeline interface from spec.md §4.6
	// — no producer is implemented, only this consumer-facing contract.
	StreamEmbeddings(ctx context.Context, name string, batchSize int, fn func(batch []Row) error) error
}
