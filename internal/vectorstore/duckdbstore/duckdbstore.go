// Package duckdbstore is the one concrete vectorstore.Store this repo
// ships: it backs every collection family with a DuckDB table, using
// DuckDB's native FLOAT[n] array columns and array_distance /
// array_cosine_distance functions in place of a dedicated vector-search
// engine. It plays the same role internal/db/duckdb.go played for the
// teacher's spatial layer — a single process-wide *sql.DB, opened once —
// adapted here to the embedding/cluster/tile schemas of original_source's
// collections.py instead of geo features.
//
// SearchVector has no scalar fallback: called on a field that is not a
// FLOAT[n] array column, the DuckDB query fails and that error is
// returned as a vector-store error.
package duckdbstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/vectorstore"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config points at the on-disk DuckDB file backing the store.
type Config struct {
	DataDir string
	DBName  string
}

func open(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			initErr = fmt.Errorf("duckdbstore: create data dir: %w", err)
			return
		}
		path := filepath.Join(dir, cfg.DBName+".duckdb")
		instance, initErr = sql.Open("duckdb", path)
		if initErr != nil {
			return
		}
		if _, err := instance.Exec("INSTALL json; LOAD json;"); err != nil {
			logrus.WithError(err).Warn("duckdbstore: json extension load failed, continuing")
		}
	})
	return instance, initErr
}

// Store is a vectorstore.Store backed by DuckDB.
type Store struct {
	db *sql.DB
}

// New opens (or reuses) the process-wide DuckDB connection and returns a
// Store over it.
func New(cfg Config) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection. Only the process owning the
// Store should call this, typically at shutdown.
func (s *Store) Close() error {
	return s.db.Close()
}

func columnType(f vectorstore.Field) (string, error) {
	switch f.Type {
	case vectorstore.FieldInt64:
		return "BIGINT", nil
	case vectorstore.FieldInt:
		return "INTEGER", nil
	case vectorstore.FieldFloat:
		return "DOUBLE", nil
	case vectorstore.FieldString:
		return "VARCHAR", nil
	case vectorstore.FieldJSON:
		return "JSON", nil
	case vectorstore.FieldVector:
		if f.Dim <= 0 {
			return "", fmt.Errorf("duckdbstore: vector field %q needs a positive Dim", f.Name)
		}
		return fmt.Sprintf("FLOAT[%d]", f.Dim), nil
	default:
		return "", fmt.Errorf("duckdbstore: unknown field type for %q", f.Name)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// HasCollection reports whether a table named name exists.
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM duckdb_tables() WHERE table_name = ?`, name)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, apperr.WrapVectorStore(err)
	}
	return n > 0, nil
}

// ListCollections enumerates every table currently in the database.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_name FROM duckdb_tables() ORDER BY table_name`)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, apperr.WrapVectorStore(err)
		}
		names = append(names, n)
	}
	return names, apperr.WrapVectorStore(rows.Err())
}

// CreateCollection creates a table for schema. repopulate=true drops any
// existing table of the same name first.
func (s *Store) CreateCollection(ctx context.Context, schema vectorstore.Schema, repopulate bool) error {
	if repopulate {
		if err := s.DropCollection(ctx, schema.Name); err != nil {
			return err
		}
	} else if has, err := s.HasCollection(ctx, schema.Name); err != nil {
		return err
	} else if has {
		return nil
	}

	cols := make([]string, 0, len(schema.Fields))
	var pk string
	for _, f := range schema.Fields {
		typ, err := columnType(f)
		if err != nil {
			return apperr.NewBadRequest("%s", err.Error())
		}
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), typ))
		if f.PrimaryKey {
			pk = f.Name
		}
	}
	if pk != "" {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(pk)))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(schema.Name), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return apperr.WrapVectorStore(err)
	}
	return nil
}

// DropCollection drops a table if it exists.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(name))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return apperr.WrapVectorStore(err)
	}
	return nil
}

func encodeValue(v any) (any, error) {
	switch x := v.(type) {
	case []float32:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = fmt.Sprintf("%v", f)
		}
		return fmt.Sprintf("[%s]", strings.Join(parts, ",")), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// InsertChunked inserts rows in batches of batchSize inside one
// transaction per batch, so a failed batch never leaves a partial insert
// visible to readers.
func (s *Store) InsertChunked(ctx context.Context, name string, rows []vectorstore.Row, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	// Column order is taken from the first row and held fixed for the
	// whole insert; every row must carry the same keys.
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = quoteIdent(c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertBatch(ctx, stmt, cols, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, stmt string, cols []string, batch []vectorstore.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.WrapVectorStore(err)
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return apperr.WrapVectorStore(err)
	}
	defer prepared.Close()

	for _, row := range batch {
		args := make([]any, len(cols))
		for i, c := range cols {
			v, err := encodeValue(row[c])
			if err != nil {
				return apperr.WrapVectorStore(err)
			}
			args[i] = v
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return apperr.WrapVectorStore(err)
		}
	}
	return apperr.WrapVectorStore(tx.Commit())
}

// Flush is a no-op for DuckDB: InsertChunked commits per batch already.
func (s *Store) Flush(ctx context.Context, name string) error { return nil }

// Load is a no-op: DuckDB tables are always resident once the file is
// open. The Lifecycle Controller still calls this so its counter and
// metric bookkeeping behave the same regardless of backend.
func (s *Store) Load(ctx context.Context, name string) error { return nil }

// Release is a no-op for the same reason.
func (s *Store) Release(ctx context.Context, name string) error { return nil }

// NumEntities returns the row count of a table.
func (s *Store) NumEntities(ctx context.Context, name string) (int64, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", quoteIdent(name)))
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, apperr.WrapVectorStore(err)
	}
	return n, nil
}

func scanRows(rows *sql.Rows) ([]vectorstore.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}

	var out []vectorstore.Row
	for rows.Next() {
		ptrs := make([]any, len(cols))
		vals := make([]any, len(cols))
		for i := range ptrs {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.WrapVectorStore(err)
		}
		r := make(vectorstore.Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, apperr.WrapVectorStore(rows.Err())
}

func projection(fields []string) string {
	if len(fields) == 0 {
		return "*"
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteIdent(f)
	}
	return strings.Join(quoted, ", ")
}

// QueryByPK fetches rows by primary key. Every collection in the data
// model names its primary key column "index" (spec.md §6.2), so that is
// the column queried here regardless of the collection.
func (s *Store) QueryByPK(ctx context.Context, name string, pks []int64, fields []string) ([]vectorstore.Row, error) {
	if len(pks) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(pks))
	args := make([]any, len(pks))
	for i, pk := range pks {
		placeholders[i] = "?"
		args[i] = pk
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		projection(fields), quoteIdent(name), quoteIdent("index"), strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryRange fetches rows whose pk lies in [start, end).
func (s *Store) QueryRange(ctx context.Context, name string, start, end int64, fields []string) ([]vectorstore.Row, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= ? AND %s < ? ORDER BY %s",
		projection(fields), quoteIdent(name), quoteIdent("index"), quoteIdent("index"), quoteIdent("index"))
	rows, err := s.db.QueryContext(ctx, stmt, start, end)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// SearchVector runs a top-limit nearest-neighbor search over field using
// DuckDB's array_cosine_distance / array_distance, matching the two
// metrics spec.md §6.2 requires.
func (s *Store) SearchVector(ctx context.Context, name, field string, query []float32, metric vectorstore.Metric, limit int, fields []string) ([]vectorstore.SearchHit, error) {
	fn := "array_distance"
	if metric == vectorstore.MetricCosine {
		fn = "array_cosine_distance"
	}
	vec, err := encodeValue(query)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}

	stmt := fmt.Sprintf(
		"SELECT %s, %s(%s, ?::FLOAT[%d]) AS __distance FROM %s ORDER BY __distance ASC LIMIT ?",
		projection(fields), fn, quoteIdent(field), len(query), quoteIdent(name))

	rows, err := s.db.QueryContext(ctx, stmt, vec, limit)
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperr.WrapVectorStore(err)
	}

	var hits []vectorstore.SearchHit
	for rows.Next() {
		ptrs := make([]any, len(cols))
		vals := make([]any, len(cols))
		for i := range ptrs {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.WrapVectorStore(err)
		}
		hit := vectorstore.SearchHit{Row: make(vectorstore.Row, len(cols)-1)}
		for i, c := range cols {
			if c == "__distance" {
				hit.Distance, _ = vals[i].(float64)
				continue
			}
			hit.Row[c] = vals[i]
		}
		hits = append(hits, hit)
	}
	return hits, apperr.WrapVectorStore(rows.Err())
}

// StreamEmbeddings walks name in primary-key order, batchSize rows at a
// time, calling fn per batch.
func (s *Store) StreamEmbeddings(ctx context.Context, name string, batchSize int, fn func(batch []vectorstore.Row) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var after int64 = -1
	for {
		stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s > ? ORDER BY %s LIMIT ?", quoteIdent(name), quoteIdent("index"), quoteIdent("index"))
		rows, err := s.db.QueryContext(ctx, stmt, after, batchSize)
		if err != nil {
			return apperr.WrapVectorStore(err)
		}
		batch, err := scanRows(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		pk, ok := batch[len(batch)-1]["index"].(int64)
		if !ok {
			return apperr.WrapFatal("duckdbstore: table %q has no int64 index column", name)
		}
		after = pk
		if len(batch) < batchSize {
			return nil
		}
	}
}

var _ vectorstore.Store = (*Store)(nil)
