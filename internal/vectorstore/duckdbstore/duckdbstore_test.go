package duckdbstore

import (
	"testing"

	"github.com/aeyemap/aeye/internal/vectorstore"
)

func TestColumnType(t *testing.T) {
	cases := []struct {
		field vectorstore.Field
		want  string
		isErr bool
	}{
		{vectorstore.Field{Type: vectorstore.FieldInt64}, "BIGINT", false},
		{vectorstore.Field{Type: vectorstore.FieldInt}, "INTEGER", false},
		{vectorstore.Field{Type: vectorstore.FieldFloat}, "DOUBLE", false},
		{vectorstore.Field{Type: vectorstore.FieldString}, "VARCHAR", false},
		{vectorstore.Field{Type: vectorstore.FieldJSON}, "JSON", false},
		{vectorstore.Field{Name: "embedding", Type: vectorstore.FieldVector, Dim: 512}, "FLOAT[512]", false},
		{vectorstore.Field{Name: "embedding", Type: vectorstore.FieldVector, Dim: 0}, "", true},
	}
	for _, c := range cases {
		got, err := columnType(c.field)
		if c.isErr {
			if err == nil {
				t.Errorf("columnType(%+v): expected error, got nil", c.field)
			}
			continue
		}
		if err != nil {
			t.Errorf("columnType(%+v): %v", c.field, err)
			continue
		}
		if got != c.want {
			t.Errorf("columnType(%+v) = %q, want %q", c.field, got, c.want)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	cases := map[string]string{
		"index":           `"index"`,
		"paintings_tiles": `"paintings_tiles"`,
		`weird"name`:      `"weird""name"`,
	}
	for in, want := range cases {
		if got := quoteIdent(in); got != want {
			t.Errorf("quoteIdent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncodeValueVector(t *testing.T) {
	got, err := encodeValue([]float32{1, 2.5, -3})
	if err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if got != "[1,2.5,-3]" {
		t.Errorf("encodeValue(vector) = %q, want %q", got, "[1,2.5,-3]")
	}
}

func TestEncodeValueJSON(t *testing.T) {
	got, err := encodeValue(map[string]any{"a": float64(1)})
	if err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("encodeValue(map) = %q, want %q", got, `{"a":1}`)
	}
}

func TestEncodeValuePassthrough(t *testing.T) {
	got, err := encodeValue(int64(42))
	if err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if got != int64(42) {
		t.Errorf("encodeValue(int64) = %v, want 42", got)
	}
}

func TestProjectionDefaultsToStar(t *testing.T) {
	if got := projection(nil); got != "*" {
		t.Errorf("projection(nil) = %q, want \"*\"", got)
	}
	if got := projection([]string{"index", "path"}); got != `"index", "path"` {
		t.Errorf("projection([index,path]) = %q, want %q", got, `"index", "path"`)
	}
}
