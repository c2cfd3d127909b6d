package api

import (
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aeyemap/aeye/internal/apperr"
)

func TestParseIndexes(t *testing.T) {
	got, err := parseIndexes(" 1, 2,3 ,4")
	if err != nil {
		t.Fatalf("parseIndexes: %v", err)
	}
	want := []int64{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("parseIndexes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parseIndexes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestParseIndexesRejectsNonInt(t *testing.T) {
	if _, err := parseIndexes("1,abc"); err == nil {
		t.Fatal("expected an error for a non-integer index")
	}
}

func TestMapErrStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperr.NewNotFound("missing"), 404},
		{"bad request", apperr.NewBadRequest("bad"), 400},
		{"vector store", apperr.WrapVectorStore(apperr.NewBadRequest("boom")), 505},
		{"fatal", apperr.WrapFatal("boom"), 505},
		{"transient", apperr.WrapTransient(apperr.NewBadRequest("boom")), 503},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			statusErr, ok := mapErr(c.err).(huma.StatusError)
			if !ok {
				t.Fatalf("mapErr(%v) is not a huma.StatusError", c.err)
			}
			if statusErr.GetStatus() != c.want {
				t.Errorf("mapErr(%v).GetStatus() = %d, want %d", c.err, statusErr.GetStatus(), c.want)
			}
		})
	}
}
