package qpparser

import (
	"context"
	"testing"

	"github.com/cm-well/bulk-consumer/modules/bulkconsume/fieldcache"
)

func TestParse(t *testing.T) {
	cache, err := fieldcache.NewLRU(100)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	p := New(cache)
	ctx := context.Background()

	tests := []struct {
		name      string
		qp        string
		wantLeaf  bool
		wantField string
		wantComp  string
		wantValue string
		wantErr   bool
	}{
		{"empty", "", false, "", "", "", false},
		{"single eq clause", "type:Person", true, "type", "eq", "Person", false},
		{"gte clause", "mtime>=1000", true, "mtime", "gte", "1000", false},
		{"malformed clause", "no-comparator-here", false, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(ctx, tt.qp)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantLeaf {
				if !got.IsEmpty() {
					t.Errorf("expected an empty filter, got %+v", got)
				}
				return
			}
			if got.Field != tt.wantField || got.Comparator != tt.wantComp || got.Value != tt.wantValue {
				t.Errorf("got %+v, want field=%q comparator=%q value=%q", got, tt.wantField, tt.wantComp, tt.wantValue)
			}
		})
	}
}

func TestParseConjoinsMultipleClauses(t *testing.T) {
	cache, err := fieldcache.NewLRU(100)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	p := New(cache)

	got, err := p.Parse(context.Background(), "type:Person,mtime>=1000")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("expected 2 conjoined clauses, got %d", len(got.Must))
	}
}
