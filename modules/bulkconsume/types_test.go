package bulkconsume

import "testing"

func TestWithTimeBoundWrapsTopLevelShould(t *testing.T) {
	disjunction := FieldFilter{Should: []FieldFilter{
		{Field: "type", Comparator: "eq", Value: "Person"},
		{Field: "type", Comparator: "eq", Value: "Organization"},
	}}

	bounded := disjunction.WithTimeBound(100, 200)

	if len(bounded.Must) != 2 {
		t.Fatalf("expected 2 top-level Must clauses (wrapped filter + time bound), got %d", len(bounded.Must))
	}

	wrapped := bounded.Must[0]
	if len(wrapped.Must) != 1 || len(wrapped.Must[0].Should) != 2 {
		t.Fatalf("expected the original Should to be wrapped inside a Must, got %+v", wrapped)
	}

	timeClause := bounded.Must[1]
	if timeClause.Field != "indexTime" {
		t.Fatalf("expected a direct indexTime clause, got %+v", timeClause)
	}
}

func TestWithTimeBoundLeavesConjunctionsUnwrapped(t *testing.T) {
	conjunction := FieldFilter{Must: []FieldFilter{
		{Field: "type", Comparator: "eq", Value: "Person"},
	}}

	bounded := conjunction.WithTimeBound(100, 200)

	if len(bounded.Must) != 2 {
		t.Fatalf("expected 2 top-level Must clauses, got %d", len(bounded.Must))
	}
	if bounded.Must[0].Field != "type" {
		t.Fatalf("expected the original leaf unwrapped, got %+v", bounded.Must[0])
	}
}

func TestWithTimeBoundOnEmptyFilter(t *testing.T) {
	bounded := FieldFilter{}.WithTimeBound(100, 200)

	if len(bounded.Must) != 2 {
		t.Fatalf("expected exactly the time bound's 2 Must clauses, got %d", len(bounded.Must))
	}
}

func TestBulkConsumeStateValidate(t *testing.T) {
	tests := []struct {
		name    string
		state   BulkConsumeState
		wantErr bool
	}{
		{"valid minimal", BulkConsumeState{From: 0, ChunkSizeHint: 1}, false},
		{"negative from", BulkConsumeState{From: -1, ChunkSizeHint: 1}, true},
		{"zero chunk size hint", BulkConsumeState{From: 0, ChunkSizeHint: 0}, true},
		{"to not greater than from", BulkConsumeState{From: 100, ToOpt: ptrTime(100), ChunkSizeHint: 1}, true},
		{"to greater than from", BulkConsumeState{From: 100, ToOpt: ptrTime(200), ChunkSizeHint: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestPathFilterIsAbsent(t *testing.T) {
	tests := []struct {
		name string
		pf   PathFilter
		want bool
	}{
		{"root recursive", PathFilter{Path: "/", Recursive: true}, true},
		{"empty recursive", PathFilter{Path: "", Recursive: true}, true},
		{"root non-recursive", PathFilter{Path: "/", Recursive: false}, false},
		{"specific path recursive", PathFilter{Path: "/cm/well", Recursive: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pf.IsAbsent(); got != tt.want {
				t.Errorf("IsAbsent() = %v, want %v", got, tt.want)
			}
		})
	}
}
