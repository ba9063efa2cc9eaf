package bulkconsume

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func ptrTime(v IndexTime) *IndexTime { return &v }

func TestCursorRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		state BulkConsumeState
	}{
		{
			name: "minimal",
			state: BulkConsumeState{
				From:          0,
				ChunkSizeHint: 100,
			},
		},
		{
			name: "with to and filter",
			state: BulkConsumeState{
				From:          1_000_000,
				ToOpt:         ptrTime(2_000_000),
				Path:          "/cm/well",
				Recursive:     true,
				WithHistory:   true,
				WithDeleted:   false,
				ChunkSizeHint: 250,
				FieldFilter:   &FieldFilter{Field: "type", Comparator: "eq", Value: "Person"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := EncodeCursor(tt.state)
			if err != nil {
				t.Fatalf("EncodeCursor: %v", err)
			}

			got, err := DecodeCursor(token)
			if err != nil {
				t.Fatalf("DecodeCursor: %v", err)
			}

			if got.From != tt.state.From {
				t.Errorf("From = %d, want %d", got.From, tt.state.From)
			}
			if (got.ToOpt == nil) != (tt.state.ToOpt == nil) {
				t.Fatalf("ToOpt presence mismatch: got %v, want %v", got.ToOpt, tt.state.ToOpt)
			}
			if got.ToOpt != nil && *got.ToOpt != *tt.state.ToOpt {
				t.Errorf("ToOpt = %d, want %d", *got.ToOpt, *tt.state.ToOpt)
			}
			if got.Path != tt.state.Path {
				t.Errorf("Path = %q, want %q", got.Path, tt.state.Path)
			}
			if got.ChunkSizeHint != tt.state.ChunkSizeHint {
				t.Errorf("ChunkSizeHint = %d, want %d", got.ChunkSizeHint, tt.state.ChunkSizeHint)
			}
		})
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, err := DecodeCursor("not-base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestDecodeCursorRejectsVersionMismatch(t *testing.T) {
	env := envelope{Version: cursorVersion + 1, State: BulkConsumeState{From: 0, ChunkSizeHint: 10}}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	token := base64.URLEncoding.EncodeToString(raw)

	if _, err := DecodeCursor(token); err == nil {
		t.Error("expected error for version mismatch")
	}
}

func TestNextCursorAdvancesOnlyFromAndToOpt(t *testing.T) {
	prev := BulkConsumeState{
		From:          1000,
		Path:          "/cm/well",
		Recursive:     true,
		WithHistory:   true,
		ChunkSizeHint: 50,
	}
	resolved := CurrRange{From: 1000, To: 2000, NextToHint: ptrTime(3000)}

	next := NextCursor(prev, resolved)

	if next.From != 2000 {
		t.Errorf("From = %d, want 2000", next.From)
	}
	if next.ToOpt == nil || *next.ToOpt != 3000 {
		t.Errorf("ToOpt = %v, want 3000", next.ToOpt)
	}
	if next.Path != prev.Path || next.Recursive != prev.Recursive || next.WithHistory != prev.WithHistory || next.ChunkSizeHint != prev.ChunkSizeHint {
		t.Error("NextCursor must preserve session-invariant fields")
	}
}
