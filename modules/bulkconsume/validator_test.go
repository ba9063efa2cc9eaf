package bulkconsume

import (
	"strings"
	"testing"
)

func TestValidateAgainstCursor(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawParams
		wantErr bool
		wantMsg string
	}{
		{
			name:    "no conflicts",
			raw:     RawParams{},
			wantErr: false,
		},
		{
			name:    "qp conflicts",
			raw:     RawParams{QPSet: true},
			wantErr: true,
			wantMsg: "`qp` is determined in the beginning of the iteration and cannot be supplied alongside position",
		},
		{
			name:    "with-history conflicts",
			raw:     RawParams{WithHistorySet: true},
			wantErr: true,
			wantMsg: "`with-history` is determined in the beginning of the iteration",
		},
		{
			name:    "length-hint conflicts",
			raw:     RawParams{LengthHintSet: true},
			wantErr: true,
			wantMsg: "`length-hint`",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAgainstCursor(tt.raw)
			if tt.wantErr && err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.wantErr {
				got := err.Error()
				if !strings.Contains(got, tt.wantMsg) {
					t.Errorf("error = %q, want substring %q", got, tt.wantMsg)
				}
			}
		})
	}
}
