package bulkconsume

import "testing"

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"text", "text", FormatText, false},
		{"path", "path", FormatPath, false},
		{"tsv", "tsv", FormatTSV, false},
		{"tab alias", "tab", FormatTSV, false},
		{"nt alias", "nt", FormatNTriples, false},
		{"ntriples", "ntriples", FormatNTriples, false},
		{"nq alias", "nq", FormatNQuads, false},
		{"nquads", "nquads", FormatNQuads, false},
		{"json", "json", FormatJSON, false},
		{"json variant", "jsonld", FormatJSON, false},
		{"case insensitive", "TEXT", FormatText, false},
		{"invalid", "xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequiresSubjectUniqueness(t *testing.T) {
	tests := []struct {
		name        string
		format      Format
		withHistory bool
		want        bool
	}{
		{"ntriples with history", FormatNTriples, true, true},
		{"nquads with history", FormatNQuads, true, true},
		{"ntriples without history", FormatNTriples, false, false},
		{"text with history", FormatText, true, false},
		{"json with history", FormatJSON, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiresSubjectUniqueness(tt.format, tt.withHistory); got != tt.want {
				t.Errorf("RequiresSubjectUniqueness(%q, %v) = %v, want %v", tt.format, tt.withHistory, got, tt.want)
			}
		})
	}
}
