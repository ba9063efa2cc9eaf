package bulkconsume

import (
	"fmt"
	"io"
	"strings"
)

// Format is one of the streamable response formats.
type Format string

const (
	FormatText     Format = "text"
	FormatPath     Format = "path"
	FormatTSV      Format = "tsv"
	FormatNTriples Format = "ntriples"
	FormatNQuads   Format = "nquads"
	FormatJSON     Format = "json"
)

// ParseFormat validates a requested format name and normalizes its
// aliases (tab -> tsv, nt -> ntriples, nq -> nquads, any json* -> json).
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "text":
		return FormatText, nil
	case "path":
		return FormatPath, nil
	case "tsv", "tab":
		return FormatTSV, nil
	case "nt", "ntriples":
		return FormatNTriples, nil
	case "nq", "nquads":
		return FormatNQuads, nil
	default:
		if strings.HasPrefix(strings.ToLower(name), "json") {
			return FormatJSON, nil
		}
		return "", fmt.Errorf("requested format (%s) is invalid for as streamable response.", name)
	}
}

// RequiresSubjectUniqueness reports whether format, combined with history,
// must not mix multiple versions of the same subject within one chunk:
// true for ntriples/nquads with history, false otherwise.
func RequiresSubjectUniqueness(format Format, withHistory bool) bool {
	return withHistory && (format == FormatNTriples || format == FormatNQuads)
}

// Record is the minimal shape a streamed record exposes to a formatter.
// Full payload resolution (the record-body resolver) and the actual
// per-format serialization (the formatter factory's implementations) are
// external collaborators; this core only threads the flags they need.
type Record struct {
	UUID      string
	Path      string
	IndexTime IndexTime
	Data      []byte
}

// FormatterRequest carries everything the external FormatterFactory needs
// to construct a per-request formatter.
type FormatterRequest struct {
	Format            Format
	Host              string
	URI               string
	WithData          bool
	WithMeta          bool
	RequireUniqueness bool
}

// Formatter streams formatted records to an HTTP response body. Writers
// are expected to flush as they go; Close finalizes any trailing framing
// (e.g. a closing JSON bracket).
type Formatter interface {
	WriteRecord(w io.Writer, rec Record) error
	Close(w io.Writer) error
}

// FormatterFactory is the external collaborator that builds a Formatter
// for a resolved FormatterRequest.
type FormatterFactory interface {
	New(req FormatterRequest) (Formatter, error)
}
