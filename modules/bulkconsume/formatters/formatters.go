// Package formatters is the default implementation of
// bulkconsume.FormatterFactory. Operators with richer format needs are
// expected to supply their own bulkconsume.FormatterFactory; this package
// is the always-available default a binary can start with.
package formatters

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cm-well/bulk-consumer/modules/bulkconsume"
)

// Factory builds the default set of streamable formatters.
type Factory struct{}

// New returns a Factory.
func New() *Factory { return &Factory{} }

// New implements bulkconsume.FormatterFactory.
func (Factory) New(req bulkconsume.FormatterRequest) (bulkconsume.Formatter, error) {
	switch req.Format {
	case bulkconsume.FormatText:
		return &textFormatter{}, nil
	case bulkconsume.FormatPath:
		return &pathFormatter{}, nil
	case bulkconsume.FormatTSV:
		return &tsvFormatter{withData: req.WithData}, nil
	case bulkconsume.FormatNTriples:
		return newRDFFormatter(req, false), nil
	case bulkconsume.FormatNQuads:
		return newRDFFormatter(req, true), nil
	case bulkconsume.FormatJSON:
		return &jsonFormatter{withData: req.WithData, withMeta: req.WithMeta, host: req.Host, uri: req.URI}, nil
	default:
		return nil, fmt.Errorf("no formatter registered for format %q", req.Format)
	}
}

// textFormatter writes one uuid per line.
type textFormatter struct{}

func (f *textFormatter) WriteRecord(w io.Writer, rec bulkconsume.Record) error {
	_, err := fmt.Fprintln(w, rec.UUID)
	return err
}

func (f *textFormatter) Close(io.Writer) error { return nil }

// pathFormatter writes one record path per line.
type pathFormatter struct{}

func (f *pathFormatter) WriteRecord(w io.Writer, rec bulkconsume.Record) error {
	_, err := fmt.Fprintln(w, rec.Path)
	return err
}

func (f *pathFormatter) Close(io.Writer) error { return nil }

// tsvFormatter writes tab-separated path, indexTime, and optionally the
// raw record data.
type tsvFormatter struct {
	withData bool
}

func (f *tsvFormatter) WriteRecord(w io.Writer, rec bulkconsume.Record) error {
	if f.withData {
		_, err := fmt.Fprintf(w, "%s\t%d\t%s\n", rec.Path, rec.IndexTime, rec.Data)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\t%d\n", rec.Path, rec.IndexTime)
	return err
}

func (f *tsvFormatter) Close(io.Writer) error { return nil }

// jsonFormatter streams a JSON array of records.
type jsonFormatter struct {
	withData bool
	withMeta bool
	host     string
	uri      string
	wrote    bool
}

type jsonRecord struct {
	UUID      string `json:"uuid"`
	Path      string `json:"path"`
	IndexTime int64  `json:"indexTime"`
	Data      string `json:"data,omitempty"`
	Host      string `json:"host,omitempty"`
	URI       string `json:"uri,omitempty"`
}

func (f *jsonFormatter) WriteRecord(w io.Writer, rec bulkconsume.Record) error {
	if !f.wrote {
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		f.wrote = true
	} else {
		if _, err := io.WriteString(w, ","); err != nil {
			return err
		}
	}

	out := jsonRecord{UUID: rec.UUID, Path: rec.Path, IndexTime: rec.IndexTime}
	if f.withData {
		out.Data = string(rec.Data)
	}
	if f.withMeta {
		out.Host = f.host
		out.URI = f.uri
	}

	return json.NewEncoder(w).Encode(out)
}

func (f *jsonFormatter) Close(w io.Writer) error {
	if !f.wrote {
		_, err := io.WriteString(w, "[]")
		return err
	}
	_, err := io.WriteString(w, "]")
	return err
}

// rdfFormatter writes N-Triples or N-Quads lines, enforcing subject
// uniqueness within the chunk when req.RequireUniqueness is set.
type rdfFormatter struct {
	quads     bool
	requireUQ bool
	seenSubj  map[string]struct{}
	graph     string
}

func newRDFFormatter(req bulkconsume.FormatterRequest, quads bool) *rdfFormatter {
	return &rdfFormatter{
		quads:     quads,
		requireUQ: req.RequireUniqueness,
		seenSubj:  make(map[string]struct{}),
		graph:     strings.TrimSuffix(req.Host+req.URI, "/"),
	}
}

func (f *rdfFormatter) WriteRecord(w io.Writer, rec bulkconsume.Record) error {
	if f.requireUQ {
		if _, dup := f.seenSubj[rec.Path]; dup {
			return nil
		}
		f.seenSubj[rec.Path] = struct{}{}
	}

	subject := fmt.Sprintf("<%s>", rec.Path)
	if f.quads {
		_, err := fmt.Fprintf(w, "%s <http://purl.org/dc/terms/modified> \"%d\" <%s> .\n", subject, rec.IndexTime, f.graph)
		return err
	}
	_, err := fmt.Fprintf(w, "%s <http://purl.org/dc/terms/modified> \"%d\" .\n", subject, rec.IndexTime)
	return err
}

func (f *rdfFormatter) Close(io.Writer) error { return nil }
