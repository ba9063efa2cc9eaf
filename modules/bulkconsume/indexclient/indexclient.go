// Package indexclient is the HTTP adapter to the external thin-search
// index and record store: the two collaborators the coordinator only ever
// talks to over the wire.
package indexclient

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/cm-well/bulk-consumer/modules/bulkconsume"
)

// Config holds the connection settings for a single thin-search/record
// store endpoint.
type Config struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RegisterFlagsAndApplyDefaults registers flags for Config under prefix.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Endpoint, prefix+"endpoint", "http://localhost:9000", "Base URL of the thin-search/record-store index.")
	f.DurationVar(&c.Timeout, prefix+"timeout", 10*time.Second, "Timeout for a single probe or scroll request.")
}

// Client is an HTTP client implementing bulkconsume.Prober,
// bulkconsume.ScrollSource and bulkconsume.RecordBodyResolver against the
// external index's thin-search and scroll APIs.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Client from cfg.
func New(cfg Config, logger log.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type thinSearchRequest struct {
	Path        string                  `json:"path,omitempty"`
	Recursive   bool                    `json:"recursive,omitempty"`
	FieldFilter bulkconsume.FieldFilter `json:"fieldFilter,omitempty"`
	WithHistory bool                    `json:"withHistory,omitempty"`
	WithDeleted bool                    `json:"withDeleted,omitempty"`
	Offset      int                     `json:"offset"`
	Limit       int                     `json:"limit"`
	Sort        string                  `json:"sort,omitempty"`
}

type thinSearchResponse struct {
	Total   int64 `json:"total"`
	Results []struct {
		IndexTime int64 `json:"indexTime"`
	} `json:"results"`
}

// Probe implements bulkconsume.Prober by issuing a thin (metadata-only)
// search against the index.
func (c *Client) Probe(ctx context.Context, params bulkconsume.ProbeParams) (bulkconsume.ProbeResult, error) {
	body := thinSearchRequest{
		FieldFilter: params.FieldFilter,
		WithHistory: params.WithHistory,
		WithDeleted: params.WithDeleted,
		Offset:      params.Pagination.Offset,
		Limit:       params.Pagination.Limit,
	}
	if pf := (bulkconsume.PathFilter{Path: params.Path, Recursive: params.Recursive}); !pf.IsAbsent() {
		body.Path = pf.Path
		body.Recursive = pf.Recursive
	}
	if params.Sort == bulkconsume.SortIndexTimeAsc {
		body.Sort = "indexTime:asc"
	}

	var resp thinSearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/_search/thin", body, &resp); err != nil {
		return bulkconsume.ProbeResult{}, err
	}

	result := bulkconsume.ProbeResult{Total: resp.Total}
	if len(resp.Results) > 0 {
		result.HasFirstRecord = true
		result.FirstRecordTime = resp.Results[0].IndexTime
	}
	return result, nil
}

type scrollRequest struct {
	Path        string                  `json:"path,omitempty"`
	Recursive   bool                    `json:"recursive,omitempty"`
	FieldFilter bulkconsume.FieldFilter `json:"fieldFilter,omitempty"`
	WithHistory bool                    `json:"withHistory,omitempty"`
	WithDeleted bool                    `json:"withDeleted,omitempty"`
	From        bulkconsume.IndexTime   `json:"from"`
	To          bulkconsume.IndexTime   `json:"to"`
}

type scrollResponseEnvelope struct {
	Hits    uint64 `json:"hits"`
	Results []struct {
		UUID      string `json:"uuid"`
		Path      string `json:"path"`
		IndexTime int64  `json:"indexTime"`
	} `json:"results"`
}

// Scroll implements bulkconsume.ScrollSource by requesting every record
// in [req.From, req.To) in one call and replaying it onto a channel. A
// parallelized record source is an ecosystem-specific extension of this
// same protocol and is wired by operators that need it; this
// implementation is the default, always-correct fallback.
func (c *Client) Scroll(ctx context.Context, req bulkconsume.ScrollRequest) (bulkconsume.ScrollResult, error) {
	body := scrollRequest{
		FieldFilter: req.Params.FieldFilter,
		WithHistory: req.Params.WithHistory,
		WithDeleted: req.Params.WithDeleted,
		From:        req.From,
		To:          req.To,
	}
	if pf := req.Params.PathFilter(); !pf.IsAbsent() {
		body.Path = pf.Path
		body.Recursive = pf.Recursive
	}

	var resp scrollResponseEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/_search/scroll", body, &resp); err != nil {
		return bulkconsume.ScrollResult{}, err
	}

	records := make(chan bulkconsume.Record, len(resp.Results))
	errs := make(chan error, 1)
	for _, r := range resp.Results {
		records <- bulkconsume.Record{UUID: r.UUID, Path: r.Path, IndexTime: r.IndexTime}
	}
	close(records)
	close(errs)

	return bulkconsume.ScrollResult{Hits: resp.Hits, Records: records, Err: errs}, nil
}

// Resolve implements bulkconsume.RecordBodyResolver by fetching a
// record's full payload from the record store, backfilling the record's
// indexTime from the payload when the index did not supply one.
func (c *Client) Resolve(ctx context.Context, rec bulkconsume.Record) (bulkconsume.Record, error) {
	url := fmt.Sprintf("%s/%s", c.endpoint, rec.Path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rec, fmt.Errorf("create request: %w", err)
	}

	level.Debug(c.logger).Log("msg", "resolving record body", "path", rec.Path)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return rec, fmt.Errorf("fetch record body: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rec, fmt.Errorf("record store returned %s for %s", resp.Status, rec.Path)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return rec, fmt.Errorf("read record body: %w", err)
	}

	rec.Data = data
	if rec.IndexTime == 0 {
		if t, ok := indexTimeFromPayload(data); ok {
			rec.IndexTime = t
		}
	}
	return rec, nil
}

// indexTimeFromPayload extracts the indexTime the record store embeds in
// the payload envelope. Payloads that are not JSON, or that carry no
// indexTime, yield ok=false and the record keeps whatever the index gave.
func indexTimeFromPayload(data []byte) (bulkconsume.IndexTime, bool) {
	var envelope struct {
		IndexTime bulkconsume.IndexTime `json:"indexTime"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.IndexTime <= 0 {
		return 0, false
	}
	return envelope.IndexTime, true
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := c.endpoint + path
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	level.Debug(c.logger).Log("msg", "sending index request", "method", method, "url", url)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("index request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("index returned %s for %s %s", resp.Status, method, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode index response: %w", err)
	}
	return nil
}
