package bulkconsume

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds Chunk Dispatcher tunables.
type Config struct {
	// BinarySearchTimeout is the discovery time budget armed before
	// invoking the range finder.
	BinarySearchTimeout time.Duration `yaml:"binary_search_timeout"`
	// DefaultChunkSizeHint is used when a bootstrap request omits
	// length-hint.
	DefaultChunkSizeHint int `yaml:"default_chunk_size_hint"`
}

// RegisterFlagsAndApplyDefaults registers flags for Config under prefix,
// so the binary can compose it under its own prefix.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.BinarySearchTimeout, prefix+"binary-search-timeout", 5*time.Second, "Time budget for a single chunk's range discovery.")
	f.IntVar(&c.DefaultChunkSizeHint, prefix+"default-chunk-size-hint", 100, "chunkSizeHint used when a bootstrap request omits length-hint.")
}

// Dependencies are the external collaborators the Dispatcher needs,
// supplied at construction rather than resolved globally so tests can
// inject deterministic fakes.
type Dependencies struct {
	Finder            *Finder
	Prober            Prober
	FieldFilterParser FieldFilterParser
	Sources           SourceSelector
	BodyResolver      RecordBodyResolver
	Formatters        FormatterFactory
	Logger            log.Logger
}

// Dispatcher is the Chunk Dispatcher: the top-level request handler for
// GET /bulk-consume.
type Dispatcher struct {
	cfg  Config
	deps Dependencies

	metrics *dispatcherMetrics
	nowFunc func() time.Time
}

// NewDispatcher constructs a Dispatcher. reg may be nil to skip metrics
// registration (e.g. in tests).
func NewDispatcher(cfg Config, deps Dependencies, reg prometheus.Registerer) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		deps:    deps,
		metrics: newDispatcherMetrics(reg),
		nowFunc: time.Now,
	}
}

// RegisterRoutes registers the bulk-consume endpoint on r.
func (d *Dispatcher) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/bulk-consume", d.Handle).Methods(http.MethodGet)
}

// requestParams is everything the dispatcher reads off the query string.
type requestParams struct {
	RawParams

	Path        string
	Position    string
	HasPosition bool
	ToHint      *IndexTime
	DebugInfo   bool
	SlowBulk    bool

	Format   string
	Host     string
	URI      string
	WithData bool
	WithMeta bool
}

func parseRequestParams(r *http.Request) requestParams {
	q := r.URL.Query()
	p := requestParams{
		RawParams: RawParams{
			QP:              q.Get("qp"),
			QPSet:           q.Has("qp"),
			IndexTime:       q.Get("index-time"),
			IndexTimeSet:    q.Has("index-time"),
			WithDescendants: q.Get("with-descendants") == "true" || q.Get("recursive") == "true",
			RecursiveSet:    q.Has("with-descendants") || q.Has("recursive"),
			WithHistory:     q.Get("with-history") == "true",
			WithHistorySet:  q.Has("with-history"),
			WithDeleted:     q.Get("with-deleted") == "true",
			WithDeletedSet:  q.Has("with-deleted"),
			LengthHint:      q.Get("length-hint"),
			LengthHintSet:   q.Has("length-hint"),
		},
		Path:      q.Get("path"),
		Format:    firstNonEmpty(q.Get("format"), "json"),
		Host:      r.Host,
		URI:       r.URL.Path,
		WithData:  q.Get("with-data") == "true",
		WithMeta:  q.Get("with-meta") == "true",
		DebugInfo: q.Has("debug-info"),
		SlowBulk:  q.Get("slow-bulk") == "true",
	}

	p.Position = q.Get("position")
	p.HasPosition = q.Has("position")

	if v := q.Get("to-hint"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := IndexTime(ms)
			p.ToHint = &t
		}
	}

	return p
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Handle validates the request, resolves the session state and the chunk
// range, scrolls the records, and responds.
func (d *Dispatcher) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := parseRequestParams(r)

	format, err := ParseFormat(params.Format)
	if err != nil {
		d.failClient(w, err)
		return
	}

	state, err := d.resolveState(ctx, params)
	if err != nil {
		d.failClient(w, err)
		return
	}

	resolved, trace, quiescent, err := d.resolveRange(ctx, state)
	if err != nil {
		d.failServer(w, state, err)
		return
	}

	if params.DebugInfo && len(trace) > 0 {
		level.Info(d.deps.Logger).Log("msg", "range discovery trace", "table", "\n"+renderDebugTable(trace))
	}

	source := d.deps.Sources.Select(params.SlowBulk)
	scrollResult, err := source.Scroll(ctx, ScrollRequest{Params: state.SearchParams(), From: resolved.From, To: resolved.To})
	if err != nil {
		d.failServer(w, state, err)
		return
	}

	if scrollResult.Hits == 0 {
		d.respondEmpty(w, params, state, resolved, quiescent)
		return
	}

	d.respondChunk(ctx, w, r, params, state, resolved, format, scrollResult)
}

// resolveState decodes the position token (a continuation request) or
// builds the initial state from raw query parameters (a bootstrap
// request). A first request carries no position at all, so its absence is
// not itself an error; once present, the token must decode cleanly and
// must not be contradicted by session-owned query parameters.
func (d *Dispatcher) resolveState(ctx context.Context, params requestParams) (BulkConsumeState, error) {
	if !params.HasPosition {
		return d.bootstrapState(ctx, params)
	}

	if err := ValidateAgainstCursor(params.RawParams); err != nil {
		return BulkConsumeState{}, &ClientError{msg: err.Error()}
	}

	state, err := DecodeCursor(params.Position)
	if err != nil {
		return BulkConsumeState{}, &ClientError{msg: err.Error()}
	}

	if state.ToOpt == nil && params.ToHint != nil {
		state.ToOpt = params.ToHint
	}

	return state, nil
}

func (d *Dispatcher) bootstrapState(ctx context.Context, params requestParams) (BulkConsumeState, error) {
	var filter *FieldFilter
	if params.QP != "" {
		parsed, err := d.deps.FieldFilterParser.Parse(ctx, params.QP)
		if err != nil {
			return BulkConsumeState{}, clientErrorf("malformed qp: %v", err)
		}
		filter = &parsed
	}

	chunkSizeHint := d.cfg.DefaultChunkSizeHint
	if params.LengthHintSet {
		n, err := strconv.Atoi(params.LengthHint)
		if err != nil || n <= 0 {
			return BulkConsumeState{}, clientErrorf("length-hint must be a positive integer, got %q", params.LengthHint)
		}
		chunkSizeHint = n
	}

	var from IndexTime
	if params.IndexTimeSet {
		n, err := strconv.ParseInt(params.IndexTime, 10, 64)
		if err != nil || n < 0 {
			return BulkConsumeState{}, clientErrorf("index-time must be a non-negative integer, got %q", params.IndexTime)
		}
		from = n
	}

	return BulkConsumeState{
		From:          from,
		Path:          params.Path,
		Recursive:     params.WithDescendants,
		WithHistory:   params.WithHistory,
		WithDeleted:   params.WithDeleted,
		ChunkSizeHint: chunkSizeHint,
		FieldFilter:   filter,
	}, nil
}

// resolveRange turns the session state into a concrete [from, to) chunk
// range. It returns quiescent=true only for the bootstrap case where the
// seed probe finds no record at all: the session has nothing to iterate
// yet, and the minted cursor must leave from untouched rather than
// advance it to now.
func (d *Dispatcher) resolveRange(ctx context.Context, state BulkConsumeState) (CurrRange, []ProbeTrace, bool, error) {
	if state.ToOpt != nil {
		return CurrRange{From: state.From, To: *state.ToOpt}, nil, false, nil
	}

	threshold := state.ChunkSizeHint
	searchParams := state.SearchParams()

	from := state.From
	if from == 0 {
		seedRes, err := d.deps.Prober.Probe(ctx, seedProbeParams(searchParams, 0))
		if err != nil {
			return CurrRange{}, nil, false, fmt.Errorf("bootstrap seed probe: %w", err)
		}
		if !seedRes.HasFirstRecord {
			now := d.nowFunc().Add(-nowSafetyMargin).UnixMilli()
			return CurrRange{From: 0, To: now}, nil, true, nil
		}
		// Start the discovery at the record the seed probe returns (the
		// 1001st in indexTime order) rather than at epoch, so the finder
		// does not waste expand rounds on decades of empty axis.
		from = seedRes.FirstRecordTime
	}

	timer := NewTimer(d.cfg.BinarySearchTimeout)
	defer timer.Dispose()

	result, err := d.deps.Finder.Find(ctx, searchParams, from, threshold, timer)
	if err != nil {
		return CurrRange{}, nil, false, err
	}
	return result.Range, result.Trace, false, nil
}

func (d *Dispatcher) respondEmpty(w http.ResponseWriter, params requestParams, state BulkConsumeState, resolved CurrRange, quiescent bool) {
	d.metrics.chunksServed.WithLabelValues("empty").Inc()

	var position string
	var err error

	switch {
	case quiescent:
		quiescentState := state
		to := resolved.To
		quiescentState.ToOpt = &to
		position, err = EncodeCursor(quiescentState)
	case params.HasPosition:
		position = params.Position
	default:
		position, err = EncodeCursor(NextCursor(state, resolved))
	}

	if err != nil {
		d.failServer(w, state, err)
		return
	}

	w.Header().Set("X-CM-WELL-N", "0")
	w.Header().Set("X-CM-WELL-POSITION", position)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dispatcher) respondChunk(ctx context.Context, w http.ResponseWriter, r *http.Request, params requestParams, state BulkConsumeState, resolved CurrRange, format Format, scroll ScrollResult) {
	next := NextCursor(state, resolved)
	nextToken, err := EncodeCursor(next)
	if err != nil {
		d.failServer(w, state, err)
		return
	}

	w.Header().Set("X-CM-WELL-N", strconv.FormatUint(scroll.Hits, 10))
	w.Header().Set("X-CM-WELL-POSITION", nextToken)
	w.Header().Set("X-CM-WELL-TO", strconv.FormatInt(resolved.To, 10))

	// Content-Encoding must be in place before the status line is written.
	body, closeBody := maybeGzip(w, r)
	defer closeBody()

	w.WriteHeader(http.StatusOK)

	formatter, err := d.deps.Formatters.New(FormatterRequest{
		Format:            format,
		Host:              params.Host,
		URI:               params.URI,
		WithData:          params.WithData,
		WithMeta:          params.WithMeta,
		RequireUniqueness: RequiresSubjectUniqueness(format, state.WithHistory),
	})
	if err != nil {
		level.Error(d.deps.Logger).Log("msg", "failed to construct formatter", "err", err)
		return
	}

	count := 0
	for rec := range scroll.Records {
		if params.WithData && d.deps.BodyResolver != nil {
			if resolvedRec, resErr := d.deps.BodyResolver.Resolve(ctx, rec); resErr == nil {
				rec = resolvedRec
			}
		}
		if werr := formatter.WriteRecord(body, rec); werr != nil {
			level.Error(d.deps.Logger).Log("msg", "failed writing record", "err", werr)
			return
		}
		count++
	}

	if scrollErr := drainErr(scroll.Err); scrollErr != nil {
		level.Error(d.deps.Logger).Log("msg", "scroll source error", "err", scrollErr)
	}

	if err := formatter.Close(body); err != nil {
		level.Error(d.deps.Logger).Log("msg", "failed closing formatter", "err", err)
	}

	d.metrics.chunksServed.WithLabelValues("ok").Inc()
	d.metrics.chunkRecords.Observe(float64(count))
}

func drainErr(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func (d *Dispatcher) failClient(w http.ResponseWriter, err error) {
	level.Error(d.deps.Logger).Log("msg", "rejected bulk consume request", "err", err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (d *Dispatcher) failServer(w http.ResponseWriter, state BulkConsumeState, err error) {
	var ff FieldFilter
	if state.FieldFilter != nil {
		ff = *state.FieldFilter
	}
	level.Error(d.deps.Logger).Log(
		"msg", "bulk consume chunk failed",
		"fieldFilter", fmt.Sprintf("%+v", ff),
		"from", state.From,
		"recursive", state.Recursive,
		"withHistory", state.WithHistory,
		"withDeleted", state.WithDeleted,
		"path", state.Path,
		"chunkSizeHint", state.ChunkSizeHint,
		"err", err,
	)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
