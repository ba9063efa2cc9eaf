package bulkconsume

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// nowSafetyMargin keeps the discovery algorithm away from records whose
// indexing has not yet settled.
const nowSafetyMargin = 30 * time.Second

// seedFloor is added to a collided seed indexTime so the first expansion
// step always sees a non-empty window, even when more than 1000 records
// share from's indexTime.
const seedFloor = 1729

// verdict is the outcome of a single count probe against the acceptance
// band.
type verdict int

const (
	verdictTooFew verdict = iota
	verdictAccept
	verdictTooMany
)

func classify(total int64, threshold int) verdict {
	lo := float64(threshold) * 0.5
	hi := float64(threshold) * 1.5
	switch {
	case float64(total) < lo:
		return verdictTooFew
	case float64(total) < hi:
		return verdictAccept
	default:
		return verdictTooMany
	}
}

func isModeratelyTooMany(total int64, threshold int) bool {
	return float64(total) < float64(threshold)*3
}

// Finder drives Prober through the seed -> expand -> shrinking-step
// binary search to produce a CurrRange whose record count is close to
// threshold.
type Finder struct {
	prober  Prober
	limiter *rate.Limiter
	logger  log.Logger

	probesObserved prometheus.Histogram
	timerExpiries  prometheus.Counter

	// nowFunc stands in for wall-clock "now" so tests can pin it.
	nowFunc func() time.Time
}

// NewFinder constructs a Finder. limiter may be nil to disable probe
// throttling (e.g. in tests).
func NewFinder(prober Prober, limiter *rate.Limiter, reg prometheus.Registerer, logger log.Logger) *Finder {
	f := &Finder{
		prober:  prober,
		limiter: limiter,
		logger:  logger,
		nowFunc: time.Now,
		probesObserved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bulk_consume",
			Name:      "range_finder_probes_total",
			Help:      "Number of index probes issued per range-discovery call.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		timerExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bulk_consume",
			Name:      "range_finder_timer_expiries_total",
			Help:      "Number of range-discovery calls that hit the discovery time budget before converging.",
		}),
	}
	if reg != nil {
		reg.MustRegister(f.probesObserved, f.timerExpiries)
	}
	return f
}

// finderStep names which phase of the state machine produced a probe, for
// the debug-info trace.
type finderStep string

const (
	stepSeed   finderStep = "seed"
	stepExpand finderStep = "expand"
	stepShrink finderStep = "shrink"
)

// ProbeTrace is one recorded probe, kept for the optional debug-info
// response.
type ProbeTrace struct {
	Step    finderStep
	From    IndexTime
	To      IndexTime
	Total   int64
	Verdict string
}

// FindResult bundles the resolved range with the probe trace collected
// along the way.
type FindResult struct {
	Range CurrRange
	Trace []ProbeTrace
}

// Find runs the full state machine starting from from, aiming for
// threshold records, until timer expires or the acceptance band is hit.
func (f *Finder) Find(ctx context.Context, params ThinSearchParams, from IndexTime, threshold int, timer *Timer) (FindResult, error) {
	traceID := uuid.NewString()
	logger := log.With(f.logger, "discoveryID", traceID, "from", from, "threshold", threshold)

	now := f.nowFunc().Add(-nowSafetyMargin).UnixMilli()

	var probes []ProbeTrace
	record := func(step finderStep, from, to IndexTime, total int64, v verdict) {
		probes = append(probes, ProbeTrace{Step: step, From: from, To: to, Total: total, Verdict: verdictName(v)})
	}

	toSeed, err := f.seed(ctx, params, from, now, &probes)
	if err != nil {
		return FindResult{}, err
	}

	result, err := f.expand(ctx, logger, params, from, toSeed, now, threshold, timer, record)
	if err != nil {
		return FindResult{}, err
	}

	f.probesObserved.Observe(float64(len(probes)))
	return FindResult{Range: result, Trace: probes}, nil
}

// seed runs the seed probe and returns toSeed.
func (f *Finder) seed(ctx context.Context, params ThinSearchParams, from, now IndexTime, probes *[]ProbeTrace) (IndexTime, error) {
	res, err := f.probe(ctx, seedProbeParams(params, from))
	if err != nil {
		return 0, fmt.Errorf("seed probe: %w", err)
	}

	*probes = append(*probes, ProbeTrace{Step: stepSeed, From: from, Total: res.Total})

	if !res.HasFirstRecord {
		return now, nil
	}

	toSeed := res.FirstRecordTime
	if floor := from + seedFloor; floor > toSeed {
		toSeed = floor
	}
	return toSeed, nil
}

// loopState carries the binary-search position forward across shrink
// iterations, including the last verdict so the timer early-exit can pick
// the correct fallback.
type loopState struct {
	from       IndexTime
	position   IndexTime
	step       IndexTime
	nextToHint *IndexTime
	last       verdict
}

func (f *Finder) expand(
	ctx context.Context,
	logger log.Logger,
	params ThinSearchParams,
	from, to, now IndexTime,
	threshold int,
	timer *Timer,
	record func(finderStep, IndexTime, IndexTime, int64, verdict),
) (CurrRange, error) {
	lastTooFewTo := from

	for {
		if timer.Expired() {
			f.timerExpiries.Inc()
			step := to - from
			level.Warn(logger).Log("msg", "range discovery timer expired during expand", "from", from, "to", to)
			return CurrRange{From: from, To: from + step/2}, nil
		}

		if to >= now {
			return f.nowBounded(ctx, logger, params, from, lastTooFewTo, now, threshold, timer, record)
		}

		step := to - from
		res, err := f.probe(ctx, countProbeParams(params, from, to))
		if err != nil {
			return CurrRange{}, fmt.Errorf("expand count probe: %w", err)
		}

		v := classify(res.Total, threshold)
		record(stepExpand, from, to, res.Total, v)

		switch v {
		case verdictTooFew:
			lastTooFewTo = to
			to = to + step
		case verdictAccept:
			return CurrRange{From: from, To: to}, nil
		case verdictTooMany:
			state := loopState{
				from:     from,
				position: to - step/4,
				step:     step / 4,
				last:     verdictTooMany,
			}
			if isModeratelyTooMany(res.Total, threshold) {
				hint := to
				state.nextToHint = &hint
			}
			return f.shrink(ctx, logger, params, state, now, threshold, timer, record)
		}
	}
}

// nowBounded handles expansion reaching now: the window is clamped there
// and, if still too crowded, the binary search starts between the last
// undershooting to and now.
func (f *Finder) nowBounded(
	ctx context.Context,
	logger log.Logger,
	params ThinSearchParams,
	from, rangeStart, now IndexTime,
	threshold int,
	timer *Timer,
	record func(finderStep, IndexTime, IndexTime, int64, verdict),
) (CurrRange, error) {
	res, err := f.probe(ctx, countProbeParams(params, from, now))
	if err != nil {
		return CurrRange{}, fmt.Errorf("now-bounded count probe: %w", err)
	}

	hi := float64(threshold) * 1.5
	if float64(res.Total) <= hi {
		record(stepExpand, from, now, res.Total, verdictAccept)
		return CurrRange{From: from, To: now}, nil
	}
	record(stepExpand, from, now, res.Total, verdictTooMany)

	state := loopState{
		from:     from,
		position: (rangeStart + now) / 2,
		step:     (now - rangeStart) / 4,
		last:     verdictTooMany,
	}
	if isModeratelyTooMany(res.Total, threshold) {
		hint := now
		state.nextToHint = &hint
	}
	return f.shrink(ctx, logger, params, state, now, threshold, timer, record)
}

// shrink runs the shrinking-step binary search.
func (f *Finder) shrink(
	ctx context.Context,
	logger log.Logger,
	params ThinSearchParams,
	s loopState,
	now IndexTime,
	threshold int,
	timer *Timer,
	record func(finderStep, IndexTime, IndexTime, int64, verdict),
) (CurrRange, error) {
	for {
		if timer.Expired() {
			f.timerExpiries.Inc()
			level.Warn(logger).Log("msg", "range discovery timer expired during shrink", "from", s.from, "position", s.position, "step", s.step)

			fallback := s.position - 2*s.step
			if s.last == verdictTooFew {
				fallback = s.position + s.step
			}
			return CurrRange{From: s.from, To: fallback, NextToHint: s.nextToHint}, nil
		}

		res, err := f.probe(ctx, countProbeParams(params, s.from, s.position))
		if err != nil {
			return CurrRange{}, fmt.Errorf("shrink count probe: %w", err)
		}

		v := classify(res.Total, threshold)
		record(stepShrink, s.from, s.position, res.Total, v)

		switch v {
		case verdictTooFew:
			s.position = s.position + s.step
			s.step = s.step / 2
			s.last = verdictTooFew
		case verdictAccept:
			return CurrRange{From: s.from, To: s.position, NextToHint: s.nextToHint}, nil
		case verdictTooMany:
			probed := s.position
			s.position = s.position - s.step
			s.step = s.step / 2
			if s.nextToHint == nil && isModeratelyTooMany(res.Total, threshold) {
				hint := probed
				s.nextToHint = &hint
			}
			s.last = verdictTooMany
		}
	}
}

func (f *Finder) probe(ctx context.Context, params ProbeParams) (ProbeResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return ProbeResult{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return f.prober.Probe(ctx, params)
}

func verdictName(v verdict) string {
	switch v {
	case verdictTooFew:
		return "too-few"
	case verdictAccept:
		return "accept"
	case verdictTooMany:
		return "too-many"
	default:
		return "unknown"
	}
}
