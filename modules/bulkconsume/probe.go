package bulkconsume

import "context"

// SearchSort names the one sort order the probe ever needs.
type SearchSort int

const (
	// SortNone requests no particular order (used by count probes, whose
	// only consumed field is the total).
	SortNone SearchSort = iota
	// SortIndexTimeAsc orders results by indexTime ascending (used by the
	// seed probe).
	SortIndexTimeAsc
)

// Pagination is the offset/limit window requested from the index.
type Pagination struct {
	Offset int
	Limit  int
}

// ProbeParams is everything a single thin search needs to run.
type ProbeParams struct {
	Path        string
	Recursive   bool
	FieldFilter FieldFilter
	WithHistory bool
	WithDeleted bool
	Pagination  Pagination
	Sort        SearchSort
}

// ProbeResult is the thin search response: a total match count, plus the
// first record's indexTime when the caller asked for one (a seed probe).
type ProbeResult struct {
	Total           int64
	FirstRecordTime IndexTime
	HasFirstRecord  bool
}

// Prober is the external collaborator that issues count-only searches
// against the backing index. It is injected at construction so tests can
// script deterministic count sequences instead of hitting a real index;
// the concrete implementation (the index's query API) is outside this
// core's scope.
type Prober interface {
	Probe(ctx context.Context, params ProbeParams) (ProbeResult, error)
}

// seedProbeParams builds the seed-probe call shape: offset 1000, limit 1,
// sorted by indexTime ascending, no upper time bound. The 1001st record's
// indexTime gives the finder a non-trivial lower bound on the initial to.
func seedProbeParams(params ThinSearchParams, from IndexTime) ProbeParams {
	return ProbeParams{
		Path:        params.Path,
		Recursive:   params.Recursive,
		FieldFilter: params.FieldFilter.WithTimeBound(from, maxIndexTime),
		WithHistory: params.WithHistory,
		WithDeleted: params.WithDeleted,
		Pagination:  Pagination{Offset: 1000, Limit: 1},
		Sort:        SortIndexTimeAsc,
	}
}

// countProbeParams builds the count-probe call shape: offset 0, limit 1,
// field filter conjoined with the time interval, no sort. Only the total
// is consumed.
func countProbeParams(params ThinSearchParams, from, to IndexTime) ProbeParams {
	return ProbeParams{
		Path:        params.Path,
		Recursive:   params.Recursive,
		FieldFilter: params.FieldFilter.WithTimeBound(from, to),
		WithHistory: params.WithHistory,
		WithDeleted: params.WithDeleted,
		Pagination:  Pagination{Offset: 0, Limit: 1},
		Sort:        SortNone,
	}
}

// maxIndexTime stands in for "no upper bound" when conjoining the seed
// probe's field filter; it is comfortably past any real millisecond
// timestamp and never reaches the backing index as a literal value for a
// probe that has a genuine upper bound.
const maxIndexTime IndexTime = 1<<62 - 1
