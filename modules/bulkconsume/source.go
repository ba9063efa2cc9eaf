package bulkconsume

import "context"

// ScrollSource is the external collaborator that actually streams records
// for a resolved [from, to) range. Two implementations are expected: a
// fast, parallelized one (the default) and a slow one selected by the
// client's slow-bulk query parameter.
type ScrollSource interface {
	Scroll(ctx context.Context, req ScrollRequest) (ScrollResult, error)
}

// ScrollRequest is the resolved range plus the frozen session params.
type ScrollRequest struct {
	Params ThinSearchParams
	From   IndexTime
	To     IndexTime
}

// ScrollResult carries the hit count up front and a channel of records;
// the channel is closed when the scroll is exhausted, with any terminal
// error delivered on Err.
type ScrollResult struct {
	Hits    uint64
	Records <-chan Record
	Err     <-chan error
}

// SourceSelector picks between the fast and slow ScrollSource
// implementations; the client's slow-bulk query parameter selects the
// non-parallelised one.
type SourceSelector struct {
	Fast ScrollSource
	Slow ScrollSource
}

// Select returns Slow when slowBulk is set and Slow is configured,
// otherwise Fast.
func (s SourceSelector) Select(slowBulk bool) ScrollSource {
	if slowBulk && s.Slow != nil {
		return s.Slow
	}
	return s.Fast
}

// RecordBodyResolver is the optional post-processing collaborator that
// fetches a record's full payload and backfills its indexTime when the
// record's own indexTime is missing. The indexclient implementation takes
// the backfilled value from the payload's own indexTime field; no
// uuid -> indexTime map is kept. Used only when with-data was requested.
type RecordBodyResolver interface {
	Resolve(ctx context.Context, rec Record) (Record, error)
}
