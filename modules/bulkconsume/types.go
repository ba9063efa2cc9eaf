// Package bulkconsume implements the adaptive time-range discovery algorithm
// and HTTP surface that let a client iterate a large, append-mostly corpus
// of indexed records in opaque, roughly fixed-size chunks.
package bulkconsume

import "fmt"

// IndexTime is the monotone, indexed attribute every record carries: the
// millisecond timestamp at which the record became visible to the index.
// The algorithm partitions iteration over this axis.
type IndexTime = int64

// FieldFilter is an opaque recursive predicate tree over leaf comparisons.
// The core never interprets a leaf; it only knows how to conjoin a filter
// with an indexTime bound while preserving a top-level Should's semantics.
type FieldFilter struct {
	Must    []FieldFilter `json:"must,omitempty"`
	Should  []FieldFilter `json:"should,omitempty"`
	MustNot []FieldFilter `json:"mustNot,omitempty"`

	// Leaf fields. A FieldFilter is a leaf iff Field != "".
	Field      string `json:"field,omitempty"`
	Comparator string `json:"comparator,omitempty"`
	Value      string `json:"value,omitempty"`
}

// IsLeaf reports whether f is a leaf predicate rather than a combinator.
func (f FieldFilter) IsLeaf() bool {
	return f.Field != ""
}

// IsEmpty reports whether f carries no constraint at all.
func (f FieldFilter) IsEmpty() bool {
	return f.Field == "" && len(f.Must) == 0 && len(f.Should) == 0 && len(f.MustNot) == 0
}

// isTopLevelShould reports whether f is a bare disjunction: a filter whose
// only content is a non-empty Should list. Combining such a filter directly
// with a conjunctive time clause would make the time bound optional, since
// the Should arm alone could satisfy the overall predicate.
func (f FieldFilter) isTopLevelShould() bool {
	return len(f.Should) > 0 && len(f.Must) == 0 && len(f.MustNot) == 0 && !f.IsLeaf()
}

// indexTimeClause builds the conjunction of the two leaf predicates
// indexTime >= from and indexTime < to.
func indexTimeClause(from, to IndexTime) FieldFilter {
	return FieldFilter{
		Must: []FieldFilter{
			{Field: "indexTime", Comparator: "gte", Value: fmt.Sprintf("%d", from)},
			{Field: "indexTime", Comparator: "lt", Value: fmt.Sprintf("%d", to)},
		},
	}
}

// WithTimeBound conjoins f with indexTime in [from, to). A top-level Should
// is wrapped in a Must first so the time bound is never optional. The
// result's Must holds f (wrapped if needed) followed by the time bound's two
// leaves; an empty f yields just the time bound.
func (f FieldFilter) WithTimeBound(from, to IndexTime) FieldFilter {
	clause := indexTimeClause(from, to)

	if f.IsEmpty() {
		return clause
	}

	wrapped := f
	if f.isTopLevelShould() {
		wrapped = FieldFilter{Must: []FieldFilter{f}}
	}

	return FieldFilter{Must: append([]FieldFilter{wrapped}, clause.Must...)}
}

// PathFilter is a path plus whether the match is recursive into descendants.
type PathFilter struct {
	Path      string `json:"path,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

// IsAbsent canonicalizes the match-all path filter: "/" with Recursive=true
// carries no restriction at all.
func (p PathFilter) IsAbsent() bool {
	return (p.Path == "" || p.Path == "/") && p.Recursive
}

// ThinSearchParams are the invariant selection criteria of one iteration
// session: everything that must not change between chunks of the same walk.
type ThinSearchParams struct {
	Path        string      `json:"path,omitempty"`
	Recursive   bool        `json:"recursive,omitempty"`
	FieldFilter FieldFilter `json:"fieldFilter,omitempty"`
	WithHistory bool        `json:"withHistory,omitempty"`
	WithDeleted bool        `json:"withDeleted,omitempty"`
}

// PathFilter reconstructs the PathFilter carried by these params.
func (p ThinSearchParams) PathFilter() PathFilter {
	return PathFilter{Path: p.Path, Recursive: p.Recursive}
}

// BulkConsumeState is the cursor payload: the full state needed to resume
// iteration correctly, regardless of how long the client pauses between
// requests.
type BulkConsumeState struct {
	From          IndexTime    `json:"from"`
	ToOpt         *IndexTime   `json:"to,omitempty"`
	Path          string       `json:"path,omitempty"`
	WithHistory   bool         `json:"withHistory,omitempty"`
	WithDeleted   bool         `json:"withDeleted,omitempty"`
	Recursive     bool         `json:"recursive,omitempty"`
	ChunkSizeHint int          `json:"chunkSizeHint"`
	FieldFilter   *FieldFilter `json:"fieldFilter,omitempty"`
}

// Validate checks the cursor-state invariants.
func (s BulkConsumeState) Validate() error {
	if s.From < 0 {
		return fmt.Errorf("from must be >= 0, got %d", s.From)
	}
	if s.ToOpt != nil && *s.ToOpt <= s.From {
		return fmt.Errorf("to (%d) must be > from (%d)", *s.ToOpt, s.From)
	}
	if s.ChunkSizeHint <= 0 {
		return fmt.Errorf("chunkSizeHint must be > 0, got %d", s.ChunkSizeHint)
	}
	return nil
}

// SearchParams reconstructs the ThinSearchParams frozen inside this cursor.
func (s BulkConsumeState) SearchParams() ThinSearchParams {
	params := ThinSearchParams{
		Path:        s.Path,
		Recursive:   s.Recursive,
		WithHistory: s.WithHistory,
		WithDeleted: s.WithDeleted,
	}
	if s.FieldFilter != nil {
		params.FieldFilter = *s.FieldFilter
	}
	return params
}

// CurrRange is the resolved range for the current chunk, the single output
// of the Range Finder: the half-open interval to scroll, plus an optional
// cheaply-learned upper bound for the chunk that follows it.
type CurrRange struct {
	From       IndexTime
	To         IndexTime
	NextToHint *IndexTime
}
