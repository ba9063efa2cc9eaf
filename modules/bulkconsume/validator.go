package bulkconsume

import "fmt"

// RawParams are the request-time query parameters as received, before any
// cursor has been decoded. Field names mirror the HTTP query parameters.
type RawParams struct {
	QP              string
	QPSet           bool
	IndexTime       string
	IndexTimeSet    bool
	WithDescendants bool
	RecursiveSet    bool
	WithHistory     bool
	WithHistorySet  bool
	WithDeleted     bool
	WithDeletedSet  bool
	LengthHint      string
	LengthHintSet   bool
}

// sessionOwnedParam names one query parameter that belongs to the session
// identity frozen inside a cursor, plus the human-readable name used in the
// conflict error.
type sessionOwnedParam struct {
	set     bool
	message string
}

// ValidateAgainstCursor rejects a request whose query parameters would
// silently change the meaning of an already-minted cursor. The
// single exception, to-hint, is handled separately by the dispatcher since
// it is accepted rather than rejected.
func ValidateAgainstCursor(raw RawParams) error {
	conflicts := []sessionOwnedParam{
		{raw.QPSet, "qp"},
		{raw.IndexTimeSet, "index-time"},
		{raw.RecursiveSet, "with-descendants/recursive"},
		{raw.WithHistorySet, "with-history"},
		{raw.WithDeletedSet, "with-deleted"},
		{raw.LengthHintSet, "length-hint"},
	}

	for _, c := range conflicts {
		if c.set {
			return fmt.Errorf("`%s` is determined in the beginning of the iteration and cannot be supplied alongside position", c.message)
		}
	}

	return nil
}
