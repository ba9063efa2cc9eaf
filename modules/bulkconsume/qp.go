package bulkconsume

import "context"

// FieldFilterParser is the external collaborator that parses the qp query
// parameter expression and resolves field names against the field-types
// cache into a FieldFilter the core can conjoin with a time bound.
type FieldFilterParser interface {
	Parse(ctx context.Context, qp string) (FieldFilter, error)
}
