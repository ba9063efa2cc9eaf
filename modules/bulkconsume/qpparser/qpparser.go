// Package qpparser compiles the free-form qp query-parameter expression
// into a bulkconsume.FieldFilter, resolving field names against a
// field-types cache.
package qpparser

import (
	"context"
	"fmt"
	"strings"

	"github.com/cm-well/bulk-consumer/modules/bulkconsume"
	"github.com/cm-well/bulk-consumer/modules/bulkconsume/fieldcache"
)

// comparators recognized in a single qp clause, longest first so that,
// e.g., ">=" is not mistaken for ">".
var comparators = []string{">=", "<=", "!=", ">", "<", ":"}

var comparatorNames = map[string]string{
	">=": "gte",
	"<=": "lte",
	"!=": "neq",
	">":  "gt",
	"<":  "lt",
	":":  "eq",
}

// Parser implements bulkconsume.FieldFilterParser. qp is a comma-separated
// list of clauses, each `field<comparator>value`; all clauses are
// conjoined (AND). Each field name is looked up in cache, and a name not
// yet cached is stored there with type "string". The looked-up type is not
// carried into the resulting FieldFilter, and unknown field names are not
// rejected.
type Parser struct {
	cache fieldcache.Cache
}

// New constructs a Parser backed by cache.
func New(cache fieldcache.Cache) *Parser {
	return &Parser{cache: cache}
}

// Parse compiles qp into a FieldFilter.
func (p *Parser) Parse(ctx context.Context, qp string) (bulkconsume.FieldFilter, error) {
	qp = strings.TrimSpace(qp)
	if qp == "" {
		return bulkconsume.FieldFilter{}, nil
	}

	clauses := strings.Split(qp, ",")
	leaves := make([]bulkconsume.FieldFilter, 0, len(clauses))

	for _, raw := range clauses {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			continue
		}

		field, comparator, value, err := splitClause(clause)
		if err != nil {
			return bulkconsume.FieldFilter{}, err
		}

		fieldType, ok, err := p.cache.Get(ctx, field)
		if err != nil {
			return bulkconsume.FieldFilter{}, fmt.Errorf("resolve field %q: %w", field, err)
		}
		if !ok {
			// Untyped fields default to type "string"; memoize so the next
			// request for the same field finds it cached.
			fieldType = "string"
			if err := p.cache.Put(ctx, field, fieldType); err != nil {
				return bulkconsume.FieldFilter{}, fmt.Errorf("cache field %q: %w", field, err)
			}
		}

		leaves = append(leaves, bulkconsume.FieldFilter{
			Field:      field,
			Comparator: comparator,
			Value:      value,
		})
	}

	if len(leaves) == 0 {
		return bulkconsume.FieldFilter{}, nil
	}
	if len(leaves) == 1 {
		return leaves[0], nil
	}
	return bulkconsume.FieldFilter{Must: leaves}, nil
}

func splitClause(clause string) (field, comparator, value string, err error) {
	bestIdx := -1
	bestOp := ""
	for _, op := range comparators {
		if idx := strings.Index(clause, op); idx >= 0 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
				bestOp = op
			}
		}
	}
	if bestIdx == -1 {
		return "", "", "", fmt.Errorf("malformed qp clause %q: no comparator found", clause)
	}

	field = strings.TrimSpace(clause[:bestIdx])
	value = strings.TrimSpace(clause[bestIdx+len(bestOp):])
	if field == "" || value == "" {
		return "", "", "", fmt.Errorf("malformed qp clause %q", clause)
	}

	return field, comparatorNames[bestOp], value, nil
}
