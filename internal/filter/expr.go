package filter

import "prosopography/internal/domain"

// Expr is a predicate over catalog entities
type Expr interface {
	isExpr()
}

// Match compares a scalar attribute of the entity with a value.
// Value is a string, float64, int64 or domain.Date depending on the field.
type Match struct {
	Attr   string
	Lookup Lookup
	Value  any
}

// AnyElement matches when any element of a list attribute satisfies the lookup
type AnyElement struct {
	Attr   string
	Lookup Lookup
	Value  string
}

// LabelMatch matches when any label of an allowed type satisfies the lookup.
// An empty LabelTypes allows every type.
type LabelMatch struct {
	Lookup     Lookup
	Value      string
	LabelTypes []string
}

// InCollection matches members of a collection
type InCollection struct {
	CollectionID int64
}

// Or matches when any operand matches
type Or []Expr

// And matches when every operand matches
type And []Expr

func (Match) isExpr()        {}
func (AnyElement) isExpr()   {}
func (LabelMatch) isExpr()   {}
func (InCollection) isExpr() {}
func (Or) isExpr()           {}
func (And) isExpr()          {}

// Query is a parsed filter request for one kind
type Query struct {
	Kind     domain.Kind
	Where    And
	Distinct bool
	Limit    int
	Offset   int
}

// NewQuery returns an unfiltered query for kind
func NewQuery(kind domain.Kind) *Query {
	return &Query{Kind: kind}
}

// Add appends a predicate to the conjunction
func (q *Query) Add(e Expr) *Query {
	q.Where = append(q.Where, e)
	return q
}
