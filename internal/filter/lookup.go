package filter

// Lookup is a comparison operator accepted by a filter field
type Lookup string

const (
	IContains   Lookup = "icontains"
	Exact       Lookup = "exact"
	IExact      Lookup = "iexact"
	NotExact    Lookup = "not_exact"
	LT          Lookup = "lt"
	GT          Lookup = "gt"
	GTE         Lookup = "gte"
	LTE         Lookup = "lte"
	StartsWith  Lookup = "startswith"
	EndsWith    Lookup = "endswith"
	Contains    Lookup = "contains"
	NotContains Lookup = "not_contains"
)

// LookupInfo pairs a lookup with its display label
type LookupInfo struct {
	Lookup Lookup `json:"lookup"`
	Label  string `json:"label"`
}

// Lookups lists every lookup with its label, in display order
var Lookups = []LookupInfo{
	{IContains, "Contains (case insensitive)"},
	{Exact, "Is equal to"},
	{IExact, "Is equal to (case insensitive)"},
	{NotExact, "Is not equal to"},
	{LT, "Lesser than/before"},
	{GT, "Greater than/after"},
	{GTE, "Greater than or equal to"},
	{LTE, "Lesser than or equal to"},
	{StartsWith, "Starts with"},
	{EndsWith, "Ends with"},
	{Contains, "Contains"},
	{NotContains, "Does not contain"},
}

// Label returns the display label of l
func (l Lookup) Label() string {
	for _, info := range Lookups {
		if info.Lookup == l {
			return info.Label
		}
	}
	return string(l)
}

// Known reports whether l is a defined lookup
func (l Lookup) Known() bool {
	for _, info := range Lookups {
		if info.Lookup == l {
			return true
		}
	}
	return false
}

// CaseInsensitive reports whether l compares case-folded strings
func (l Lookup) CaseInsensitive() bool {
	return l == IContains || l == IExact
}

// Ordered reports whether l is an ordering comparison
func (l Lookup) Ordered() bool {
	switch l {
	case LT, GT, GTE, LTE:
		return true
	}
	return false
}
