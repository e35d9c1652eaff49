package filter

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"prosopography/internal/domain"
)

var (
	// ErrUnknownField indicates a query key that names no field of the set
	ErrUnknownField = errors.New("unknown filter field")
	// ErrUnsupportedLookup indicates a lookup the field does not accept
	ErrUnsupportedLookup = errors.New("unsupported lookup")
	// ErrInvalidValue indicates a value that cannot be converted to the field type
	ErrInvalidValue = errors.New("invalid filter value")
)

// Reserved query keys that control paging rather than filtering
const (
	ParamLimit  = "limit"
	ParamOffset = "offset"
)

// MaxLimit caps the page size of a query
const MaxLimit = 1000

// FieldType determines how a raw value is converted
type FieldType string

const (
	TypeText       FieldType = "text"
	TypeDate       FieldType = "date"
	TypeNumber     FieldType = "number"
	TypeChoice     FieldType = "choice"
	TypeCollection FieldType = "collection"
)

// Choice is one option of a choice field
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Method builds a custom predicate for a field value
type Method func(value string) Expr

// Field is one filterable field of a Set
type Field struct {
	Name    string
	Label   string
	Type    FieldType
	Attr    string
	List    bool
	Lookups []Lookup
	Default Lookup
	Choices []Choice
	// Aliases are further query keys selecting the field, e.g. "profession__name"
	Aliases []string

	// Method replaces the attribute match; Distinct marks queries using it
	Method   Method
	Distinct bool
}

// defaultLookup returns the lookup used when the key has no __lookup suffix
func (f Field) defaultLookup() (Lookup, bool) {
	if f.Default != "" {
		return f.Default, true
	}
	if f.Method != nil {
		return IContains, true
	}
	return "", false
}

func (f Field) accepts(l Lookup) bool {
	for _, a := range f.Lookups {
		if a == l {
			return true
		}
	}
	return false
}

// Set is the filter set of one entity kind
type Set struct {
	Kind   domain.Kind
	Fields []Field
}

// Field returns the field with the given name or alias
func (s *Set) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
		for _, a := range f.Aliases {
			if a == name {
				return f, true
			}
		}
	}
	return Field{}, false
}

// Parse converts query parameters into a Query. Empty values are ignored,
// repeated keys are combined with AND.
func (s *Set) Parse(values url.Values) (*Query, error) {
	q := NewQuery(s.Kind)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch key {
		case ParamLimit:
			n, err := parsePaging(key, values.Get(key))
			if err != nil {
				return nil, err
			}
			if n > MaxLimit {
				n = MaxLimit
			}
			q.Limit = n
			continue
		case ParamOffset:
			n, err := parsePaging(key, values.Get(key))
			if err != nil {
				return nil, err
			}
			q.Offset = n
			continue
		}

		for _, raw := range values[key] {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			expr, distinct, err := s.predicate(key, raw)
			if err != nil {
				return nil, err
			}
			if expr == nil {
				continue
			}
			q.Add(expr)
			q.Distinct = q.Distinct || distinct
		}
	}

	return q, nil
}

func parsePaging(key, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
	return n, nil
}

func (s *Set) predicate(key, raw string) (Expr, bool, error) {
	name, lookupName := key, ""
	if _, whole := s.Field(key); !whole {
		if i := strings.LastIndex(key, "__"); i >= 0 {
			name, lookupName = key[:i], key[i+2:]
		}
	}

	field, ok := s.Field(name)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, s.Kind, name)
	}

	var lookup Lookup
	if lookupName == "" {
		l, ok := field.defaultLookup()
		if !ok {
			return nil, false, fmt.Errorf("%w: %s requires one of %v", ErrUnsupportedLookup, name, field.Lookups)
		}
		lookup = l
	} else {
		lookup = Lookup(lookupName)
		if !field.accepts(lookup) {
			return nil, false, fmt.Errorf("%w: %s__%s (accepted: %v)", ErrUnsupportedLookup, name, lookupName, field.Lookups)
		}
	}

	if field.Method != nil {
		return field.Method(raw), field.Distinct, nil
	}

	switch field.Type {
	case TypeText:
		if field.List {
			return AnyElement{Attr: field.Attr, Lookup: lookup, Value: raw}, false, nil
		}
		return Match{Attr: field.Attr, Lookup: lookup, Value: raw}, false, nil

	case TypeDate:
		d, err := domain.ParseDate(raw)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
		}
		return Match{Attr: field.Attr, Lookup: lookup, Value: d}, false, nil

	case TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, key, raw)
		}
		return Match{Attr: field.Attr, Lookup: lookup, Value: f}, false, nil

	case TypeChoice:
		for _, c := range field.Choices {
			if c.Value == raw {
				return Match{Attr: field.Attr, Lookup: lookup, Value: raw}, false, nil
			}
		}
		return nil, false, fmt.Errorf("%w: %s=%q is not one of the choices", ErrInvalidValue, key, raw)

	case TypeCollection:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s=%q is not a collection id", ErrInvalidValue, key, raw)
		}
		return InCollection{CollectionID: id}, false, nil
	}

	return nil, false, fmt.Errorf("field %s has unsupported type %q", name, field.Type)
}

// FieldDescription documents one field for clients
type FieldDescription struct {
	Field   string       `json:"field"`
	Label   string       `json:"label"`
	Type    FieldType    `json:"type"`
	Lookups []LookupInfo `json:"lookups"`
	Default Lookup       `json:"default,omitempty"`
	Choices []Choice     `json:"choices,omitempty"`
}

// Describe lists the fields of the set with their accepted lookups and labels
func (s *Set) Describe() []FieldDescription {
	out := make([]FieldDescription, 0, len(s.Fields))
	for _, f := range s.Fields {
		d := FieldDescription{
			Field:   f.Name,
			Label:   f.Label,
			Type:    f.Type,
			Choices: f.Choices,
		}
		if l, ok := f.defaultLookup(); ok {
			d.Default = l
		}
		for _, l := range f.Lookups {
			d.Lookups = append(d.Lookups, LookupInfo{Lookup: l, Label: l.Label()})
		}
		out = append(out, d)
	}
	return out
}
