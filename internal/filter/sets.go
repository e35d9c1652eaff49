package filter

import (
	"fmt"

	"prosopography/internal/domain"
)

var dateLookups = []Lookup{LT, GT, Exact}

func nameField() Field {
	return Field{Name: "name", Label: "Name", Type: TypeText, Attr: "name", Lookups: []Lookup{IContains}, Default: IContains}
}

func dateField(name, label string) Field {
	return Field{Name: name, Label: label, Type: TypeDate, Attr: name, Lookups: dateLookups, Default: Exact}
}

func kindField() Field {
	return Field{Name: "kind", Label: "Kind", Type: TypeText, Attr: "kind", Lookups: []Lookup{IContains}, Default: IContains, Aliases: []string{"kind__name"}}
}

func collectionField() Field {
	return Field{Name: "collection", Label: "Collection", Type: TypeCollection, Lookups: []Lookup{Exact}, Default: Exact}
}

// PersonSet returns the person filters. Label types listed in alternateNames
// are searched together with the name.
func PersonSet(alternateNames []string) *Set {
	if len(alternateNames) == 0 {
		alternateNames = domain.DefaultAlternateNameTypes
	}
	types := append([]string(nil), alternateNames...)

	choices := []Choice{{Value: "", Label: "any"}}
	for _, g := range domain.GenderChoices {
		choices = append(choices, Choice{Value: string(g), Label: string(g)})
	}

	return &Set{
		Kind: domain.KindPerson,
		Fields: []Field{
			{
				Name:    "name",
				Label:   "Name",
				Type:    TypeText,
				Attr:    "name",
				Lookups: []Lookup{IContains},
				Method: func(value string) Expr {
					return Or{
						Match{Attr: "name", Lookup: IContains, Value: value},
						LabelMatch{Lookup: IContains, Value: value, LabelTypes: types},
					}
				},
				Distinct: true,
			},
			{Name: "first_name", Label: "First Name", Type: TypeText, Attr: "first_name", Lookups: []Lookup{IContains}, Default: IContains},
			{Name: "gender", Label: "Gender", Type: TypeChoice, Attr: "gender", Lookups: []Lookup{Exact}, Default: Exact, Choices: choices},
			dateField("start_date", "Date of birth"),
			dateField("end_date", "Date of death"),
			{Name: "profession", Label: "Profession", Type: TypeText, Attr: "professions", List: true, Lookups: []Lookup{IContains}, Default: IContains, Aliases: []string{"profession__name"}},
			collectionField(),
		},
	}
}

// PlaceSet returns the place filters
func PlaceSet() *Set {
	return &Set{
		Kind: domain.KindPlace,
		Fields: []Field{
			nameField(),
			{Name: "status", Label: "Status", Type: TypeText, Attr: "status", Lookups: []Lookup{IContains, Exact, IExact}, Default: IContains},
			{Name: "lng", Label: "Longitude", Type: TypeNumber, Attr: "lng", Lookups: []Lookup{LT, GT}},
			{Name: "lat", Label: "Latitude", Type: TypeNumber, Attr: "lat", Lookups: []Lookup{LT, GT}},
			collectionField(),
		},
	}
}

// InstitutionSet returns the institution filters
func InstitutionSet() *Set {
	return &Set{
		Kind: domain.KindInstitution,
		Fields: []Field{
			nameField(),
			dateField("start_date", "Date of foundation"),
			dateField("end_date", "Date of closing"),
			collectionField(),
		},
	}
}

// EventSet returns the event filters
func EventSet() *Set {
	return &Set{
		Kind: domain.KindEvent,
		Fields: []Field{
			nameField(),
			dateField("start_date", "Start date"),
			dateField("end_date", "End date"),
			kindField(),
			collectionField(),
		},
	}
}

// WorkSet returns the work filters
func WorkSet() *Set {
	return &Set{
		Kind: domain.KindWork,
		Fields: []Field{
			nameField(),
			dateField("start_date", "Start date"),
			dateField("end_date", "End date"),
			kindField(),
			collectionField(),
		},
	}
}

// Sets holds the filter set of every kind
type Sets map[domain.Kind]*Set

// DefaultSets returns the filter sets of the five catalog kinds
func DefaultSets(alternateNames []string) Sets {
	return Sets{
		domain.KindPerson:      PersonSet(alternateNames),
		domain.KindPlace:       PlaceSet(),
		domain.KindInstitution: InstitutionSet(),
		domain.KindEvent:       EventSet(),
		domain.KindWork:        WorkSet(),
	}
}

// For returns the set of kind
func (s Sets) For(kind domain.Kind) (*Set, error) {
	set, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no filter set for %q", domain.ErrUnknownKind, kind)
	}
	return set, nil
}
