package domain

import (
	"fmt"
	"strings"
)

// Kind identifies an entity type in the catalog
type Kind string

const (
	KindPerson      Kind = "person"
	KindPlace       Kind = "place"
	KindInstitution Kind = "institution"
	KindEvent       Kind = "event"
	KindWork        Kind = "work"
)

// ParseKind normalizes a kind name, accepting simple plurals ("persons", "places")
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "person", "persons", "people":
		return KindPerson, nil
	case "place", "places":
		return KindPlace, nil
	case "institution", "institutions":
		return KindInstitution, nil
	case "event", "events":
		return KindEvent, nil
	case "work", "works":
		return KindWork, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// KindSpec describes one registered entity kind
type KindSpec struct {
	Kind  Kind
	Label string
	New   func() Entity
}

// Registry maps entity kinds to their constructors.
//
// Registries are built explicitly; DefaultRegistry returns the five catalog
// kinds. Additional kinds are added with Register.
type Registry struct {
	specs map[Kind]KindSpec
	order []Kind
}

// NewRegistry creates a registry holding the given specs
func NewRegistry(specs ...KindSpec) (*Registry, error) {
	r := &Registry{specs: make(map[Kind]KindSpec)}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a registry with Person, Institution, Place, Event and Work
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		KindSpec{Kind: KindPerson, Label: "Person", New: func() Entity { return &Person{} }},
		KindSpec{Kind: KindInstitution, Label: "Institution", New: func() Entity { return &Institution{} }},
		KindSpec{Kind: KindPlace, Label: "Place", New: func() Entity { return &Place{} }},
		KindSpec{Kind: KindEvent, Label: "Event", New: func() Entity { return &Event{} }},
		KindSpec{Kind: KindWork, Label: "Work", New: func() Entity { return &Work{} }},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a kind. Registering the same kind twice is an error.
func (r *Registry) Register(spec KindSpec) error {
	if spec.Kind == "" {
		return fmt.Errorf("kind spec requires a kind")
	}
	if spec.New == nil {
		return fmt.Errorf("kind spec %s requires a constructor", spec.Kind)
	}
	if _, exists := r.specs[spec.Kind]; exists {
		return fmt.Errorf("kind %s already registered", spec.Kind)
	}
	if e := spec.New(); e.Kind() != spec.Kind {
		return fmt.Errorf("kind spec %s constructs %s entities", spec.Kind, e.Kind())
	}
	r.specs[spec.Kind] = spec
	r.order = append(r.order, spec.Kind)
	return nil
}

// Spec returns the spec registered for k
func (r *Registry) Spec(k Kind) (KindSpec, bool) {
	spec, ok := r.specs[k]
	return spec, ok
}

// New constructs an empty entity of kind k
func (r *Registry) New(k Kind) (Entity, error) {
	spec, ok := r.specs[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return spec.New(), nil
}

// Kinds returns registered kinds in registration order
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, len(r.order))
	copy(out, r.order)
	return out
}

// Grantable returns the kinds whose entities carry row-level permissions
func (r *Registry) Grantable() []Kind {
	var out []Kind
	for _, k := range r.order {
		if len(r.ObjectPermissions(k)) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// ObjectPermissions returns the codenames a collection grants its allowed
// groups on entities of kind k. It is nil for unknown and non-grantable kinds.
func (r *Registry) ObjectPermissions(k Kind) []string {
	spec, ok := r.specs[k]
	if !ok {
		return nil
	}
	g, ok := spec.New().(Grantable)
	if !ok {
		return nil
	}
	return g.ObjectPermissions()
}

// Resolve maps user input to a registered kind. Registered names match
// as-is; the built-in kinds also accept their plurals.
func (r *Registry) Resolve(s string) (Kind, error) {
	if _, ok := r.specs[Kind(s)]; ok {
		return Kind(s), nil
	}
	k, err := ParseKind(s)
	if err != nil {
		return "", err
	}
	if _, ok := r.specs[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}
