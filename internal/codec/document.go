package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"prosopography/internal/domain"
)

// document is the on-disk shape shared by every format. Groups and
// collections are referenced by name so fixtures stay independent of
// database keys.
type document struct {
	Groups      []string        `yaml:"groups,omitempty" json:"groups,omitempty" toml:"groups,omitempty"`
	Collections []collectionDoc `yaml:"collections,omitempty" json:"collections,omitempty" toml:"collections,omitempty"`
	Entities    []entityDoc     `yaml:"entities,omitempty" json:"entities,omitempty" toml:"entities,omitempty"`
}

type collectionDoc struct {
	Name        string   `yaml:"name" json:"name" toml:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Groups      []string `yaml:"groups_allowed,omitempty" json:"groups_allowed,omitempty" toml:"groups_allowed,omitempty"`
}

type entityDoc struct {
	Kind             string         `yaml:"kind" json:"kind" toml:"kind"`
	Name             string         `yaml:"name" json:"name" toml:"name"`
	StartDate        string         `yaml:"start_date,omitempty" json:"start_date,omitempty" toml:"start_date,omitempty"`
	EndDate          string         `yaml:"end_date,omitempty" json:"end_date,omitempty" toml:"end_date,omitempty"`
	StartDateWritten string         `yaml:"start_date_written,omitempty" json:"start_date_written,omitempty" toml:"start_date_written,omitempty"`
	EndDateWritten   string         `yaml:"end_date_written,omitempty" json:"end_date_written,omitempty" toml:"end_date_written,omitempty"`
	Status           string         `yaml:"status,omitempty" json:"status,omitempty" toml:"status,omitempty"`
	References       string         `yaml:"references,omitempty" json:"references,omitempty" toml:"references,omitempty"`
	Notes            string         `yaml:"notes,omitempty" json:"notes,omitempty" toml:"notes,omitempty"`
	URIs             []uriDoc       `yaml:"uris,omitempty" json:"uris,omitempty" toml:"uris,omitempty"`
	Labels           []labelDoc     `yaml:"labels,omitempty" json:"labels,omitempty" toml:"labels,omitempty"`
	Collections      []string       `yaml:"collections,omitempty" json:"collections,omitempty" toml:"collections,omitempty"`
	Attrs            map[string]any `yaml:"attrs,omitempty" json:"attrs,omitempty" toml:"attrs,omitempty"`
}

type uriDoc struct {
	URI    string `yaml:"uri" json:"uri" toml:"uri"`
	Domain string `yaml:"domain,omitempty" json:"domain,omitempty" toml:"domain,omitempty"`
}

type labelDoc struct {
	Label    string `yaml:"label" json:"label" toml:"label"`
	Type     string `yaml:"type,omitempty" json:"type,omitempty" toml:"type,omitempty"`
	Language string `yaml:"language,omitempty" json:"language,omitempty" toml:"language,omitempty"`
}

// baseKeys are TempEntity JSON keys carried by explicit entityDoc fields
var baseKeys = []string{
	"id", "name", "start_date", "end_date", "start_date_written", "end_date_written",
	"status", "references", "notes", "created_at", "updated_at", "uris", "labels", "collections",
}

// toFragment resolves names to fragment-local ids: the n-th group or
// collection of the document gets id n, counting from 1
func (d *document) toFragment(registry *domain.Registry) (*domain.CatalogFragment, error) {
	f := domain.NewCatalogFragment()

	groupIDs := make(map[string]int64, len(d.Groups))
	for i, name := range d.Groups {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("group %d has no name", i+1)
		}
		if _, dup := groupIDs[name]; dup {
			return nil, fmt.Errorf("group %q listed twice", name)
		}
		id := int64(i + 1)
		groupIDs[name] = id
		f.AddGroup(domain.Group{ID: id, Name: name})
	}

	collectionIDs := make(map[string]int64, len(d.Collections))
	for i, cd := range d.Collections {
		name := strings.TrimSpace(cd.Name)
		if name == "" {
			return nil, fmt.Errorf("collection %d has no name", i+1)
		}
		if _, dup := collectionIDs[name]; dup {
			return nil, fmt.Errorf("collection %q listed twice", name)
		}
		c := domain.Collection{ID: int64(i + 1), Name: name, Description: cd.Description}
		for _, g := range cd.Groups {
			id, ok := groupIDs[strings.TrimSpace(g)]
			if !ok {
				return nil, fmt.Errorf("collection %q allows unknown group %q", name, g)
			}
			c.GroupIDs = append(c.GroupIDs, id)
		}
		collectionIDs[name] = c.ID
		f.AddCollection(c)
	}

	for i, ed := range d.Entities {
		e, err := ed.toEntity(registry, collectionIDs)
		if err != nil {
			return nil, fmt.Errorf("entity %d (%s): %w", i+1, ed.Name, err)
		}
		f.AddEntity(e)
	}

	return f, nil
}

func (ed *entityDoc) toEntity(registry *domain.Registry, collectionIDs map[string]int64) (domain.Entity, error) {
	kind := domain.Kind(strings.TrimSpace(ed.Kind))
	if parsed, err := domain.ParseKind(ed.Kind); err == nil {
		kind = parsed
	}
	e, err := registry.New(kind)
	if err != nil {
		return nil, err
	}

	if len(ed.Attrs) > 0 {
		data, err := json.Marshal(ed.Attrs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attrs: %w", err)
		}
		if err := json.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("invalid attrs for %s: %w", kind, err)
		}
	}

	base := e.Base()
	base.Name = ed.Name
	base.StartDateWritten = ed.StartDateWritten
	base.EndDateWritten = ed.EndDateWritten
	base.Status = ed.Status
	base.References = ed.References
	base.Notes = ed.Notes
	if base.StartDate, err = parseOptionalDate(ed.StartDate); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if base.EndDate, err = parseOptionalDate(ed.EndDate); err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	for _, u := range ed.URIs {
		base.URIs = append(base.URIs, domain.URI{URI: u.URI, Domain: u.Domain})
	}
	for _, l := range ed.Labels {
		base.Labels = append(base.Labels, domain.Label{Label: l.Label, LabelType: l.Type, Language: l.Language})
	}
	for _, name := range ed.Collections {
		id, ok := collectionIDs[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown collection %q", name)
		}
		base.CollectionIDs = append(base.CollectionIDs, id)
	}
	return e, nil
}

// fromFragment builds a document, naming groups and collections by the
// fragment's ids
func fromFragment(f *domain.CatalogFragment) (*document, error) {
	d := &document{}

	groupNames := make(map[int64]string, len(f.Groups))
	for _, g := range f.Groups {
		groupNames[g.ID] = g.Name
		d.Groups = append(d.Groups, g.Name)
	}

	collectionNames := make(map[int64]string, len(f.Collections))
	for _, c := range f.Collections {
		collectionNames[c.ID] = c.Name
		cd := collectionDoc{Name: c.Name, Description: c.Description}
		for _, gid := range c.GroupIDs {
			name, ok := groupNames[gid]
			if !ok {
				return nil, fmt.Errorf("collection %q allows group %d missing from export", c.Name, gid)
			}
			cd.Groups = append(cd.Groups, name)
		}
		d.Collections = append(d.Collections, cd)
	}

	for _, e := range f.Entities {
		ed, err := entityToDoc(e, collectionNames)
		if err != nil {
			return nil, err
		}
		d.Entities = append(d.Entities, ed)
	}
	return d, nil
}

func entityToDoc(e domain.Entity, collectionNames map[int64]string) (entityDoc, error) {
	base := e.Base()
	ed := entityDoc{
		Kind:             string(e.Kind()),
		Name:             base.Name,
		StartDate:        domain.DatePtrString(base.StartDate),
		EndDate:          domain.DatePtrString(base.EndDate),
		StartDateWritten: base.StartDateWritten,
		EndDateWritten:   base.EndDateWritten,
		Status:           base.Status,
		References:       base.References,
		Notes:            base.Notes,
	}
	for _, u := range base.URIs {
		ed.URIs = append(ed.URIs, uriDoc{URI: u.URI, Domain: u.Domain})
	}
	for _, l := range base.Labels {
		ed.Labels = append(ed.Labels, labelDoc{Label: l.Label, Type: l.LabelType, Language: l.Language})
	}
	for _, cid := range base.CollectionIDs {
		name, ok := collectionNames[cid]
		if !ok {
			return entityDoc{}, fmt.Errorf("%s %q is in collection %d missing from export", e.Kind(), base.Name, cid)
		}
		ed.Collections = append(ed.Collections, name)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return entityDoc{}, fmt.Errorf("failed to encode %s %q: %w", e.Kind(), base.Name, err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return entityDoc{}, fmt.Errorf("failed to decode %s %q: %w", e.Kind(), base.Name, err)
	}
	for _, key := range baseKeys {
		delete(attrs, key)
	}
	if len(attrs) > 0 {
		ed.Attrs = attrs
	}
	return ed, nil
}

func parseOptionalDate(s string) (*domain.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
