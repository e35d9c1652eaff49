package domain

// CatalogFragment is a partial catalog for import/export operations
type CatalogFragment struct {
	Groups      []Group      `json:"groups"`
	Collections []Collection `json:"collections"`
	Entities    []Entity     `json:"entities"`
}

// NewCatalogFragment creates an empty fragment
func NewCatalogFragment() *CatalogFragment {
	return &CatalogFragment{
		Groups:      make([]Group, 0),
		Collections: make([]Collection, 0),
		Entities:    make([]Entity, 0),
	}
}

// AddGroup adds a group to the fragment
func (f *CatalogFragment) AddGroup(g Group) {
	f.Groups = append(f.Groups, g)
}

// AddCollection adds a collection to the fragment
func (f *CatalogFragment) AddCollection(c Collection) {
	f.Collections = append(f.Collections, c)
}

// AddEntity adds an entity to the fragment
func (f *CatalogFragment) AddEntity(e Entity) {
	f.Entities = append(f.Entities, e)
}
