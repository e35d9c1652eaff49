package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"prosopography/internal/domain"
	"prosopography/internal/filter"
	"prosopography/internal/repository"
)

// Options configures a CatalogService
type Options struct {
	// BaseURI prefixes the default URI of entities saved without one
	BaseURI string
	// AlternateNames are the label types searched by the person name filter
	AlternateNames []string
	// Registry lists the entity kinds; nil selects the default kinds
	Registry *domain.Registry
	Logger   zerolog.Logger
}

// CatalogService provides business logic for catalog operations
type CatalogService struct {
	repo     repository.Repository
	registry *domain.Registry
	filters  filter.Sets
	eventBus *EventBus
	log      zerolog.Logger
}

// NewCatalogService creates a catalog service and registers its hooks on repo
func NewCatalogService(repo repository.Repository, eventBus *EventBus, opts Options) *CatalogService {
	registry := opts.Registry
	if registry == nil {
		registry = domain.DefaultRegistry()
	}
	s := &CatalogService{
		repo:     repo,
		registry: registry,
		filters:  filter.DefaultSets(opts.AlternateNames),
		eventBus: eventBus,
		log:      opts.Logger,
	}

	repo.OnSave(&DefaultURIHook{BaseURI: opts.BaseURI, Log: s.log})
	repo.OnSave(&RevisionHook{Log: s.log})
	perms := &PermissionHook{Registry: registry, Log: s.log}
	repo.OnMembership(perms)
	repo.OnGroups(perms)

	return s
}

// Registry returns the kinds served by the catalog
func (s *CatalogService) Registry() *domain.Registry {
	return s.registry
}

// ============================================================================
// Entities
// ============================================================================

// Save inserts or updates an entity
func (s *CatalogService) Save(ctx context.Context, e domain.Entity) error {
	if err := s.repo.SaveEntity(ctx, e); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventEntitySaved,
		Payload: map[string]any{"kind": e.Kind(), "id": e.Base().ID},
	})
	return nil
}

// Get retrieves an entity by primary key
func (s *CatalogService) Get(ctx context.Context, kind domain.Kind, id int64) (domain.Entity, error) {
	return s.repo.GetEntity(ctx, kind, id)
}

// Lookup resolves a reference to an entity of kind. A reference made of
// ASCII digits is a primary key, anything else is one of the entity's URIs.
// Missing entities yield an error matching domain.ErrNotFound, empty or
// overflowing keys one matching domain.ErrMalformedRef.
func (s *CatalogService) Lookup(ctx context.Context, kind domain.Kind, ref string) (domain.Entity, error) {
	if _, ok := s.registry.Spec(kind); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	r, err := domain.ParseRef(ref)
	if err != nil {
		return nil, err
	}

	var e domain.Entity
	if r.IsID() {
		e, err = s.repo.GetEntity(ctx, kind, r.ID)
	} else {
		e, err = s.repo.GetEntityByURI(ctx, kind, r.URI)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up %s %s: %w", kind, r, err)
	}
	return e, nil
}

// Delete removes an entity
func (s *CatalogService) Delete(ctx context.Context, kind domain.Kind, id int64) error {
	if err := s.repo.DeleteEntity(ctx, kind, id); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventEntityDeleted,
		Payload: map[string]any{"kind": kind, "id": id},
	})
	return nil
}

// Page is one page of search results
type Page struct {
	Kind   domain.Kind     `json:"kind"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
	Items  []domain.Entity `json:"items"`
}

// Search parses filter parameters for kind and returns the matching page
func (s *CatalogService) Search(ctx context.Context, kind domain.Kind, values url.Values) (*Page, error) {
	set, err := s.filters.For(kind)
	if err != nil {
		return nil, err
	}
	q, err := set.Parse(values)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, q)
}

// Query runs a prepared query
func (s *CatalogService) Query(ctx context.Context, q *filter.Query) (*Page, error) {
	items, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = make([]domain.Entity, 0)
	}
	return &Page{Kind: q.Kind, Total: total, Limit: q.Limit, Offset: q.Offset, Items: items}, nil
}

// Filters describes the filter fields accepted for kind
func (s *CatalogService) Filters(kind domain.Kind) ([]filter.FieldDescription, error) {
	set, err := s.filters.For(kind)
	if err != nil {
		return nil, err
	}
	return set.Describe(), nil
}

// History lists the revisions of an entity, newest first
func (s *CatalogService) History(ctx context.Context, kind domain.Kind, id int64) ([]domain.Revision, error) {
	if _, err := s.repo.GetEntity(ctx, kind, id); err != nil {
		return nil, err
	}
	revs, err := s.repo.ListRevisions(ctx, id)
	if err != nil {
		return nil, err
	}
	if revs == nil {
		revs = make([]domain.Revision, 0)
	}
	return revs, nil
}

// Permissions lists the object permissions held on an entity
func (s *CatalogService) Permissions(ctx context.Context, kind domain.Kind, id int64) ([]domain.Grant, error) {
	if _, err := s.repo.GetEntity(ctx, kind, id); err != nil {
		return nil, err
	}
	grants, err := s.repo.ListGrants(ctx, id)
	if err != nil {
		return nil, err
	}
	if grants == nil {
		grants = make([]domain.Grant, 0)
	}
	return grants, nil
}

// HasPermission reports whether a group may perform action on an entity
func (s *CatalogService) HasPermission(ctx context.Context, groupID int64, action domain.Action, kind domain.Kind, id int64) (bool, error) {
	return s.repo.HasPermission(ctx, groupID, domain.Codename(action, kind), id)
}

// ============================================================================
// Collections and Groups
// ============================================================================

// AddToCollections adds an entity to collections, granting their groups
func (s *CatalogService) AddToCollections(ctx context.Context, entityID int64, collectionIDs ...int64) error {
	if err := s.repo.AddToCollections(ctx, entityID, collectionIDs...); err != nil {
		return err
	}
	s.publishMembership(entityID, "added", collectionIDs)
	return nil
}

// RemoveFromCollections removes an entity from collections, revoking
// grants no longer justified
func (s *CatalogService) RemoveFromCollections(ctx context.Context, entityID int64, collectionIDs ...int64) error {
	if err := s.repo.RemoveFromCollections(ctx, entityID, collectionIDs...); err != nil {
		return err
	}
	s.publishMembership(entityID, "removed", collectionIDs)
	return nil
}

// SetCollections replaces the collections of an entity
func (s *CatalogService) SetCollections(ctx context.Context, entityID int64, collectionIDs []int64) error {
	if err := s.repo.SetCollections(ctx, entityID, collectionIDs); err != nil {
		return err
	}
	s.publishMembership(entityID, "set", collectionIDs)
	return nil
}

func (s *CatalogService) publishMembership(entityID int64, action string, collectionIDs []int64) {
	s.eventBus.Publish(Event{
		Type:    EventMembershipChanged,
		Payload: map[string]any{"entity_id": entityID, "action": action, "collections": collectionIDs},
	})
}

// CreateGroup creates a group
func (s *CatalogService) CreateGroup(ctx context.Context, name string) (*domain.Group, error) {
	g := &domain.Group{Name: name}
	if err := s.repo.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{Type: EventGroupCreated, Payload: g})
	return g, nil
}

// ListGroups returns all groups
func (s *CatalogService) ListGroups(ctx context.Context) ([]domain.Group, error) {
	return s.repo.ListGroups(ctx)
}

// CreateCollection creates a collection allowing groupIDs
func (s *CatalogService) CreateCollection(ctx context.Context, name, description string, groupIDs ...int64) (*domain.Collection, error) {
	c := &domain.Collection{Name: name, Description: description, GroupIDs: groupIDs}
	if err := s.repo.CreateCollection(ctx, c); err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{Type: EventCollectionCreated, Payload: c})
	return c, nil
}

// ListCollections returns all collections
func (s *CatalogService) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	return s.repo.ListCollections(ctx)
}

// ResolveCollection finds a collection by numeric id or by name
func (s *CatalogService) ResolveCollection(ctx context.Context, ref string) (*domain.Collection, error) {
	if r, err := domain.ParseRef(ref); err == nil && r.IsID() {
		return s.repo.GetCollection(ctx, r.ID)
	}
	return s.repo.GetCollectionByName(ctx, ref)
}

// ResolveGroup finds a group by numeric id or by name
func (s *CatalogService) ResolveGroup(ctx context.Context, ref string) (*domain.Group, error) {
	if r, err := domain.ParseRef(ref); err == nil && r.IsID() {
		return s.repo.GetGroup(ctx, r.ID)
	}
	return s.repo.GetGroupByName(ctx, ref)
}

// AllowGroups adds groups to a collection's allowed groups, granting them on
// the collection's entities
func (s *CatalogService) AllowGroups(ctx context.Context, collectionID int64, groupIDs ...int64) error {
	if err := s.repo.AddGroupsToCollection(ctx, collectionID, groupIDs...); err != nil {
		return err
	}
	s.publishGroups(collectionID, "allowed", groupIDs)
	return nil
}

// DisallowGroups removes groups from a collection's allowed groups
func (s *CatalogService) DisallowGroups(ctx context.Context, collectionID int64, groupIDs ...int64) error {
	if err := s.repo.RemoveGroupsFromCollection(ctx, collectionID, groupIDs...); err != nil {
		return err
	}
	s.publishGroups(collectionID, "disallowed", groupIDs)
	return nil
}

func (s *CatalogService) publishGroups(collectionID int64, action string, groupIDs []int64) {
	s.eventBus.Publish(Event{
		Type:    EventGroupsChanged,
		Payload: map[string]any{"collection_id": collectionID, "action": action, "groups": groupIDs},
	})
}
