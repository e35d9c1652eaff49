package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"prosopography/internal/codec"
	"prosopography/internal/domain"
	"prosopography/internal/filter"
)

// Import strategies
const (
	// StrategyMerge updates entities that share a URI with an imported one,
	// or for records without URIs the same kind, name, start date and first
	// name, and inserts the rest
	StrategyMerge = "merge"
	// StrategyReplace deletes every entity before importing
	StrategyReplace = "replace"
)

// ImportResult represents the result of an import operation
type ImportResult struct {
	GroupsCreated      int    `json:"groups_created"`
	CollectionsCreated int    `json:"collections_created"`
	EntitiesCreated    int    `json:"entities_created"`
	EntitiesUpdated    int    `json:"entities_updated"`
	EntitiesDeleted    int    `json:"entities_deleted"`
	Strategy           string `json:"strategy"`
}

// ImportFile imports a fixture file, picking the format from its extension
func (s *CatalogService) ImportFile(ctx context.Context, path, strategy string) (*ImportResult, error) {
	c, err := codec.ForPath(path, s.registry)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	fragment, err := c.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s.ImportFragment(ctx, fragment, strategy)
}

// Import reads a fixture in the given format
func (s *CatalogService) Import(ctx context.Context, r io.Reader, format, strategy string) (*ImportResult, error) {
	c, err := codec.ForFormat(format, s.registry)
	if err != nil {
		return nil, err
	}
	fragment, err := c.Parse(r)
	if err != nil {
		return nil, err
	}
	return s.ImportFragment(ctx, fragment, strategy)
}

// ImportFragment stores a fragment. Groups and collections are matched by
// name and created when missing; the fragment's ids for them are local to
// the fragment.
func (s *CatalogService) ImportFragment(ctx context.Context, fragment *domain.CatalogFragment, strategy string) (*ImportResult, error) {
	if strategy == "" {
		strategy = StrategyMerge
	}
	if strategy != StrategyMerge && strategy != StrategyReplace {
		return nil, fmt.Errorf("invalid strategy %s, must be '%s' or '%s'", strategy, StrategyMerge, StrategyReplace)
	}
	result := &ImportResult{Strategy: strategy}

	if strategy == StrategyReplace {
		n, err := s.deleteAll(ctx)
		if err != nil {
			return nil, err
		}
		result.EntitiesDeleted = n
	}

	groupIDs := make(map[int64]int64, len(fragment.Groups))
	for _, g := range fragment.Groups {
		existing, err := s.repo.GetGroupByName(ctx, g.Name)
		switch {
		case err == nil:
			groupIDs[g.ID] = existing.ID
		case errors.Is(err, domain.ErrNotFound):
			created, err := s.CreateGroup(ctx, g.Name)
			if err != nil {
				return nil, err
			}
			groupIDs[g.ID] = created.ID
			result.GroupsCreated++
		default:
			return nil, err
		}
	}

	collectionIDs := make(map[int64]int64, len(fragment.Collections))
	for _, c := range fragment.Collections {
		groups, err := remap(groupIDs, c.GroupIDs, "group")
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", c.Name, err)
		}
		existing, err := s.repo.GetCollectionByName(ctx, c.Name)
		switch {
		case err == nil:
			if err := s.AllowGroups(ctx, existing.ID, groups...); err != nil {
				return nil, err
			}
			collectionIDs[c.ID] = existing.ID
		case errors.Is(err, domain.ErrNotFound):
			created, err := s.CreateCollection(ctx, c.Name, c.Description, groups...)
			if err != nil {
				return nil, err
			}
			collectionIDs[c.ID] = created.ID
			result.CollectionsCreated++
		default:
			return nil, err
		}
	}

	for _, e := range fragment.Entities {
		base := e.Base()
		collections, err := remap(collectionIDs, base.CollectionIDs, "collection")
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", e.Kind(), base.Name, err)
		}
		base.CollectionIDs = collections
		base.ID = 0

		if strategy == StrategyMerge {
			existing, err := s.findExisting(ctx, e)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				mergeRelations(base, existing.Base())
			}
		}

		created := base.ID == 0
		if err := s.Save(ctx, e); err != nil {
			return nil, fmt.Errorf("%s %q: %w", e.Kind(), base.Name, err)
		}
		if created {
			result.EntitiesCreated++
		} else {
			result.EntitiesUpdated++
		}
	}

	s.log.Info().
		Str("strategy", strategy).
		Int("created", result.EntitiesCreated).
		Int("updated", result.EntitiesUpdated).
		Int("deleted", result.EntitiesDeleted).
		Msg("catalog imported")
	s.eventBus.Publish(Event{Type: EventCatalogImported, Payload: result})

	return result, nil
}

// findExisting returns the stored entity an imported record updates. Records
// with URIs match on a shared URI only; records without fall back to their
// natural key, so re-importing a fixture does not insert them again.
func (s *CatalogService) findExisting(ctx context.Context, e domain.Entity) (domain.Entity, error) {
	hasURI := false
	for _, u := range e.Base().URIs {
		uri := domain.NormalizeURI(u.URI)
		if uri == "" {
			continue
		}
		hasURI = true
		existing, err := s.repo.GetEntityByURI(ctx, e.Kind(), uri)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return existing, nil
	}
	if hasURI {
		return nil, nil
	}
	return s.findByKey(ctx, e)
}

// findByKey returns the oldest stored entity with the same natural key as e
func (s *CatalogService) findByKey(ctx context.Context, e domain.Entity) (domain.Entity, error) {
	if n, ok := e.(domain.Normalizer); ok {
		n.Normalize()
	}
	name := e.Base().Name
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	candidates, err := s.repo.Search(ctx, filter.NewQuery(e.Kind()).Add(filter.Match{Attr: "name", Lookup: filter.Exact, Value: name}))
	if err != nil {
		return nil, fmt.Errorf("failed to match %s %q: %w", e.Kind(), name, err)
	}
	want := naturalKey(e)
	for _, c := range candidates {
		if naturalKey(c) == want {
			return c, nil
		}
	}
	return nil, nil
}

// naturalKey identifies an entity without URIs across imports
func naturalKey(e domain.Entity) string {
	base := e.Base()
	key := string(e.Kind()) + "\x00" + base.Name + "\x00" + domain.DatePtrString(base.StartDate)
	if p, ok := e.(*domain.Person); ok {
		key += "\x00" + p.FirstName
	}
	return key
}

// mergeRelations points base at the stored entity and keeps the stored
// URIs and collections alongside the imported ones
func mergeRelations(base, stored *domain.TempEntity) {
	base.ID = stored.ID
	uris := append([]domain.URI(nil), stored.URIs...)
	for _, u := range base.URIs {
		if !stored.HasURI(domain.NormalizeURI(u.URI)) {
			uris = append(uris, u)
		}
	}
	base.URIs = uris

	collections := append([]int64(nil), stored.CollectionIDs...)
	for _, id := range base.CollectionIDs {
		if !stored.InCollection(id) {
			collections = append(collections, id)
		}
	}
	base.CollectionIDs = collections
}

func remap(ids map[int64]int64, local []int64, what string) ([]int64, error) {
	out := make([]int64, 0, len(local))
	for _, id := range local {
		mapped, ok := ids[id]
		if !ok {
			return nil, fmt.Errorf("unknown %s %d", what, id)
		}
		out = append(out, mapped)
	}
	return out, nil
}

func (s *CatalogService) deleteAll(ctx context.Context) (int, error) {
	deleted := 0
	for _, kind := range s.registry.Kinds() {
		entities, err := s.repo.Search(ctx, filter.NewQuery(kind))
		if err != nil {
			return deleted, err
		}
		for _, e := range entities {
			if err := s.Delete(ctx, kind, e.Base().ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// ExportFragment collects the whole catalog. Ids in the fragment are
// database keys.
func (s *CatalogService) ExportFragment(ctx context.Context) (*domain.CatalogFragment, error) {
	fragment := domain.NewCatalogFragment()

	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		fragment.AddGroup(g)
	}

	collections, err := s.repo.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		fragment.AddCollection(c)
	}

	for _, kind := range s.registry.Kinds() {
		entities, err := s.repo.Search(ctx, filter.NewQuery(kind))
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			fragment.AddEntity(e)
		}
	}
	return fragment, nil
}

// Export writes the whole catalog in the given format
func (s *CatalogService) Export(ctx context.Context, w io.Writer, format string) error {
	c, err := codec.ForFormat(format, s.registry)
	if err != nil {
		return err
	}
	fragment, err := s.ExportFragment(ctx)
	if err != nil {
		return err
	}
	return c.Export(fragment, w)
}
