package service

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prosopography/internal/domain"
	"prosopography/internal/repository"
	"prosopography/internal/repository/sqlite"
)

const testBaseURI = "https://catalog.example.org/entity/"

func newTestService(t *testing.T, registry *domain.Registry) (*CatalogService, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.New(":memory:", registry)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	svc := NewCatalogService(repo, NewEventBus(), Options{
		BaseURI:  testBaseURI,
		Registry: registry,
		Logger:   zerolog.Nop(),
	})
	return svc, repo
}

// grantKeys renders grants as sorted "group:codename" strings
func grantKeys(t *testing.T, svc *CatalogService, kind domain.Kind, id int64) []string {
	t.Helper()
	grants, err := svc.Permissions(context.Background(), kind, id)
	require.NoError(t, err)
	keys := make([]string, 0, len(grants))
	for _, g := range grants {
		keys = append(keys, fmt.Sprintf("%d:%s", g.GroupID, g.Codename))
	}
	sort.Strings(keys)
	return keys
}

func personKeys(groups ...int64) []string {
	keys := make([]string, 0, 2*len(groups))
	for _, g := range groups {
		keys = append(keys, fmt.Sprintf("%d:change_person", g), fmt.Sprintf("%d:delete_person", g))
	}
	sort.Strings(keys)
	return keys
}

func newPerson(name string) *domain.Person {
	return &domain.Person{TempEntity: domain.TempEntity{Name: name}}
}

// ============================================================================
// Default URI
// ============================================================================

func TestDefaultURIAssigned(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	p := newPerson("Doe")
	require.NoError(t, svc.Save(ctx, p))
	require.Len(t, p.URIs, 1)
	assert.Equal(t, domain.DefaultURI(testBaseURI, p.ID), p.URIs[0].URI)
	assert.Equal(t, domain.DefaultURIDomain, p.URIs[0].Domain)

	require.NoError(t, svc.Save(ctx, p))
	got, err := svc.Get(ctx, domain.KindPerson, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Base().URIs, 1, "a second save adds no uri")
}

func TestDefaultURISkippedWhenSupplied(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	place := &domain.Place{TempEntity: domain.TempEntity{
		Name: "Wien",
		URIs: []domain.URI{{URI: "https://sws.geonames.org/2761369/", Domain: "geonames"}},
	}}
	require.NoError(t, svc.Save(ctx, place))
	require.Len(t, place.URIs, 1)
	assert.Equal(t, "geonames", place.URIs[0].Domain)
}

func TestDefaultURIRestoredWhenAllRemoved(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	w := &domain.Work{TempEntity: domain.TempEntity{Name: "Opus", URIs: []domain.URI{{URI: "http://example.org/w/1"}}}}
	require.NoError(t, svc.Save(ctx, w))

	w.URIs = nil
	require.NoError(t, svc.Save(ctx, w))
	require.Len(t, w.URIs, 1)
	assert.Equal(t, domain.DefaultURI(testBaseURI, w.ID), w.URIs[0].URI)
}

// ============================================================================
// Permission Propagation
// ============================================================================

func TestPermissionPropagation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	g1, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)
	g2, err := svc.CreateGroup(ctx, "reviewers")
	require.NoError(t, err)
	c1, err := svc.CreateCollection(ctx, "Letters", "", g1.ID)
	require.NoError(t, err)
	c2, err := svc.CreateCollection(ctx, "Diaries", "", g1.ID, g2.ID)
	require.NoError(t, err)

	p := newPerson("Doe")
	require.NoError(t, svc.Save(ctx, p))
	assert.Empty(t, grantKeys(t, svc, domain.KindPerson, p.ID))

	require.NoError(t, svc.AddToCollections(ctx, p.ID, c1.ID))
	assert.Equal(t, personKeys(g1.ID), grantKeys(t, svc, domain.KindPerson, p.ID))

	require.NoError(t, svc.AddToCollections(ctx, p.ID, c2.ID))
	assert.Equal(t, personKeys(g1.ID, g2.ID), grantKeys(t, svc, domain.KindPerson, p.ID))

	require.NoError(t, svc.RemoveFromCollections(ctx, p.ID, c1.ID))
	assert.Equal(t, personKeys(g1.ID, g2.ID), grantKeys(t, svc, domain.KindPerson, p.ID), "c2 still justifies g1")

	require.NoError(t, svc.RemoveFromCollections(ctx, p.ID, c2.ID))
	assert.Empty(t, grantKeys(t, svc, domain.KindPerson, p.ID))

	ok, err := svc.HasPermission(ctx, g1.ID, domain.ActionChange, domain.KindPerson, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionsOnSaveWithCollections(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)
	c, err := svc.CreateCollection(ctx, "Letters", "", g.ID)
	require.NoError(t, err)

	inst := &domain.Institution{TempEntity: domain.TempEntity{Name: "Akademie", CollectionIDs: []int64{c.ID}}}
	require.NoError(t, svc.Save(ctx, inst))
	assert.Equal(t,
		[]string{fmt.Sprintf("%d:change_institution", g.ID), fmt.Sprintf("%d:delete_institution", g.ID)},
		grantKeys(t, svc, domain.KindInstitution, inst.ID))
}

func TestSetCollectionsKeepsGrantsJustifiedByNewCollection(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)
	c1, err := svc.CreateCollection(ctx, "c1", "", g.ID)
	require.NoError(t, err)
	c2, err := svc.CreateCollection(ctx, "c2", "", g.ID)
	require.NoError(t, err)
	c3, err := svc.CreateCollection(ctx, "c3", "", g.ID)
	require.NoError(t, err)
	c4, err := svc.CreateCollection(ctx, "c4", "")
	require.NoError(t, err)

	p := newPerson("Doe")
	require.NoError(t, svc.Save(ctx, p))
	require.NoError(t, svc.AddToCollections(ctx, p.ID, c1.ID, c2.ID))

	require.NoError(t, svc.SetCollections(ctx, p.ID, []int64{c3.ID}))
	assert.Equal(t, personKeys(g.ID), grantKeys(t, svc, domain.KindPerson, p.ID))

	require.NoError(t, svc.SetCollections(ctx, p.ID, []int64{c4.ID}))
	assert.Empty(t, grantKeys(t, svc, domain.KindPerson, p.ID))
}

func TestGroupCascade(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	c, err := svc.CreateCollection(ctx, "Letters", "")
	require.NoError(t, err)
	other, err := svc.CreateCollection(ctx, "Diaries", "")
	require.NoError(t, err)
	g, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)

	p := newPerson("Doe")
	p.CollectionIDs = []int64{c.ID}
	require.NoError(t, svc.Save(ctx, p))
	place := &domain.Place{TempEntity: domain.TempEntity{Name: "Wien", CollectionIDs: []int64{c.ID}}}
	require.NoError(t, svc.Save(ctx, place))
	outsider := newPerson("Roe")
	outsider.CollectionIDs = []int64{other.ID}
	require.NoError(t, svc.Save(ctx, outsider))

	require.NoError(t, svc.AllowGroups(ctx, c.ID, g.ID))

	assert.Equal(t, personKeys(g.ID), grantKeys(t, svc, domain.KindPerson, p.ID))
	assert.Equal(t,
		[]string{fmt.Sprintf("%d:change_place", g.ID), fmt.Sprintf("%d:delete_place", g.ID)},
		grantKeys(t, svc, domain.KindPlace, place.ID))
	assert.Empty(t, grantKeys(t, svc, domain.KindPerson, outsider.ID))
}

func TestGroupRemovalKeepsGrantsJustifiedElsewhere(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)
	c1, err := svc.CreateCollection(ctx, "c1", "", g.ID)
	require.NoError(t, err)
	c2, err := svc.CreateCollection(ctx, "c2", "", g.ID)
	require.NoError(t, err)

	both := newPerson("Both")
	both.CollectionIDs = []int64{c1.ID, c2.ID}
	require.NoError(t, svc.Save(ctx, both))
	only := newPerson("Only")
	only.CollectionIDs = []int64{c1.ID}
	require.NoError(t, svc.Save(ctx, only))

	require.NoError(t, svc.DisallowGroups(ctx, c1.ID, g.ID))
	assert.Equal(t, personKeys(g.ID), grantKeys(t, svc, domain.KindPerson, both.ID))
	assert.Empty(t, grantKeys(t, svc, domain.KindPerson, only.ID))
}

// note is a kind without object permissions
type note struct {
	domain.TempEntity
}

func (n *note) Kind() domain.Kind { return "note" }
func (n *note) String() string    { return n.Name }

func TestNonGrantableKindGetsNoGrants(t *testing.T) {
	registry := domain.DefaultRegistry()
	require.NoError(t, registry.Register(domain.KindSpec{Kind: "note", Label: "Note", New: func() domain.Entity { return &note{} }}))
	svc, _ := newTestService(t, registry)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)
	c, err := svc.CreateCollection(ctx, "Letters", "", g.ID)
	require.NoError(t, err)
	g2, err := svc.CreateGroup(ctx, "reviewers")
	require.NoError(t, err)

	n := &note{TempEntity: domain.TempEntity{Name: "memo", CollectionIDs: []int64{c.ID}}}
	require.NoError(t, svc.Save(ctx, n))
	require.NoError(t, svc.AllowGroups(ctx, c.ID, g2.ID))
	assert.Empty(t, grantKeys(t, svc, "note", n.ID))

	require.Len(t, n.URIs, 1, "non-grantable kinds still get a default uri")
}

func TestPermissionHookAsksRegistry(t *testing.T) {
	places, err := domain.NewRegistry(domain.KindSpec{Kind: domain.KindPlace, Label: "Place", New: func() domain.Entity { return &domain.Place{} }})
	require.NoError(t, err)
	hook := &PermissionHook{Registry: places, Log: zerolog.Nop()}
	ctx := context.Background()

	// A kind outside the registry is not grantable, so the transaction is never touched.
	p := newPerson("Doe")
	assert.NoError(t, hook.BeforeAdd(ctx, nil, p, []int64{1}))
	assert.NoError(t, hook.AfterRemove(ctx, nil, p, []int64{1}))
}

// ============================================================================
// Lookup
// ============================================================================

func TestLookup(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	p := &domain.Person{TempEntity: domain.TempEntity{Name: "Doe", URIs: []domain.URI{{URI: "http://d-nb.info/gnd/1"}}}}
	require.NoError(t, svc.Save(ctx, p))

	byID, err := svc.Lookup(ctx, domain.KindPerson, fmt.Sprint(p.ID))
	require.NoError(t, err)
	assert.Equal(t, p.ID, byID.Base().ID)

	byURI, err := svc.Lookup(ctx, domain.KindPerson, "http://d-nb.info/gnd/1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byURI.Base().ID)

	tests := []struct {
		name string
		kind domain.Kind
		ref  string
		want error
	}{
		{"missing id", domain.KindPerson, "4242", domain.ErrNotFound},
		{"missing uri", domain.KindPerson, "http://d-nb.info/gnd/2", domain.ErrNotFound},
		{"uri of another kind", domain.KindPlace, "http://d-nb.info/gnd/1", domain.ErrNotFound},
		{"id of another kind", domain.KindPlace, fmt.Sprint(p.ID), domain.ErrNotFound},
		{"empty", domain.KindPerson, "  ", domain.ErrMalformedRef},
		{"overflow", domain.KindPerson, "99999999999999999999", domain.ErrMalformedRef},
		{"unknown kind", domain.Kind("ship"), "1", domain.ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Lookup(ctx, tt.kind, tt.ref)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// ============================================================================
// Revisions
// ============================================================================

func TestRevisionHistory(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	p := newPerson("Doe")
	p.Labels = []domain.Label{{Label: "J. Doe", LabelType: "alternative name"}}
	require.NoError(t, svc.Save(ctx, p))
	require.NoError(t, svc.Save(ctx, p))

	revs, err := svc.History(ctx, domain.KindPerson, p.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1, "unchanged save records nothing")

	p.FirstName = "Jane"
	require.NoError(t, svc.Save(ctx, p))

	revs, err = svc.History(ctx, domain.KindPerson, p.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, 2, revs[0].Version)
	assert.NotEqual(t, revs[0].Digest, revs[1].Digest)
	assert.Contains(t, string(revs[0].Snapshot), `"first_name":"Jane"`)
	assert.Contains(t, string(revs[1].Snapshot), domain.DefaultURI(testBaseURI, p.ID))

	_, err = svc.History(ctx, domain.KindPerson, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotIgnoresTimestampsAndRowKeys(t *testing.T) {
	a := newPerson("Doe")
	a.URIs = []domain.URI{{ID: 1, URI: "u", EntityID: 1}}
	b := newPerson("Doe")
	b.URIs = []domain.URI{{ID: 7, URI: "u", EntityID: 1}}
	b.UpdatedAt = b.UpdatedAt.AddDate(1, 0, 0)

	_, da, err := Snapshot(a)
	require.NoError(t, err)
	_, db, err := Snapshot(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	b.Name = "Roe"
	_, dc, err := Snapshot(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}

// ============================================================================
// Search
// ============================================================================

func TestSearchPage(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	for _, name := range []string{"Haydn", "Mozart", "Salieri"} {
		require.NoError(t, svc.Save(ctx, newPerson(name)))
	}

	page, err := svc.Search(ctx, domain.KindPerson, url.Values{"name": {"a"}, "limit": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Haydn", page.Items[0].Base().Name)

	page, err = svc.Search(ctx, domain.KindPlace, url.Values{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Zero(t, page.Total)

	_, err = svc.Search(ctx, domain.KindPerson, url.Values{"colour": {"red"}})
	assert.Error(t, err)

	fields, err := svc.Filters(domain.KindEvent)
	require.NoError(t, err)
	assert.NotEmpty(t, fields)
}

// ============================================================================
// Import / Export
// ============================================================================

const fixtureYAML = `
groups: [editors]
collections:
  - name: Letters
    groups_allowed: [editors]
entities:
  - kind: person
    name: Mozart
    uris:
      - uri: https://d-nb.info/gnd/118584596
    collections: [Letters]
    attrs:
      first_name: Wolfgang Amadeus
  - kind: place
    name: Salzburg
`

func TestImportExport(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	result, err := svc.Import(ctx, strings.NewReader(fixtureYAML), "yaml", "")
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{GroupsCreated: 1, CollectionsCreated: 1, EntitiesCreated: 2, Strategy: StrategyMerge}, result)

	mozart, err := svc.Lookup(ctx, domain.KindPerson, "https://d-nb.info/gnd/118584596")
	require.NoError(t, err)
	g, err := svc.ResolveGroup(ctx, "editors")
	require.NoError(t, err)
	assert.Equal(t, personKeys(g.ID), grantKeys(t, svc, domain.KindPerson, mozart.Base().ID))

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, &buf, "yaml"))
	assert.Contains(t, buf.String(), "Wolfgang Amadeus")

	again, err := svc.Import(ctx, &buf, "yaml", StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, 0, again.EntitiesCreated)
	assert.Equal(t, 2, again.EntitiesUpdated)
	assert.Equal(t, 0, again.GroupsCreated)

	page, err := svc.Search(ctx, domain.KindPerson, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestImportReplace(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Save(ctx, newPerson("Stale")))

	result, err := svc.Import(ctx, strings.NewReader(fixtureYAML), "yaml", StrategyReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntitiesDeleted)
	assert.Equal(t, 2, result.EntitiesCreated)

	page, err := svc.Search(ctx, domain.KindPerson, url.Values{"name": {"stale"}})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = svc.Import(ctx, strings.NewReader(fixtureYAML), "yaml", "upsert")
	assert.ErrorContains(t, err, "invalid strategy")
}

func TestMergeImportMatchesRecordsWithoutURIs(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	const doc = `
entities:
  - kind: person
    name: Doe
    attrs:
      first_name: Jane
  - kind: place
    name: Salzburg
`
	first, err := svc.Import(ctx, strings.NewReader(doc), "yaml", StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, 2, first.EntitiesCreated)

	for i := 0; i < 2; i++ {
		again, err := svc.Import(ctx, strings.NewReader(doc), "yaml", StrategyMerge)
		require.NoError(t, err)
		assert.Zero(t, again.EntitiesCreated)
		assert.Equal(t, 2, again.EntitiesUpdated)
	}

	persons, err := svc.Search(ctx, domain.KindPerson, url.Values{})
	require.NoError(t, err)
	require.Equal(t, 1, persons.Total)
	doe := persons.Items[0].Base()
	assert.Len(t, doe.URIs, 1, "the default uri survives the merge")

	places, err := svc.Search(ctx, domain.KindPlace, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, places.Total)

	other, err := svc.Import(ctx, strings.NewReader(`
entities:
  - kind: person
    name: Doe
    attrs:
      first_name: John
`), "yaml", StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, other.EntitiesCreated, "a different first name is a different person")
}

// ============================================================================
// Reconcile
// ============================================================================

func TestReconcilePermissions(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)
	stray, err := svc.CreateGroup(ctx, "strays")
	require.NoError(t, err)
	c, err := svc.CreateCollection(ctx, "Letters", "", g.ID)
	require.NoError(t, err)
	p := newPerson("Doe")
	p.CollectionIDs = []int64{c.ID}
	require.NoError(t, svc.Save(ctx, p))

	err = repo.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.RemovePermission(ctx, g.ID, "delete_person", p.ID); err != nil {
			return err
		}
		if err := tx.AssignPermission(ctx, stray.ID, "change_person", p.ID); err != nil {
			return err
		}
		return tx.AssignPermission(ctx, stray.ID, "view_person", p.ID)
	})
	require.NoError(t, err)

	reconciler := NewReconcileService(repo, nil, NewEventBus(), zerolog.Nop())
	report, err := reconciler.ReconcilePermissions(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, []domain.Grant{{GroupID: g.ID, EntityID: p.ID, Codename: "delete_person"}}, report.Granted)
	assert.Equal(t, []domain.Grant{{GroupID: stray.ID, EntityID: p.ID, Codename: "change_person"}}, report.Revoked)
	assert.NotEqual(t, personKeys(g.ID), grantKeys(t, svc, domain.KindPerson, p.ID), "dry run changes nothing")

	_, err = reconciler.ReconcilePermissions(ctx, false)
	require.NoError(t, err)
	keys := grantKeys(t, svc, domain.KindPerson, p.ID)
	assert.Equal(t, append(personKeys(g.ID), fmt.Sprintf("%d:view_person", stray.ID)), keys)

	report, err = reconciler.ReconcilePermissions(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, report.Changed)
}

// ============================================================================
// Events
// ============================================================================

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(ch)

	bus.Publish(Event{Type: EventEntitySaved})
	bus.Publish(Event{Type: EventEntityDeleted}) // dropped, buffer full

	assert.Equal(t, EventEntitySaved, (<-ch).Type)
	assert.Empty(t, ch)

	bus.Unsubscribe(ch)
	bus.Publish(Event{Type: EventEntitySaved})
	assert.Empty(t, ch)

	var nilBus *EventBus
	nilBus.Publish(Event{Type: EventEntitySaved})
}

func TestServicePublishesAfterSave(t *testing.T) {
	repo, err := sqlite.New(":memory:", nil)
	require.NoError(t, err)
	defer repo.Close()

	bus := NewEventBus()
	ch := make(chan Event, 4)
	bus.Subscribe(ch)
	svc := NewCatalogService(repo, bus, Options{BaseURI: testBaseURI, Logger: zerolog.Nop()})

	p := newPerson("Doe")
	require.NoError(t, svc.Save(context.Background(), p))
	ev := <-ch
	assert.Equal(t, EventEntitySaved, ev.Type)
	assert.Equal(t, map[string]any{"kind": domain.KindPerson, "id": p.ID}, ev.Payload)
}
