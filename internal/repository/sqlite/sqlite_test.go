package sqlite

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prosopography/internal/domain"
	"prosopography/internal/filter"
	"prosopography/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func savePerson(t *testing.T, repo *Repository, name, first string) *domain.Person {
	t.Helper()
	p := &domain.Person{TempEntity: domain.TempEntity{Name: name}, FirstName: first}
	require.NoError(t, repo.SaveEntity(context.Background(), p))
	return p
}

func createCollection(t *testing.T, repo *Repository, name string, groups ...int64) int64 {
	t.Helper()
	c := &domain.Collection{Name: name, GroupIDs: groups}
	require.NoError(t, repo.CreateCollection(context.Background(), c))
	return c.ID
}

func createGroup(t *testing.T, repo *Repository, name string) int64 {
	t.Helper()
	g := &domain.Group{Name: name}
	require.NoError(t, repo.CreateGroup(context.Background(), g))
	return g.ID
}

// recordingHook records hook invocations and optionally fails them
type recordingHook struct {
	saves    []int64
	added    [][]int64
	removed  [][]int64
	gAdded   [][]int64
	gRemoved [][]int64
	fail     error
}

func (h *recordingHook) AfterSave(ctx context.Context, tx repository.Tx, e domain.Entity) error {
	h.saves = append(h.saves, e.Base().ID)
	return h.fail
}

func (h *recordingHook) BeforeAdd(ctx context.Context, tx repository.Tx, e domain.Entity, ids []int64) error {
	h.added = append(h.added, ids)
	return h.fail
}

func (h *recordingHook) AfterRemove(ctx context.Context, tx repository.Tx, e domain.Entity, ids []int64) error {
	h.removed = append(h.removed, ids)
	return h.fail
}

func (h *recordingHook) BeforeGroupsAdd(ctx context.Context, tx repository.Tx, cid int64, ids []int64) error {
	h.gAdded = append(h.gAdded, ids)
	return h.fail
}

func (h *recordingHook) AfterGroupsRemove(ctx context.Context, tx repository.Tx, cid int64, ids []int64) error {
	h.gRemoved = append(h.gRemoved, ids)
	return h.fail
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestDiffIDs(t *testing.T) {
	added, removed := diffIDs([]int64{1, 2, 3}, []int64{3, 4, 4, 5})
	assert.Equal(t, []int64{4, 5}, added)
	assert.Equal(t, []int64{1, 2}, removed)

	added, removed = diffIDs(nil, nil)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestValidAttr(t *testing.T) {
	assert.True(t, validAttr("first_name"))
	assert.True(t, validAttr("lat"))
	assert.False(t, validAttr(""))
	assert.False(t, validAttr("name')--"))
	assert.False(t, validAttr("1abc"))
	assert.False(t, validAttr("First"))
}

func TestMarshalAttrsOmitsColumns(t *testing.T) {
	p := &domain.Person{
		TempEntity: domain.TempEntity{ID: 4, Name: "Doe", Notes: "n", URIs: []domain.URI{{URI: "x"}}},
		FirstName:  "Jane",
	}
	attrs, err := marshalAttrs(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"first_name":"Jane","notes":"n"}`, attrs)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn(":memory:"))
	assert.Contains(t, dsn("/tmp/catalog.db"), "journal_mode(WAL)")
}

// ============================================================================
// Entity Tests
// ============================================================================

func TestSaveAndGetPerson(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := &domain.Person{
		TempEntity: domain.TempEntity{
			Name:      "Mozart",
			StartDate: domain.MustDate("1756-01-27"),
			EndDate:   domain.MustDate("1791-12-05"),
			Notes:     "composer",
			URIs:      []domain.URI{{URI: " https://d-nb.info/gnd/118584596 ", Domain: "gnd"}},
			Labels:    []domain.Label{{Label: "Wolfgang Amadé Mozart", LabelType: "alternative name"}},
		},
		FirstName:   "Wolfgang Amadeus",
		Gender:      domain.GenderMale,
		Professions: []string{"composer", "pianist"},
	}
	require.NoError(t, repo.SaveEntity(ctx, p))
	require.NotZero(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := repo.GetEntity(ctx, domain.KindPerson, p.ID)
	require.NoError(t, err)
	person, ok := got.(*domain.Person)
	require.True(t, ok)

	assert.Equal(t, "Mozart", person.Name)
	assert.Equal(t, "Wolfgang Amadeus", person.FirstName)
	assert.Equal(t, domain.GenderMale, person.Gender)
	assert.Equal(t, []string{"composer", "pianist"}, person.Professions)
	assert.Equal(t, "1756-01-27", person.StartDate.String())
	assert.Equal(t, "1791-12-05", person.EndDate.String())
	assert.Equal(t, "composer", person.Notes)
	require.Len(t, person.URIs, 1)
	assert.Equal(t, "https://d-nb.info/gnd/118584596", person.URIs[0].URI)
	assert.Equal(t, "gnd", person.URIs[0].Domain)
	require.Len(t, person.Labels, 1)
	assert.Equal(t, "alternative name", person.Labels[0].LabelType)
	assert.Equal(t, p.CreatedAt, person.CreatedAt)
}

func TestSavePlaceRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	lat, lng := domain.Coordinates(48.2082, 16.3738)
	place := &domain.Place{TempEntity: domain.TempEntity{Name: "Wien"}, Type: "city", Lat: lat, Lng: lng}
	require.NoError(t, repo.SaveEntity(ctx, place))

	got, err := repo.GetEntity(ctx, domain.KindPlace, place.ID)
	require.NoError(t, err)
	p := got.(*domain.Place)
	assert.Equal(t, "city", p.Type)
	require.NotNil(t, p.Lat)
	assert.InDelta(t, 48.2082, *p.Lat, 1e-9)
}

func TestSaveEntityNormalizesFirstName(t *testing.T) {
	repo := newTestRepo(t)
	p := savePerson(t, repo, "Doe", "Jose\u0301")

	got, err := repo.GetEntity(context.Background(), domain.KindPerson, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9", got.(*domain.Person).FirstName)
}

func TestSaveEntityRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := &domain.Person{TempEntity: domain.TempEntity{Name: "Doe"}, Gender: "unknown"}
	err := repo.SaveEntity(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidEntity)
	assert.Zero(t, p.ID)

	n, err := repo.Count(ctx, filter.NewQuery(domain.KindPerson))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateEntity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := savePerson(t, repo, "Doe", "Jane")
	created := p.CreatedAt

	p.Name = "Roe"
	p.CreatedAt = created.Add(-1)
	require.NoError(t, repo.SaveEntity(ctx, p))
	assert.Equal(t, created, p.CreatedAt)

	got, err := repo.GetEntity(ctx, domain.KindPerson, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roe", got.Base().Name)
}

func TestUpdateMissingEntity(t *testing.T) {
	repo := newTestRepo(t)
	p := &domain.Person{TempEntity: domain.TempEntity{ID: 99, Name: "Ghost"}}
	assert.ErrorIs(t, repo.SaveEntity(context.Background(), p), domain.ErrNotFound)
}

func TestGetEntityKindScoped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := savePerson(t, repo, "Doe", "Jane")

	_, err := repo.GetEntity(ctx, domain.KindPlace, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetEntity(ctx, domain.Kind("ship"), p.ID)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestGetEntityByURI(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := &domain.Person{TempEntity: domain.TempEntity{Name: "Doe", URIs: []domain.URI{{URI: "http://example.org/p/1"}}}}
	require.NoError(t, repo.SaveEntity(ctx, p))

	got, err := repo.GetEntityByURI(ctx, domain.KindPerson, "http://example.org/p/1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.Base().ID)

	_, err = repo.GetEntityByURI(ctx, domain.KindPlace, "http://example.org/p/1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetEntityByURI(ctx, domain.KindPerson, "http://example.org/p/2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDuplicateURIRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := &domain.Person{TempEntity: domain.TempEntity{Name: "A", URIs: []domain.URI{{URI: "http://example.org/x"}}}}
	require.NoError(t, repo.SaveEntity(ctx, a))

	b := &domain.Place{TempEntity: domain.TempEntity{Name: "B", URIs: []domain.URI{{URI: "http://example.org/x"}}}}
	err := repo.SaveEntity(ctx, b)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestSaveEntitySyncsURIs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := &domain.Person{TempEntity: domain.TempEntity{Name: "Doe", URIs: []domain.URI{
		{URI: "http://example.org/a"}, {URI: "http://example.org/b"},
	}}}
	require.NoError(t, repo.SaveEntity(ctx, p))
	firstID := p.URIs[0].ID

	p.URIs = []domain.URI{{URI: "http://example.org/a"}, {URI: "http://example.org/c"}}
	require.NoError(t, repo.SaveEntity(ctx, p))

	require.Len(t, p.URIs, 2)
	assert.Equal(t, firstID, p.URIs[0].ID)
	assert.True(t, p.HasURI("http://example.org/c"))
	assert.False(t, p.HasURI("http://example.org/b"))
}

func TestDeleteEntity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gid := createGroup(t, repo, "editors")
	cid := createCollection(t, repo, "Letters", gid)

	p := savePerson(t, repo, "Doe", "Jane")
	require.NoError(t, repo.AddToCollections(ctx, p.ID, cid))

	require.NoError(t, repo.DeleteEntity(ctx, domain.KindPerson, p.ID))
	_, err := repo.GetEntity(ctx, domain.KindPerson, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	grants, err := repo.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	assert.ErrorIs(t, repo.DeleteEntity(ctx, domain.KindPerson, p.ID), domain.ErrNotFound)
}

// ============================================================================
// Search Tests
// ============================================================================

func search(t *testing.T, repo *Repository, set *filter.Set, raw string) []string {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	q, err := set.Parse(values)
	require.NoError(t, err)
	entities, err := repo.Search(context.Background(), q)
	require.NoError(t, err)
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Base().Name)
	}
	return names
}

func TestSearchPersons(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	people := []*domain.Person{
		{TempEntity: domain.TempEntity{Name: "Ärztin", StartDate: domain.MustDate("1850-03-01")}, FirstName: "Anna", Gender: domain.GenderFemale, Professions: []string{"Physician"}},
		{TempEntity: domain.TempEntity{Name: "Müller", StartDate: domain.MustDate("1820-06-15"), Labels: []domain.Label{
			{Label: "Mueller", LabelType: "alternative name"},
			{Label: "Miller", LabelType: "alternative name"},
			{Label: "Molnar", LabelType: "translation"},
		}}, FirstName: "Hans", Gender: domain.GenderMale, Professions: []string{"Baker"}},
		{TempEntity: domain.TempEntity{Name: "Roe"}, FirstName: "Richard", Gender: domain.GenderMale},
	}
	for _, p := range people {
		require.NoError(t, repo.SaveEntity(ctx, p))
	}
	set := filter.PersonSet(nil)

	assert.Equal(t, []string{"Ärztin"}, search(t, repo, set, "name=ärzt"))
	assert.Equal(t, []string{"Müller"}, search(t, repo, set, "name=MUELLER"))
	assert.Equal(t, []string{"Müller"}, search(t, repo, set, "name=ll"), "two matching labels yield one row")
	assert.Empty(t, search(t, repo, set, "name=molnar"), "labels of other types are not names")
	assert.Equal(t, []string{"Müller", "Roe"}, search(t, repo, set, "gender=male"))
	assert.Equal(t, []string{"Ärztin", "Müller", "Roe"}, search(t, repo, set, "gender="))
	assert.Equal(t, []string{"Müller"}, search(t, repo, set, "start_date__lt=1830-01-01"))
	assert.Equal(t, []string{"Ärztin"}, search(t, repo, set, "start_date=1850-03-01"))
	assert.Equal(t, []string{"Ärztin"}, search(t, repo, set, "profession=physic"))
	assert.Equal(t, []string{"Roe"}, search(t, repo, set, "first_name=rich&gender=male"))
	assert.Equal(t, []string{"Müller", "Roe"}, search(t, repo, set, "limit=2&offset=1"))
	assert.Equal(t, []string{"Müller"}, search(t, repo, set, "limit=1&offset=1"))
}

func TestSearchPlacesByCoordinates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, c := range []struct {
		name     string
		lat, lng float64
	}{{"Wien", 48.2, 16.37}, {"Graz", 47.07, 15.44}, {"Linz", 48.3, 14.29}} {
		lat, lng := domain.Coordinates(c.lat, c.lng)
		require.NoError(t, repo.SaveEntity(ctx, &domain.Place{TempEntity: domain.TempEntity{Name: c.name}, Lat: lat, Lng: lng}))
	}

	set := filter.PlaceSet()
	assert.Equal(t, []string{"Wien", "Linz"}, search(t, repo, set, "lat__gt=48"))
	assert.Equal(t, []string{"Wien"}, search(t, repo, set, "lat__gt=48&lng__gt=15"))
}

func TestSearchCollection(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cid := createCollection(t, repo, "Letters")

	a := savePerson(t, repo, "A", "")
	savePerson(t, repo, "B", "")
	require.NoError(t, repo.AddToCollections(ctx, a.ID, cid))

	assert.Equal(t, []string{"A"}, search(t, repo, filter.PersonSet(nil), "collection="+itoa(cid)))
}

func TestCompareLookups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, name := range []string{"Salzburg", "Innsbruck", "Bregenz"} {
		require.NoError(t, repo.SaveEntity(ctx, &domain.Event{TempEntity: domain.TempEntity{Name: name, Status: "Draft"}}))
	}

	tests := []struct {
		name   string
		lookup filter.Lookup
		value  any
		want   []string
	}{
		{"exact", filter.Exact, "Bregenz", []string{"Bregenz"}},
		{"iexact", filter.IExact, "bregenz", []string{"Bregenz"}},
		{"not exact", filter.NotExact, "Bregenz", []string{"Salzburg", "Innsbruck"}},
		{"contains is case sensitive", filter.Contains, "burg", []string{"Salzburg"}},
		{"contains misses case", filter.Contains, "BURG", []string{}},
		{"not contains", filter.NotContains, "b", []string{"Bregenz"}},
		{"startswith", filter.StartsWith, "Inn", []string{"Innsbruck"}},
		{"endswith", filter.EndsWith, "enz", []string{"Bregenz"}},
		{"gte", filter.GTE, "Innsbruck", []string{"Salzburg", "Innsbruck"}},
		{"lt", filter.LT, "Innsbruck", []string{"Bregenz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := filter.NewQuery(domain.KindEvent).Add(filter.Match{Attr: "name", Lookup: tt.lookup, Value: tt.value})
			entities, err := repo.Search(ctx, q)
			require.NoError(t, err)
			names := []string{}
			for _, e := range entities {
				names = append(names, e.Base().Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSearchRejectsUnknownKind(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Search(context.Background(), filter.NewQuery("ship"))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestCasefoldFunction(t *testing.T) {
	repo := newTestRepo(t)
	var folded string
	require.NoError(t, repo.db.QueryRow(`SELECT casefold('STRASSE Ärger')`).Scan(&folded))
	assert.Equal(t, domain.Fold("STRASSE Ärger"), folded)

	var n int64
	require.NoError(t, repo.db.QueryRow(`SELECT casefold(42)`).Scan(&n))
	assert.Equal(t, int64(42), n)
}

// ============================================================================
// Collection, Group and Hook Tests
// ============================================================================

func TestCollectionsAndGroups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	g1 := createGroup(t, repo, "editors")
	g2 := createGroup(t, repo, "reviewers")
	err := repo.CreateGroup(ctx, &domain.Group{Name: "editors"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.ErrorIs(t, repo.CreateGroup(ctx, &domain.Group{Name: " "}), domain.ErrInvalidEntity)

	cid := createCollection(t, repo, "Letters", g2, g1, g1)
	c, err := repo.GetCollection(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, []int64{g1, g2}, c.GroupIDs)

	byName, err := repo.GetCollectionByName(ctx, "Letters")
	require.NoError(t, err)
	assert.Equal(t, cid, byName.ID)

	_, err = repo.GetCollectionByName(ctx, "Missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	g, err := repo.GetGroupByName(ctx, "reviewers")
	require.NoError(t, err)
	assert.Equal(t, g2, g.ID)

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	collections, err := repo.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, []int64{g1, g2}, collections[0].GroupIDs)

	err = repo.CreateCollection(ctx, &domain.Collection{Name: "Bad", GroupIDs: []int64{999}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.GetCollectionByName(ctx, "Bad")
	assert.ErrorIs(t, err, domain.ErrNotFound, "failed create is rolled back")
}

func TestMembershipHooksReceiveBatches(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	hook := &recordingHook{}
	repo.OnMembership(hook)

	c1 := createCollection(t, repo, "c1")
	c2 := createCollection(t, repo, "c2")
	c3 := createCollection(t, repo, "c3")
	p := savePerson(t, repo, "Doe", "")

	require.NoError(t, repo.AddToCollections(ctx, p.ID, c1, c2))
	require.NoError(t, repo.AddToCollections(ctx, p.ID, c1))
	require.NoError(t, repo.SetCollections(ctx, p.ID, []int64{c2, c3}))
	require.NoError(t, repo.RemoveFromCollections(ctx, p.ID, c2, c3, c1))

	assert.Equal(t, [][]int64{{c1, c2}, {c3}}, hook.added)
	assert.Equal(t, [][]int64{{c1}, {c2, c3}}, hook.removed)

	got, err := repo.GetEntity(ctx, domain.KindPerson, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Base().CollectionIDs)
}

func TestSaveEntityPersistsCollections(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	hook := &recordingHook{}
	repo.OnMembership(hook)
	repo.OnSave(hook)
	c1 := createCollection(t, repo, "c1")

	p := &domain.Person{TempEntity: domain.TempEntity{Name: "Doe", CollectionIDs: []int64{c1}}}
	require.NoError(t, repo.SaveEntity(ctx, p))
	assert.Equal(t, []int64{c1}, p.CollectionIDs)
	assert.Equal(t, [][]int64{{c1}}, hook.added)
	assert.Equal(t, []int64{p.ID}, hook.saves)

	p.CollectionIDs = []int64{999}
	assert.ErrorIs(t, repo.SaveEntity(ctx, p), domain.ErrNotFound)
}

func TestGroupHooks(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	hook := &recordingHook{}
	repo.OnGroups(hook)

	g1 := createGroup(t, repo, "g1")
	g2 := createGroup(t, repo, "g2")
	cid := createCollection(t, repo, "c")

	require.NoError(t, repo.AddGroupsToCollection(ctx, cid, g1, g2))
	require.NoError(t, repo.AddGroupsToCollection(ctx, cid, g1))
	require.NoError(t, repo.RemoveGroupsFromCollection(ctx, cid, g2, 12345))

	assert.Equal(t, [][]int64{{g1, g2}}, hook.gAdded)
	assert.Equal(t, [][]int64{{g2}}, hook.gRemoved)

	assert.ErrorIs(t, repo.AddGroupsToCollection(ctx, 777, g1), domain.ErrNotFound)
}

func TestHookErrorRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cid := createCollection(t, repo, "c")
	p := savePerson(t, repo, "Doe", "")

	boom := errors.New("boom")
	repo.OnMembership(&recordingHook{fail: boom})

	err := repo.AddToCollections(ctx, p.ID, cid)
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetEntity(ctx, domain.KindPerson, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Base().CollectionIDs)
}

func TestTxPermissionsAndRevisions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gid := createGroup(t, repo, "editors")
	p := savePerson(t, repo, "Doe", "")

	err := repo.withTx(ctx, func(tx *txStore) error {
		require.NoError(t, tx.AssignPermission(ctx, gid, "change_person", p.ID))
		require.NoError(t, tx.AssignPermission(ctx, gid, "change_person", p.ID))
		require.NoError(t, tx.AssignPermission(ctx, gid, "delete_person", p.ID))
		require.NoError(t, tx.RemovePermission(ctx, gid, "delete_person", p.ID))

		latest, err := tx.LatestRevision(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, latest)

		for _, digest := range []string{"a", "b"} {
			rev := &domain.Revision{EntityID: p.ID, Kind: domain.KindPerson, Digest: digest, Snapshot: []byte(`{}`)}
			require.NoError(t, tx.CreateRevision(ctx, rev))
		}
		latest, err = tx.LatestRevision(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)
		assert.Equal(t, "b", latest.Digest)
		return nil
	})
	require.NoError(t, err)

	grants, err := repo.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Grant{{GroupID: gid, EntityID: p.ID, Codename: "change_person"}}, grants)

	ok, err := repo.HasPermission(ctx, gid, "delete_person", p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	revs, err := repo.ListRevisions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, 2, revs[0].Version)
	assert.JSONEq(t, `{}`, string(revs[1].Snapshot))
}

func TestCollectionMembers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cid := createCollection(t, repo, "c")
	p := savePerson(t, repo, "Doe", "")
	w := &domain.Work{TempEntity: domain.TempEntity{Name: "Opus", CollectionIDs: []int64{cid}}}
	require.NoError(t, repo.SaveEntity(ctx, w))
	require.NoError(t, repo.AddToCollections(ctx, p.ID, cid))

	err := repo.withTx(ctx, func(tx *txStore) error {
		all, err := tx.CollectionMembers(ctx, cid)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		persons, err := tx.CollectionMembers(ctx, cid, domain.KindPerson)
		require.NoError(t, err)
		assert.Equal(t, []repository.Member{{ID: p.ID, Kind: domain.KindPerson}}, persons)
		return nil
	})
	require.NoError(t, err)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
