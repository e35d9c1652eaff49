package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prosopography/internal/domain"
	"prosopography/internal/repository"
)

// txStore is the repository.Tx handed to hooks. It also carries the
// transactional halves of the repository's write operations.
type txStore struct {
	tx       *sql.Tx
	registry *domain.Registry
	hooks    *repository.Hooks
}

var _ repository.Tx = (*txStore)(nil)

// CountURIs returns the number of URIs stored for an entity
func (t *txStore) CountURIs(ctx context.Context, entityID int64) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM uris WHERE entity_id = ?`, entityID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count uris of %d: %w", entityID, err)
	}
	return n, nil
}

// CreateURI inserts a URI. A URI already assigned to any entity is rejected
// with domain.ErrAlreadyExists.
func (t *txStore) CreateURI(ctx context.Context, uri *domain.URI) error {
	uri.URI = domain.NormalizeURI(uri.URI)
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO uris (uri, domain, entity_id) VALUES (?, ?, ?)
	`, uri.URI, stringToNull(uri.Domain), uri.EntityID)
	if isUniqueViolation(err) {
		return fmt.Errorf("uri %q: %w", uri.URI, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert uri %q: %w", uri.URI, err)
	}
	if uri.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read uri id: %w", err)
	}
	return nil
}

// EntityCollections returns the collections an entity belongs to
func (t *txStore) EntityCollections(ctx context.Context, entityID int64) ([]int64, error) {
	return entityCollections(ctx, t.tx, entityID)
}

// CollectionMembers returns the members of a collection, restricted to kinds
// when any are given
func (t *txStore) CollectionMembers(ctx context.Context, collectionID int64, kinds ...domain.Kind) ([]repository.Member, error) {
	query := `
		SELECT e.id, e.kind FROM entities e
		JOIN entity_collections ec ON ec.entity_id = e.id
		WHERE ec.collection_id = ?`
	args := []any{collectionID}
	if len(kinds) > 0 {
		query += ` AND e.kind IN (` + placeholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY e.id`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members of collection %d: %w", collectionID, err)
	}
	return scanMembers(rows)
}

func scanMembers(rows *sql.Rows) ([]repository.Member, error) {
	defer rows.Close()
	var members []repository.Member
	for rows.Next() {
		var m repository.Member
		var kind string
		if err := rows.Scan(&m.ID, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Kind = domain.Kind(kind)
		members = append(members, m)
	}
	return members, rows.Err()
}

// GroupsAllowed returns the union of the allowed groups of the collections
func (t *txStore) GroupsAllowed(ctx context.Context, collectionIDs ...int64) (domain.GroupSet, error) {
	groups := domain.NewGroupSet()
	if len(collectionIDs) == 0 {
		return groups, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT group_id FROM collection_groups
		WHERE collection_id IN (`+placeholders(len(collectionIDs))+`)
	`, int64Args(collectionIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed groups: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan allowed groups: %w", err)
	}
	groups.Add(ids...)
	return groups, nil
}

// AssignPermission grants codename on an entity to a group. Granting twice
// is a no-op.
func (t *txStore) AssignPermission(ctx context.Context, groupID int64, codename string, entityID int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO object_permissions (group_id, codename, entity_id) VALUES (?, ?, ?)
	`, groupID, codename, entityID); err != nil {
		return fmt.Errorf("failed to assign %s on %d to group %d: %w", codename, entityID, groupID, err)
	}
	return nil
}

// RemovePermission revokes codename on an entity from a group
func (t *txStore) RemovePermission(ctx context.Context, groupID int64, codename string, entityID int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM object_permissions WHERE group_id = ? AND codename = ? AND entity_id = ?
	`, groupID, codename, entityID); err != nil {
		return fmt.Errorf("failed to remove %s on %d from group %d: %w", codename, entityID, groupID, err)
	}
	return nil
}

// Grants returns the grants on an entity ordered by group and codename
func (t *txStore) Grants(ctx context.Context, entityID int64) ([]domain.Grant, error) {
	return listGrants(ctx, t.tx, entityID)
}

// Members returns every entity of the given kinds, or of all kinds when
// none are given
func (t *txStore) Members(ctx context.Context, kinds ...domain.Kind) ([]repository.Member, error) {
	query := `SELECT e.id, e.kind FROM entities e`
	var args []any
	if len(kinds) > 0 {
		query += ` WHERE e.kind IN (` + placeholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY e.id`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	return scanMembers(rows)
}

// LatestRevision returns the newest revision of an entity, or nil when none
// has been recorded
func (t *txStore) LatestRevision(ctx context.Context, entityID int64) (*domain.Revision, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+revisionColumns+` FROM revisions
		WHERE entity_id = ? ORDER BY version DESC LIMIT 1
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions of %d: %w", entityID, err)
	}
	revs, err := scanRevisions(rows)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, nil
	}
	return &revs[0], nil
}

// CreateRevision stores rev as the next version of its entity
func (t *txStore) CreateRevision(ctx context.Context, rev *domain.Revision) error {
	if err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM revisions WHERE entity_id = ?
	`, rev.EntityID).Scan(&rev.Version); err != nil {
		return fmt.Errorf("failed to allocate revision of %d: %w", rev.EntityID, err)
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}
	rev.CreatedAt = fromMillis(toMillis(rev.CreatedAt))

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO revisions (entity_id, kind, version, digest, snapshot, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rev.EntityID, string(rev.Kind), rev.Version, rev.Digest, string(rev.Snapshot),
		stringToNull(rev.Comment), toMillis(rev.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert revision of %d: %w", rev.EntityID, err)
	}
	if rev.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read revision id: %w", err)
	}
	return nil
}

// ============================================================================
// Membership Changes
// ============================================================================

// setCollections moves e into exactly the given collections: removals are
// applied and reported as one batch, then additions as another
func (t *txStore) setCollections(ctx context.Context, e domain.Entity, collectionIDs []int64) error {
	current, err := t.EntityCollections(ctx, e.Base().ID)
	if err != nil {
		return err
	}
	added, removed := diffIDs(current, collectionIDs)
	if err := t.removeMemberships(ctx, e, removed); err != nil {
		return err
	}
	return t.addMemberships(ctx, e, added)
}

// addMemberships inserts memberships for collections e is not in yet
func (t *txStore) addMemberships(ctx context.Context, e domain.Entity, collectionIDs []int64) error {
	if len(collectionIDs) == 0 {
		return nil
	}
	if err := t.requireRows(ctx, "collections", collectionIDs); err != nil {
		return err
	}
	if err := t.hooks.BeforeAdd(ctx, t, e, collectionIDs); err != nil {
		return err
	}
	for _, cid := range collectionIDs {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO entity_collections (entity_id, collection_id) VALUES (?, ?)
		`, e.Base().ID, cid); err != nil {
			return fmt.Errorf("failed to add %d to collection %d: %w", e.Base().ID, cid, err)
		}
	}
	return nil
}

// removeMemberships deletes memberships of e, then runs the removal hooks
// once for all of them
func (t *txStore) removeMemberships(ctx context.Context, e domain.Entity, collectionIDs []int64) error {
	if len(collectionIDs) == 0 {
		return nil
	}
	for _, cid := range collectionIDs {
		if _, err := t.tx.ExecContext(ctx, `
			DELETE FROM entity_collections WHERE entity_id = ? AND collection_id = ?
		`, e.Base().ID, cid); err != nil {
			return fmt.Errorf("failed to remove %d from collection %d: %w", e.Base().ID, cid, err)
		}
	}
	return t.hooks.AfterRemove(ctx, t, e, collectionIDs)
}

// ============================================================================
// Allowed Group Changes
// ============================================================================

func (t *txStore) collectionGroups(ctx context.Context, collectionID int64) ([]int64, error) {
	return collectionGroups(ctx, t.tx, collectionID)
}

// addGroups allows groups on a collection, skipping groups already allowed
func (t *txStore) addGroups(ctx context.Context, collectionID int64, groupIDs []int64) error {
	current, err := t.collectionGroups(ctx, collectionID)
	if err != nil {
		return err
	}
	have := domain.NewGroupSet(current...)
	var added []int64
	for _, gid := range uniqueIDs(groupIDs) {
		if !have.Has(gid) {
			added = append(added, gid)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if err := t.requireRows(ctx, "user_groups", added); err != nil {
		return err
	}
	if err := t.hooks.BeforeGroupsAdd(ctx, t, collectionID, added); err != nil {
		return err
	}
	for _, gid := range added {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO collection_groups (collection_id, group_id) VALUES (?, ?)
		`, collectionID, gid); err != nil {
			return fmt.Errorf("failed to allow group %d on collection %d: %w", gid, collectionID, err)
		}
	}
	return nil
}

// removeGroups disallows groups on a collection, then runs the removal
// hooks once for the groups that were allowed
func (t *txStore) removeGroups(ctx context.Context, collectionID int64, groupIDs []int64) error {
	current, err := t.collectionGroups(ctx, collectionID)
	if err != nil {
		return err
	}
	have := domain.NewGroupSet(current...)
	var removed []int64
	for _, gid := range uniqueIDs(groupIDs) {
		if have.Has(gid) {
			removed = append(removed, gid)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	for _, gid := range removed {
		if _, err := t.tx.ExecContext(ctx, `
			DELETE FROM collection_groups WHERE collection_id = ? AND group_id = ?
		`, collectionID, gid); err != nil {
			return fmt.Errorf("failed to disallow group %d on collection %d: %w", gid, collectionID, err)
		}
	}
	return t.hooks.AfterGroupsRemove(ctx, t, collectionID, removed)
}

// requireRows fails with domain.ErrNotFound unless every id exists in table.
// table is one of the fixed names used by this package.
func (t *txStore) requireRows(ctx context.Context, table string, ids []int64) error {
	for _, id := range ids {
		var one int
		err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %d: %w", singular(table), id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check %s %d: %w", singular(table), id, err)
		}
	}
	return nil
}

func singular(table string) string {
	switch table {
	case "collections":
		return "collection"
	case "user_groups":
		return "group"
	}
	return table
}

func entityCollections(ctx context.Context, q querier, entityID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT collection_id FROM entity_collections WHERE entity_id = ? ORDER BY collection_id
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections of %d: %w", entityID, err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collections of %d: %w", entityID, err)
	}
	return ids, nil
}

func collectionGroups(ctx context.Context, q querier, collectionID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT group_id FROM collection_groups WHERE collection_id = ? ORDER BY group_id
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups of collection %d: %w", collectionID, err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan groups of collection %d: %w", collectionID, err)
	}
	return ids, nil
}
