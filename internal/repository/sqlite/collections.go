package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"prosopography/internal/domain"
)

// ============================================================================
// Membership
// ============================================================================

// AddToCollections adds an entity to collections. Collections it already
// belongs to are ignored; the membership hooks see only the new ones.
func (r *Repository) AddToCollections(ctx context.Context, entityID int64, collectionIDs ...int64) error {
	return r.withTx(ctx, func(t *txStore) error {
		e, err := getEntity(ctx, t.tx, r.registry, "", entityID)
		if err != nil {
			return err
		}
		added, _ := diffIDs(e.Base().CollectionIDs, collectionIDs)
		return t.addMemberships(ctx, e, added)
	})
}

// RemoveFromCollections removes an entity from collections. Collections it
// does not belong to are ignored.
func (r *Repository) RemoveFromCollections(ctx context.Context, entityID int64, collectionIDs ...int64) error {
	return r.withTx(ctx, func(t *txStore) error {
		e, err := getEntity(ctx, t.tx, r.registry, "", entityID)
		if err != nil {
			return err
		}
		drop := domain.NewGroupSet(collectionIDs...)
		var removed []int64
		for _, cid := range e.Base().CollectionIDs {
			if drop.Has(cid) {
				removed = append(removed, cid)
			}
		}
		return t.removeMemberships(ctx, e, removed)
	})
}

// SetCollections replaces the collections of an entity
func (r *Repository) SetCollections(ctx context.Context, entityID int64, collectionIDs []int64) error {
	return r.withTx(ctx, func(t *txStore) error {
		e, err := getEntity(ctx, t.tx, r.registry, "", entityID)
		if err != nil {
			return err
		}
		return t.setCollections(ctx, e, collectionIDs)
	})
}

// ============================================================================
// Groups
// ============================================================================

// CreateGroup inserts a group and sets its ID
func (r *Repository) CreateGroup(ctx context.Context, g *domain.Group) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return fmt.Errorf("%w: group name is required", domain.ErrInvalidEntity)
	}
	result, err := r.db.ExecContext(ctx, `INSERT INTO user_groups (name) VALUES (?)`, g.Name)
	if isUniqueViolation(err) {
		return fmt.Errorf("group %q: %w", g.Name, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert group %q: %w", g.Name, err)
	}
	if g.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read group id: %w", err)
	}
	return nil
}

// GetGroup loads a group by ID
func (r *Repository) GetGroup(ctx context.Context, id int64) (*domain.Group, error) {
	return r.getGroup(ctx, `id = ?`, id)
}

// GetGroupByName loads a group by its unique name
func (r *Repository) GetGroupByName(ctx context.Context, name string) (*domain.Group, error) {
	return r.getGroup(ctx, `name = ?`, strings.TrimSpace(name))
}

func (r *Repository) getGroup(ctx context.Context, where string, arg any) (*domain.Group, error) {
	var g domain.Group
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM user_groups WHERE `+where, arg).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %v: %w", arg, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group %v: %w", arg, err)
	}
	return &g, nil
}

// ListGroups returns all groups ordered by ID
func (r *Repository) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM user_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ============================================================================
// Collections
// ============================================================================

// CreateCollection inserts a collection and allows its GroupIDs on it
func (r *Repository) CreateCollection(ctx context.Context, c *domain.Collection) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: collection name is required", domain.ErrInvalidEntity)
	}
	return r.withTx(ctx, func(t *txStore) error {
		result, err := t.tx.ExecContext(ctx, `
			INSERT INTO collections (name, description) VALUES (?, ?)
		`, c.Name, stringToNull(c.Description))
		if isUniqueViolation(err) {
			return fmt.Errorf("collection %q: %w", c.Name, domain.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("failed to insert collection %q: %w", c.Name, err)
		}
		if c.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read collection id: %w", err)
		}
		if err := t.addGroups(ctx, c.ID, c.GroupIDs); err != nil {
			return err
		}
		c.GroupIDs, err = t.collectionGroups(ctx, c.ID)
		return err
	})
}

// GetCollection loads a collection with its allowed groups
func (r *Repository) GetCollection(ctx context.Context, id int64) (*domain.Collection, error) {
	return r.getCollection(ctx, `id = ?`, id)
}

// GetCollectionByName loads a collection by its unique name
func (r *Repository) GetCollectionByName(ctx context.Context, name string) (*domain.Collection, error) {
	return r.getCollection(ctx, `name = ?`, strings.TrimSpace(name))
}

func (r *Repository) getCollection(ctx context.Context, where string, arg any) (*domain.Collection, error) {
	var c domain.Collection
	var description sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description FROM collections WHERE `+where, arg).Scan(&c.ID, &c.Name, &description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %v: %w", arg, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %v: %w", arg, err)
	}
	c.Description = nullToString(description)
	if c.GroupIDs, err = collectionGroups(ctx, r.db, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollections returns all collections ordered by ID
func (r *Repository) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM collections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}

	var collections []domain.Collection
	for rows.Next() {
		var c domain.Collection
		var description sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		c.Description = nullToString(description)
		collections = append(collections, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collections: %w", err)
	}

	for i := range collections {
		if collections[i].GroupIDs, err = collectionGroups(ctx, r.db, collections[i].ID); err != nil {
			return nil, err
		}
	}
	return collections, nil
}

// AddGroupsToCollection allows groups on a collection. Groups already
// allowed are ignored.
func (r *Repository) AddGroupsToCollection(ctx context.Context, collectionID int64, groupIDs ...int64) error {
	return r.withTx(ctx, func(t *txStore) error {
		if err := t.requireRows(ctx, "collections", []int64{collectionID}); err != nil {
			return err
		}
		return t.addGroups(ctx, collectionID, groupIDs)
	})
}

// RemoveGroupsFromCollection disallows groups on a collection
func (r *Repository) RemoveGroupsFromCollection(ctx context.Context, collectionID int64, groupIDs ...int64) error {
	return r.withTx(ctx, func(t *txStore) error {
		if err := t.requireRows(ctx, "collections", []int64{collectionID}); err != nil {
			return err
		}
		return t.removeGroups(ctx, collectionID, groupIDs)
	})
}

// ============================================================================
// Object Permissions
// ============================================================================

// ListGrants returns the grants on an entity ordered by group and codename
func (r *Repository) ListGrants(ctx context.Context, entityID int64) ([]domain.Grant, error) {
	return listGrants(ctx, r.db, entityID)
}

func listGrants(ctx context.Context, q querier, entityID int64) ([]domain.Grant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT group_id, codename, entity_id FROM object_permissions
		WHERE entity_id = ? ORDER BY group_id, codename
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants of %d: %w", entityID, err)
	}
	defer rows.Close()

	var grants []domain.Grant
	for rows.Next() {
		var g domain.Grant
		if err := rows.Scan(&g.GroupID, &g.Codename, &g.EntityID); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// HasPermission reports whether a group holds codename on an entity
func (r *Repository) HasPermission(ctx context.Context, groupID int64, codename string, entityID int64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM object_permissions WHERE group_id = ? AND codename = ? AND entity_id = ?
	`, groupID, codename, entityID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check %s on %d: %w", codename, entityID, err)
	}
	return n > 0, nil
}

// ============================================================================
// Revisions
// ============================================================================

const revisionColumns = `id, entity_id, kind, version, digest, snapshot, comment, created_at`

// ListRevisions returns the revisions of an entity, newest first
func (r *Repository) ListRevisions(ctx context.Context, entityID int64) ([]domain.Revision, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+revisionColumns+` FROM revisions WHERE entity_id = ? ORDER BY version DESC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions of %d: %w", entityID, err)
	}
	return scanRevisions(rows)
}

func scanRevisions(rows *sql.Rows) ([]domain.Revision, error) {
	defer rows.Close()
	var revs []domain.Revision
	for rows.Next() {
		var rev domain.Revision
		var kind, snapshot string
		var comment sql.NullString
		var createdAt int64
		if err := rows.Scan(&rev.ID, &rev.EntityID, &kind, &rev.Version, &rev.Digest,
			&snapshot, &comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		rev.Kind = domain.Kind(kind)
		rev.Snapshot = []byte(snapshot)
		rev.Comment = nullToString(comment)
		rev.CreatedAt = fromMillis(createdAt)
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return revs, nil
}
