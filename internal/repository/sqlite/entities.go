package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prosopography/internal/domain"
)

// relationChunk bounds the number of ids bound into one IN list
const relationChunk = 500

// GetEntity loads an entity of the given kind by primary key
func (r *Repository) GetEntity(ctx context.Context, kind domain.Kind, id int64) (domain.Entity, error) {
	if _, ok := r.registry.Spec(kind); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	return getEntity(ctx, r.db, r.registry, kind, id)
}

// GetEntityByURI loads the entity of the given kind that carries uri
func (r *Repository) GetEntityByURI(ctx context.Context, kind domain.Kind, uri string) (domain.Entity, error) {
	if _, ok := r.registry.Spec(kind); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}

	var row entityRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+`
		FROM entities e JOIN uris u ON u.entity_id = e.id
		WHERE u.uri = ? AND e.kind = ?
	`, domain.NormalizeURI(uri), string(kind)).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s with uri %q: %w", kind, uri, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by uri: %w", kind, err)
	}

	e, err := row.toDomain(r.registry)
	if err != nil {
		return nil, err
	}
	if err := loadRelations(ctx, r.db, []domain.Entity{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// SaveEntity normalizes, validates and persists e with its URIs, labels and
// collections, then runs the save hooks in the same transaction. The
// relation lists are stored as given: URIs, labels and memberships missing
// from e are removed. On return e reflects the stored state, including any
// URI created by a hook.
func (r *Repository) SaveEntity(ctx context.Context, e domain.Entity) error {
	if _, ok := r.registry.Spec(e.Kind()); !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, e.Kind())
	}
	if n, ok := e.(domain.Normalizer); ok {
		n.Normalize()
	}
	if v, ok := e.(domain.Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	return r.withTx(ctx, func(t *txStore) error {
		return t.saveEntity(ctx, e)
	})
}

// DeleteEntity removes an entity with its URIs, labels, memberships and
// grants. Revisions are kept.
func (r *Repository) DeleteEntity(ctx context.Context, kind domain.Kind, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ? AND kind = ?`, id, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

// getEntity loads one entity with its relations. An empty kind matches any kind.
func getEntity(ctx context.Context, q querier, registry *domain.Registry, kind domain.Kind, id int64) (domain.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e WHERE e.id = ?`
	args := []any{id}
	if kind != "" {
		query += ` AND e.kind = ?`
		args = append(args, string(kind))
	}

	var row entityRow
	err := q.QueryRowContext(ctx, query, args...).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		if kind == "" {
			kind = "entity"
		}
		return nil, fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity %d: %w", id, err)
	}

	e, err := row.toDomain(registry)
	if err != nil {
		return nil, err
	}
	if err := loadRelations(ctx, q, []domain.Entity{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// loadRelations replaces the URIs, labels and collection ids of entities
// with the stored ones
func loadRelations(ctx context.Context, q querier, entities []domain.Entity) error {
	byID := make(map[int64]*domain.TempEntity, len(entities))
	ids := make([]int64, 0, len(entities))
	for _, e := range entities {
		base := e.Base()
		base.URIs = nil
		base.Labels = nil
		base.CollectionIDs = nil
		byID[base.ID] = base
		ids = append(ids, base.ID)
	}

	for start := 0; start < len(ids); start += relationChunk {
		end := min(start+relationChunk, len(ids))
		if err := loadRelationChunk(ctx, q, byID, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func loadRelationChunk(ctx context.Context, q querier, byID map[int64]*domain.TempEntity, ids []int64) error {
	in := placeholders(len(ids))
	args := int64Args(ids)

	uriRows, err := q.QueryContext(ctx, `
		SELECT id, uri, domain, entity_id FROM uris
		WHERE entity_id IN (`+in+`) ORDER BY id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query uris: %w", err)
	}
	for uriRows.Next() {
		var u domain.URI
		var uriDomain sql.NullString
		if err := uriRows.Scan(&u.ID, &u.URI, &uriDomain, &u.EntityID); err != nil {
			uriRows.Close()
			return fmt.Errorf("failed to scan uri: %w", err)
		}
		u.Domain = nullToString(uriDomain)
		byID[u.EntityID].URIs = append(byID[u.EntityID].URIs, u)
	}
	uriRows.Close()
	if err := uriRows.Err(); err != nil {
		return fmt.Errorf("error iterating uris: %w", err)
	}

	labelRows, err := q.QueryContext(ctx, `
		SELECT id, label, label_type, language, entity_id FROM labels
		WHERE entity_id IN (`+in+`) ORDER BY id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query labels: %w", err)
	}
	for labelRows.Next() {
		var l domain.Label
		var labelType, language sql.NullString
		if err := labelRows.Scan(&l.ID, &l.Label, &labelType, &language, &l.EntityID); err != nil {
			labelRows.Close()
			return fmt.Errorf("failed to scan label: %w", err)
		}
		l.LabelType = nullToString(labelType)
		l.Language = nullToString(language)
		byID[l.EntityID].Labels = append(byID[l.EntityID].Labels, l)
	}
	labelRows.Close()
	if err := labelRows.Err(); err != nil {
		return fmt.Errorf("error iterating labels: %w", err)
	}

	memberRows, err := q.QueryContext(ctx, `
		SELECT entity_id, collection_id FROM entity_collections
		WHERE entity_id IN (`+in+`) ORDER BY collection_id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query collections: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var entityID, collectionID int64
		if err := memberRows.Scan(&entityID, &collectionID); err != nil {
			return fmt.Errorf("failed to scan membership: %w", err)
		}
		byID[entityID].CollectionIDs = append(byID[entityID].CollectionIDs, collectionID)
	}
	if err := memberRows.Err(); err != nil {
		return fmt.Errorf("error iterating memberships: %w", err)
	}
	return nil
}

// ============================================================================
// Transactional Save
// ============================================================================

func (t *txStore) saveEntity(ctx context.Context, e domain.Entity) error {
	base := e.Base()
	attrs, err := marshalAttrs(e)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", e.Kind(), err)
	}
	now := time.Now().UTC()

	if base.ID == 0 {
		result, err := t.tx.ExecContext(ctx, `
			INSERT INTO entities (kind, name, start_date, end_date, status, attrs, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, string(e.Kind()), base.Name, dateToNull(base.StartDate), dateToNull(base.EndDate),
			stringToNull(base.Status), attrs, toMillis(now), toMillis(now))
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", e.Kind(), err)
		}
		if base.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read %s id: %w", e.Kind(), err)
		}
		base.CreatedAt = fromMillis(toMillis(now))
	} else {
		var createdAt int64
		err := t.tx.QueryRowContext(ctx, `
			UPDATE entities
			SET name = ?, start_date = ?, end_date = ?, status = ?, attrs = ?, updated_at = ?
			WHERE id = ? AND kind = ?
			RETURNING created_at
		`, base.Name, dateToNull(base.StartDate), dateToNull(base.EndDate),
			stringToNull(base.Status), attrs, toMillis(now), base.ID, string(e.Kind())).Scan(&createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %d: %w", e.Kind(), base.ID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to update %s %d: %w", e.Kind(), base.ID, err)
		}
		base.CreatedAt = fromMillis(createdAt)
	}
	base.UpdatedAt = fromMillis(toMillis(now))

	if err := t.replaceLabels(ctx, base); err != nil {
		return err
	}
	if err := t.syncURIs(ctx, base); err != nil {
		return err
	}
	if err := t.setCollections(ctx, e, base.CollectionIDs); err != nil {
		return err
	}
	if err := loadRelations(ctx, t.tx, []domain.Entity{e}); err != nil {
		return err
	}

	if err := t.hooks.AfterSave(ctx, t, e); err != nil {
		return err
	}
	return loadRelations(ctx, t.tx, []domain.Entity{e})
}

func (t *txStore) replaceLabels(ctx context.Context, base *domain.TempEntity) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM labels WHERE entity_id = ?`, base.ID); err != nil {
		return fmt.Errorf("failed to clear labels of %d: %w", base.ID, err)
	}
	for _, l := range base.Labels {
		if l.Label == "" {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO labels (label, label_type, language, entity_id) VALUES (?, ?, ?, ?)
		`, l.Label, stringToNull(l.LabelType), stringToNull(l.Language), base.ID); err != nil {
			return fmt.Errorf("failed to insert label for %d: %w", base.ID, err)
		}
	}
	return nil
}

// syncURIs makes the stored URIs of the entity match base.URIs, keeping
// rows whose URI is unchanged
func (t *txStore) syncURIs(ctx context.Context, base *domain.TempEntity) error {
	want := make(map[string]domain.URI, len(base.URIs))
	var order []string
	for _, u := range base.URIs {
		u.URI = domain.NormalizeURI(u.URI)
		if u.URI == "" {
			continue
		}
		if _, dup := want[u.URI]; !dup {
			order = append(order, u.URI)
		}
		want[u.URI] = u
	}

	rows, err := t.tx.QueryContext(ctx, `SELECT uri FROM uris WHERE entity_id = ?`, base.ID)
	if err != nil {
		return fmt.Errorf("failed to query uris of %d: %w", base.ID, err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan uri: %w", err)
		}
		existing[uri] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating uris: %w", err)
	}

	for uri := range existing {
		if _, keep := want[uri]; keep {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM uris WHERE entity_id = ? AND uri = ?`, base.ID, uri); err != nil {
			return fmt.Errorf("failed to delete uri %q: %w", uri, err)
		}
	}
	for _, uri := range order {
		if existing[uri] {
			continue
		}
		u := want[uri]
		u.EntityID = base.ID
		if err := t.CreateURI(ctx, &u); err != nil {
			return err
		}
	}
	return nil
}
