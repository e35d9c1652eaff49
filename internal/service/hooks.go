package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"prosopography/internal/domain"
	"prosopography/internal/repository"
)

// ============================================================================
// Default URI
// ============================================================================

// DefaultURIHook gives every saved entity at least one URI. An entity saved
// without any receives BaseURI followed by its primary key.
type DefaultURIHook struct {
	BaseURI string
	Log     zerolog.Logger
}

// AfterSave implements repository.SaveHook
func (h *DefaultURIHook) AfterSave(ctx context.Context, tx repository.Tx, e domain.Entity) error {
	base := e.Base()
	n, err := tx.CountURIs(ctx, base.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	uri := domain.URI{
		URI:      domain.DefaultURI(h.BaseURI, base.ID),
		Domain:   domain.DefaultURIDomain,
		EntityID: base.ID,
	}
	if err := tx.CreateURI(ctx, &uri); err != nil {
		return fmt.Errorf("failed to create default uri for %s %d: %w", e.Kind(), base.ID, err)
	}
	base.URIs = append(base.URIs, uri)
	h.Log.Debug().Str("kind", string(e.Kind())).Int64("entity_id", base.ID).Str("uri", uri.URI).Msg("default uri assigned")
	return nil
}

// ============================================================================
// Collection Permissions
// ============================================================================

// PermissionHook keeps object permissions in line with collection
// membership: every group allowed on a collection an entity belongs to
// holds change and delete on it, and no other group does.
type PermissionHook struct {
	Registry *domain.Registry
	Log      zerolog.Logger
}

// BeforeAdd grants the groups allowed on the new collections
func (h *PermissionHook) BeforeAdd(ctx context.Context, tx repository.Tx, e domain.Entity, collectionIDs []int64) error {
	codenames := h.registry().ObjectPermissions(e.Kind())
	if len(codenames) == 0 {
		return nil
	}
	groups, err := tx.GroupsAllowed(ctx, collectionIDs...)
	if err != nil {
		return err
	}
	id := e.Base().ID
	for _, gid := range groups.Sorted() {
		for _, codename := range codenames {
			if err := tx.AssignPermission(ctx, gid, codename, id); err != nil {
				return err
			}
		}
	}
	if len(groups) > 0 {
		h.Log.Debug().Int64("entity_id", id).Ints64("groups", groups.Sorted()).Msg("permissions granted")
	}
	return nil
}

// AfterRemove revokes grants no longer justified by a remaining collection
func (h *PermissionHook) AfterRemove(ctx context.Context, tx repository.Tx, e domain.Entity, collectionIDs []int64) error {
	codenames := h.registry().ObjectPermissions(e.Kind())
	if len(codenames) == 0 {
		return nil
	}
	id := e.Base().ID
	removed, err := tx.GroupsAllowed(ctx, collectionIDs...)
	if err != nil {
		return err
	}
	remaining, err := tx.EntityCollections(ctx, id)
	if err != nil {
		return err
	}
	keep, err := tx.GroupsAllowed(ctx, remaining...)
	if err != nil {
		return err
	}

	revoke := removed.Minus(keep)
	for _, gid := range revoke.Sorted() {
		for _, codename := range codenames {
			if err := tx.RemovePermission(ctx, gid, codename, id); err != nil {
				return err
			}
		}
	}
	if len(revoke) > 0 {
		h.Log.Debug().Int64("entity_id", id).Ints64("groups", revoke.Sorted()).Msg("permissions revoked")
	}
	return nil
}

// BeforeGroupsAdd grants the new groups on every grantable member of the collection
func (h *PermissionHook) BeforeGroupsAdd(ctx context.Context, tx repository.Tx, collectionID int64, groupIDs []int64) error {
	kinds := h.registry().Grantable()
	if len(kinds) == 0 {
		return nil
	}
	members, err := tx.CollectionMembers(ctx, collectionID, kinds...)
	if err != nil {
		return err
	}
	for _, m := range members {
		for _, gid := range groupIDs {
			for _, codename := range h.registry().ObjectPermissions(m.Kind) {
				if err := tx.AssignPermission(ctx, gid, codename, m.ID); err != nil {
					return err
				}
			}
		}
	}
	h.Log.Debug().Int64("collection_id", collectionID).Ints64("groups", groupIDs).Int("members", len(members)).Msg("collection groups granted")
	return nil
}

// AfterGroupsRemove revokes the removed groups on the collection's members
// unless another collection of the member still allows them
func (h *PermissionHook) AfterGroupsRemove(ctx context.Context, tx repository.Tx, collectionID int64, groupIDs []int64) error {
	kinds := h.registry().Grantable()
	if len(kinds) == 0 {
		return nil
	}
	members, err := tx.CollectionMembers(ctx, collectionID, kinds...)
	if err != nil {
		return err
	}
	removed := domain.NewGroupSet(groupIDs...)
	for _, m := range members {
		collections, err := tx.EntityCollections(ctx, m.ID)
		if err != nil {
			return err
		}
		keep, err := tx.GroupsAllowed(ctx, collections...)
		if err != nil {
			return err
		}
		for _, gid := range removed.Minus(keep).Sorted() {
			for _, codename := range h.registry().ObjectPermissions(m.Kind) {
				if err := tx.RemovePermission(ctx, gid, codename, m.ID); err != nil {
					return err
				}
			}
		}
	}
	h.Log.Debug().Int64("collection_id", collectionID).Ints64("groups", groupIDs).Int("members", len(members)).Msg("collection groups revoked")
	return nil
}

func (h *PermissionHook) registry() *domain.Registry {
	if h.Registry == nil {
		return domain.DefaultRegistry()
	}
	return h.Registry
}

// ============================================================================
// Revisions
// ============================================================================

// RevisionHook records a snapshot of every saved entity. A save that leaves
// the snapshot unchanged records nothing.
type RevisionHook struct {
	Log zerolog.Logger
}

// AfterSave implements repository.SaveHook
func (h *RevisionHook) AfterSave(ctx context.Context, tx repository.Tx, e domain.Entity) error {
	snapshot, digest, err := Snapshot(e)
	if err != nil {
		return err
	}
	id := e.Base().ID
	latest, err := tx.LatestRevision(ctx, id)
	if err != nil {
		return err
	}
	if latest != nil && latest.Digest == digest {
		return nil
	}

	rev := &domain.Revision{EntityID: id, Kind: e.Kind(), Digest: digest, Snapshot: snapshot}
	if err := tx.CreateRevision(ctx, rev); err != nil {
		return err
	}
	h.Log.Debug().Int64("entity_id", id).Int("version", rev.Version).Msg("revision recorded")
	return nil
}

// Snapshot returns the canonical JSON of an entity and its BLAKE2b-256
// digest. Timestamps and relation row keys are left out, so saving an
// unchanged entity yields the same digest.
func Snapshot(e domain.Entity) (json.RawMessage, string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, "", fmt.Errorf("failed to decode snapshot: %w", err)
	}
	delete(fields, "created_at")
	delete(fields, "updated_at")
	for _, rel := range []string{"uris", "labels"} {
		items, _ := fields[rel].([]any)
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				delete(m, "id")
				delete(m, "entity_id")
			}
		}
	}

	canonical, err := json.Marshal(fields)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sum := blake2b.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}
