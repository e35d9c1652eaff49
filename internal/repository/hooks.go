package repository

import (
	"context"

	"prosopography/internal/domain"
)

// SaveHook runs after an entity row and its relations are written, inside
// the save transaction. Hooks run in registration order.
type SaveHook interface {
	AfterSave(ctx context.Context, tx Tx, e domain.Entity) error
}

// MembershipHook observes changes to an entity's collections. BeforeAdd
// receives only collections the entity was not already in; AfterRemove
// receives the collections whose membership rows were deleted, once per
// call, after all of them are gone.
type MembershipHook interface {
	BeforeAdd(ctx context.Context, tx Tx, e domain.Entity, collectionIDs []int64) error
	AfterRemove(ctx context.Context, tx Tx, e domain.Entity, collectionIDs []int64) error
}

// GroupHook observes changes to a collection's allowed groups, with the same
// batching as MembershipHook
type GroupHook interface {
	BeforeGroupsAdd(ctx context.Context, tx Tx, collectionID int64, groupIDs []int64) error
	AfterGroupsRemove(ctx context.Context, tx Tx, collectionID int64, groupIDs []int64) error
}

// Hooks holds registered hooks in order
type Hooks struct {
	Save       []SaveHook
	Membership []MembershipHook
	Groups     []GroupHook
}

// AfterSave runs every save hook, stopping at the first error
func (h *Hooks) AfterSave(ctx context.Context, tx Tx, e domain.Entity) error {
	for _, hook := range h.Save {
		if err := hook.AfterSave(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

// BeforeAdd runs every membership hook's BeforeAdd
func (h *Hooks) BeforeAdd(ctx context.Context, tx Tx, e domain.Entity, collectionIDs []int64) error {
	if len(collectionIDs) == 0 {
		return nil
	}
	for _, hook := range h.Membership {
		if err := hook.BeforeAdd(ctx, tx, e, collectionIDs); err != nil {
			return err
		}
	}
	return nil
}

// AfterRemove runs every membership hook's AfterRemove
func (h *Hooks) AfterRemove(ctx context.Context, tx Tx, e domain.Entity, collectionIDs []int64) error {
	if len(collectionIDs) == 0 {
		return nil
	}
	for _, hook := range h.Membership {
		if err := hook.AfterRemove(ctx, tx, e, collectionIDs); err != nil {
			return err
		}
	}
	return nil
}

// BeforeGroupsAdd runs every group hook's BeforeGroupsAdd
func (h *Hooks) BeforeGroupsAdd(ctx context.Context, tx Tx, collectionID int64, groupIDs []int64) error {
	if len(groupIDs) == 0 {
		return nil
	}
	for _, hook := range h.Groups {
		if err := hook.BeforeGroupsAdd(ctx, tx, collectionID, groupIDs); err != nil {
			return err
		}
	}
	return nil
}

// AfterGroupsRemove runs every group hook's AfterGroupsRemove
func (h *Hooks) AfterGroupsRemove(ctx context.Context, tx Tx, collectionID int64, groupIDs []int64) error {
	if len(groupIDs) == 0 {
		return nil
	}
	for _, hook := range h.Groups {
		if err := hook.AfterGroupsRemove(ctx, tx, collectionID, groupIDs); err != nil {
			return err
		}
	}
	return nil
}
