package repository

import (
	"context"

	"prosopography/internal/domain"
	"prosopography/internal/filter"
)

// Repository defines the interface for catalog data access
type Repository interface {
	// Entity reads
	GetEntity(ctx context.Context, kind domain.Kind, id int64) (domain.Entity, error)
	GetEntityByURI(ctx context.Context, kind domain.Kind, uri string) (domain.Entity, error)
	Search(ctx context.Context, q *filter.Query) ([]domain.Entity, error)
	Count(ctx context.Context, q *filter.Query) (int, error)

	// Entity writes. SaveEntity inserts when the ID is zero and updates
	// otherwise; URIs, labels and collection memberships are persisted with it.
	SaveEntity(ctx context.Context, e domain.Entity) error
	DeleteEntity(ctx context.Context, kind domain.Kind, id int64) error

	// Collection membership
	AddToCollections(ctx context.Context, entityID int64, collectionIDs ...int64) error
	RemoveFromCollections(ctx context.Context, entityID int64, collectionIDs ...int64) error
	SetCollections(ctx context.Context, entityID int64, collectionIDs []int64) error

	// Groups and collections
	CreateGroup(ctx context.Context, g *domain.Group) error
	GetGroup(ctx context.Context, id int64) (*domain.Group, error)
	GetGroupByName(ctx context.Context, name string) (*domain.Group, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)
	CreateCollection(ctx context.Context, c *domain.Collection) error
	GetCollection(ctx context.Context, id int64) (*domain.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*domain.Collection, error)
	ListCollections(ctx context.Context) ([]domain.Collection, error)
	AddGroupsToCollection(ctx context.Context, collectionID int64, groupIDs ...int64) error
	RemoveGroupsFromCollection(ctx context.Context, collectionID int64, groupIDs ...int64) error

	// Object permissions
	ListGrants(ctx context.Context, entityID int64) ([]domain.Grant, error)
	HasPermission(ctx context.Context, groupID int64, codename string, entityID int64) (bool, error)

	// Revisions, newest first
	ListRevisions(ctx context.Context, entityID int64) ([]domain.Revision, error)

	// Atomic runs fn in one transaction with the data access hooks get.
	// Hooks are not triggered by writes made through tx.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Hook registration
	OnSave(h SaveHook)
	OnMembership(h MembershipHook)
	OnGroups(h GroupHook)

	// Close releases resources
	Close() error
}

// Member identifies an entity belonging to a collection
type Member struct {
	ID   int64
	Kind domain.Kind
}

// Tx is the data access available to hooks. It reads and writes through the
// transaction that triggered the hook, so hook changes commit or roll back
// together with the triggering change.
type Tx interface {
	// URIs
	CountURIs(ctx context.Context, entityID int64) (int, error)
	CreateURI(ctx context.Context, uri *domain.URI) error

	// Memberships and allowed groups
	EntityCollections(ctx context.Context, entityID int64) ([]int64, error)
	CollectionMembers(ctx context.Context, collectionID int64, kinds ...domain.Kind) ([]Member, error)
	GroupsAllowed(ctx context.Context, collectionIDs ...int64) (domain.GroupSet, error)

	// Object permissions
	AssignPermission(ctx context.Context, groupID int64, codename string, entityID int64) error
	RemovePermission(ctx context.Context, groupID int64, codename string, entityID int64) error
	Grants(ctx context.Context, entityID int64) ([]domain.Grant, error)
	Members(ctx context.Context, kinds ...domain.Kind) ([]Member, error)

	// Revisions
	LatestRevision(ctx context.Context, entityID int64) (*domain.Revision, error)
	CreateRevision(ctx context.Context, rev *domain.Revision) error
}
