// Package service implements the business logic of the catalog.
//
// Services coordinate between the HTTP handlers, the CLI and the repository
// layer. They register the repository hooks that keep derived data in line
// with the stored entities, and publish events after every committed change.
//
// # Services
//
// CatalogService saves, looks up and searches entities, manages groups and
// collections, and imports or exports fixtures through the codec package.
//
// ReconcileService recomputes object permissions from collection membership
// and repairs grants that drifted.
//
// # Hooks
//
// DefaultURIHook gives entities saved without a URI one built from the
// configured base URI. PermissionHook grants and revokes the change and
// delete permissions of groups allowed on an entity's collections.
// RevisionHook records a BLAKE2b digest snapshot of every changed entity.
//
// All hooks run inside the transaction of the change that triggered them;
// a hook error rolls the change back.
package service
