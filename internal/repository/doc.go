// Package repository defines the data access interfaces for the catalog.
//
// The Repository interface covers entities, collections, groups, object
// permissions and revisions. The implementation lives in the sqlite
// subpackage.
//
// # Hooks
//
// Side effects of catalog changes are expressed as hooks registered on the
// repository rather than as implicit signals:
//
//   - SaveHook runs after every entity save
//   - MembershipHook runs before collections are added to an entity and after
//     they are removed
//   - GroupHook runs before groups are allowed on a collection and after they
//     are disallowed
//
// Hooks are invoked synchronously inside the transaction of the triggering
// change and access data through Tx. A hook error rolls the whole change back.
package repository
