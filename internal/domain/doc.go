// Package domain defines the core domain types for the prosopography catalog.
//
// This package contains the entity declarations and value objects that model
// historical persons, places, institutions, events and works, together with the
// collections and groups that govern row-level permissions on them.
//
// # Temporal Entities
//
// TempEntity is the shared base of every catalog entity. It carries a name,
// an optional start and end date, a status, the entity's URIs, its free-text
// labels and the collections it belongs to. Person, Place, Institution, Event
// and Work embed it and add their own attributes.
//
// # Kinds and the Registry
//
// Every entity reports its Kind. A Registry maps kinds to constructors and is
// the single place new kinds are added. Kinds whose entities implement
// Grantable take part in collection-driven permission propagation.
//
// # URIs
//
// Every saved entity owns at least one URI. When none was supplied, a default
// URI is derived from the configured base URI and the entity's primary key
// (see DefaultURI).
//
// # Collections and Permissions
//
// A Collection groups entities and names the groups allowed to edit them.
// A Grant records one row-level permission (change or delete) of a group on a
// single entity.
//
// # Lookup References
//
// ParseRef interprets a user-supplied reference either as a primary key or as
// a URI. Lookups report ErrNotFound and ErrMalformedRef explicitly.
//
// # Design Principles
//
// - No database or external dependencies beyond golang.org/x/text
// - Pure domain logic without infrastructure concerns
// - Typed string enumerations with meaningful constants
package domain
