// Package filter defines the search filter sets of the catalog.
//
// A Set lists, per entity kind, the fields a user may filter on, the lookups
// each field accepts and a human-readable label. Parse turns query parameters
// of the form field=value or field__lookup=value into a Query: a conjunction
// of predicate expressions that storage backends compile into their own query
// language.
//
// Most fields map to one Match on an entity attribute. The person name field
// is custom: it matches the name OR any label whose type is configured as an
// alternate name, and marks the query distinct.
package filter
