// Package handler implements the read-only HTTP JSON API of the catalog.
//
// # Routes
//
//	GET /healthz
//	GET /api/kinds
//	GET /api/collections
//	GET /api/groups
//	GET /api/events                    (Server-Sent Events, when mounted)
//	GET /api/{kind}                    filters as query parameters, limit, offset
//	GET /api/{kind}/lookup?ref=        primary key or URI
//	GET /api/{kind}/filters            field, lookup and label table
//	GET /api/{kind}/{id}
//	GET /api/{kind}/{id}/history       revisions, newest first
//	GET /api/{kind}/{id}/permissions   object permissions
//
// {kind} accepts the kind name or its plural ("persons", "places").
//
// # Response Format
//
// Success responses return JSON data with status 200. Error responses return
// JSON with an {error, details} structure: 404 for unknown kinds and missing
// entities, 400 for malformed references and rejected filters.
//
// Every response carries an X-Request-ID header; a valid UUID supplied by the
// caller is reused.
package handler
