package domain

import (
	"strconv"
	"strings"
)

// DefaultURIDomain tags URIs synthesized from the base URI
const DefaultURIDomain = "apis default"

// URI is an identifying address of an entity, either supplied by a source
// (GND, GeoNames, ...) or synthesized by the catalog
type URI struct {
	ID       int64  `json:"id,omitempty"`
	URI      string `json:"uri"`
	Domain   string `json:"domain,omitempty"`
	EntityID int64  `json:"entity_id,omitempty"`
}

// DefaultURI builds the synthetic URI for an entity: base followed by the decimal key
func DefaultURI(base string, id int64) string {
	return base + strconv.FormatInt(id, 10)
}

// NormalizeURI trims surrounding whitespace
func NormalizeURI(uri string) string {
	return strings.TrimSpace(uri)
}
