package domain

import (
	"strings"
	"time"
)

// Entity is implemented by every catalog entity type
type Entity interface {
	Kind() Kind
	Base() *TempEntity
	String() string
}

// Normalizer is implemented by entities that canonicalize fields before persistence
type Normalizer interface {
	Normalize()
}

// Validator is implemented by entities with field constraints
type Validator interface {
	Validate() error
}

// TempEntity is the temporalized base shared by all entity kinds
type TempEntity struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	StartDate        *Date     `json:"start_date,omitempty"`
	EndDate          *Date     `json:"end_date,omitempty"`
	StartDateWritten string    `json:"start_date_written,omitempty"`
	EndDateWritten   string    `json:"end_date_written,omitempty"`
	Status           string    `json:"status,omitempty"`
	References       string    `json:"references,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Relations, loaded from their own tables
	URIs          []URI   `json:"uris,omitempty"`
	Labels        []Label `json:"labels,omitempty"`
	CollectionIDs []int64 `json:"collections,omitempty"`
}

// Base returns the entity itself; embedding types inherit it
func (e *TempEntity) Base() *TempEntity {
	return e
}

// HasURI reports whether the entity already carries the given URI
func (e *TempEntity) HasURI(uri string) bool {
	for _, u := range e.URIs {
		if u.URI == uri {
			return true
		}
	}
	return false
}

// InCollection reports whether the entity belongs to the collection
func (e *TempEntity) InCollection(id int64) bool {
	for _, c := range e.CollectionIDs {
		if c == id {
			return true
		}
	}
	return false
}

// LabelsOfType returns the labels whose type is one of types (case-insensitive)
func (e *TempEntity) LabelsOfType(types ...string) []Label {
	var out []Label
	for _, l := range e.Labels {
		for _, t := range types {
			if strings.EqualFold(l.LabelType, t) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func displayName(name string) string {
	if name == "" {
		return "no name provided"
	}
	return name
}
