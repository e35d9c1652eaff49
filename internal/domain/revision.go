package domain

import (
	"encoding/json"
	"time"
)

// Revision is a recorded snapshot of an entity after a save
type Revision struct {
	ID        int64           `json:"id"`
	EntityID  int64           `json:"entity_id"`
	Kind      Kind            `json:"kind"`
	Version   int             `json:"version"`
	Digest    string          `json:"digest"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Comment   string          `json:"comment,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
