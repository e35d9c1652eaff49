package domain

// DefaultAlternateNameTypes are the label types treated as alternate names
// when no configuration overrides them
var DefaultAlternateNameTypes = []string{"alternative name"}

// Label is a free-text label attached to an entity, such as an alternative
// name or a name in another language
type Label struct {
	ID        int64  `json:"id,omitempty"`
	Label     string `json:"label"`
	LabelType string `json:"label_type,omitempty"`
	Language  string `json:"language,omitempty"`
	EntityID  int64  `json:"entity_id,omitempty"`
}
