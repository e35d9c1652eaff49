package domain

// Collection groups entities and names the groups allowed to edit them
type Collection struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	GroupIDs    []int64 `json:"groups_allowed,omitempty"`
}

// Group is a permission holder, typically a team of editors
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
