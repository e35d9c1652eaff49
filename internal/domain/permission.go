package domain

import (
	"sort"
	"strings"
)

// Action is a row-level permission action
type Action string

const (
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

// GrantedActions are the actions a collection grants its allowed groups
var GrantedActions = []Action{ActionChange, ActionDelete}

// Grantable is the capability of entity kinds whose rows carry group
// permissions propagated from collections
type Grantable interface {
	Entity
	ObjectPermissions() []string
}

// Codename builds the permission codename for an action on a kind, e.g. "change_person"
func Codename(a Action, k Kind) string {
	return string(a) + "_" + strings.ToLower(string(k))
}

func objectPermissions(k Kind) []string {
	out := make([]string, 0, len(GrantedActions))
	for _, a := range GrantedActions {
		out = append(out, Codename(a, k))
	}
	return out
}

// Grant is one row-level permission of a group on an entity
type Grant struct {
	GroupID  int64  `json:"group_id"`
	EntityID int64  `json:"entity_id"`
	Codename string `json:"codename"`
}

// GroupSet is a set of group IDs
type GroupSet map[int64]struct{}

// NewGroupSet creates a set from ids
func NewGroupSet(ids ...int64) GroupSet {
	s := make(GroupSet, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts ids
func (s GroupSet) Add(ids ...int64) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has reports membership
func (s GroupSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Minus returns the ids of s that are not in other
func (s GroupSet) Minus(other GroupSet) GroupSet {
	out := make(GroupSet)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the ids in ascending order
func (s GroupSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
