package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref is a parsed lookup reference: either a primary key or a URI
type Ref struct {
	ID  int64
	URI string
}

// IsID reports whether the reference is a primary key
func (r Ref) IsID() bool {
	return r.URI == ""
}

func (r Ref) String() string {
	if r.IsID() {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.URI
}

// ParseRef interprets s as a primary key when it consists only of ASCII
// digits, and as a URI otherwise
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty", ErrMalformedRef)
	}
	if isDigits(s) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: %q: %v", ErrMalformedRef, s, err)
		}
		return Ref{ID: id}, nil
	}
	return Ref{URI: s}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
