package domain

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Gender is the enumerated gender of a person
type Gender string

const (
	GenderUnknown Gender = ""
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
)

// GenderChoices lists the accepted non-empty gender values
var GenderChoices = []Gender{GenderFemale, GenderMale}

// Valid reports whether g is empty or one of GenderChoices
func (g Gender) Valid() bool {
	if g == GenderUnknown {
		return true
	}
	for _, c := range GenderChoices {
		if g == c {
			return true
		}
	}
	return false
}

// Person is a temporalized entity modelling a human being.
// StartDate and EndDate are the dates of birth and death.
type Person struct {
	TempEntity
	FirstName   string   `json:"first_name,omitempty"`
	Gender      Gender   `json:"gender,omitempty"`
	Professions []string `json:"professions,omitempty"`
	Titles      []string `json:"titles,omitempty"`
}

// Kind implements Entity
func (p *Person) Kind() Kind { return KindPerson }

// ObjectPermissions implements Grantable
func (p *Person) ObjectPermissions() []string { return objectPermissions(KindPerson) }

// String renders "Name, FirstName" with placeholders for missing parts
func (p *Person) String() string {
	switch {
	case p.FirstName != "" && p.Name != "":
		return fmt.Sprintf("%s, %s", p.Name, p.FirstName)
	case p.FirstName != "":
		return fmt.Sprintf("no surename provided, %s", p.FirstName)
	case p.Name != "":
		return p.Name
	default:
		return "no name provided"
	}
}

// Normalize composes the first name to NFC so that equal names compare and
// sort equally regardless of the input encoding
func (p *Person) Normalize() {
	if p.FirstName != "" && !norm.NFC.IsNormalString(p.FirstName) {
		p.FirstName = norm.NFC.String(p.FirstName)
	}
}

// Validate implements Validator
func (p *Person) Validate() error {
	if !p.Gender.Valid() {
		return fmt.Errorf("%w: gender %q not one of %v", ErrInvalidEntity, p.Gender, GenderChoices)
	}
	return nil
}
