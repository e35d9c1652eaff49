package domain

import (
	"fmt"
	"net/url"
)

// Institution is a temporalized entity modelling an organisation.
// StartDate and EndDate are the dates of foundation and closing.
type Institution struct {
	TempEntity
	Type     string `json:"kind,omitempty"`
	Homepage string `json:"homepage,omitempty"`
}

// Kind implements Entity
func (i *Institution) Kind() Kind { return KindInstitution }

// ObjectPermissions implements Grantable
func (i *Institution) ObjectPermissions() []string { return objectPermissions(KindInstitution) }

func (i *Institution) String() string { return i.Name }

// Validate requires the homepage, if set, to be an absolute http(s) URL
func (i *Institution) Validate() error {
	if i.Homepage == "" {
		return nil
	}
	u, err := url.Parse(i.Homepage)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: homepage %q is not an http(s) URL", ErrInvalidEntity, i.Homepage)
	}
	return nil
}
