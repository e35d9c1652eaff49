package domain

import "fmt"

// Place is a temporalized entity modelling a location
type Place struct {
	TempEntity
	Type string   `json:"kind,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

// Kind implements Entity
func (p *Place) Kind() Kind { return KindPlace }

// ObjectPermissions implements Grantable
func (p *Place) ObjectPermissions() []string { return objectPermissions(KindPlace) }

func (p *Place) String() string { return displayName(p.Name) }

// Validate checks coordinate ranges
func (p *Place) Validate() error {
	if p.Lat != nil && (*p.Lat < -90 || *p.Lat > 90) {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidEntity, *p.Lat)
	}
	if p.Lng != nil && (*p.Lng < -180 || *p.Lng > 180) {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidEntity, *p.Lng)
	}
	return nil
}

// Coordinates returns a pointer pair for lat/lng literals
func Coordinates(lat, lng float64) (*float64, *float64) {
	return &lat, &lng
}
