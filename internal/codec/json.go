package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"prosopography/internal/domain"
)

// JSONCodec handles JSON fixtures
type JSONCodec struct {
	registry *domain.Registry
}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec(registry *domain.Registry) *JSONCodec {
	return &JSONCodec{registry: registry}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports catalog data from JSON
func (c *JSONCodec) Parse(r io.Reader) (*domain.CatalogFragment, error) {
	var doc document
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return doc.toFragment(c.registry)
}

// Export exports catalog data to JSON
func (c *JSONCodec) Export(fragment *domain.CatalogFragment, w io.Writer) error {
	doc, err := fromFragment(fragment)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
