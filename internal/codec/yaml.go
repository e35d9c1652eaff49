package codec

import (
	"fmt"
	"io"

	"prosopography/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML fixtures
type YAMLCodec struct {
	registry *domain.Registry
}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec(registry *domain.Registry) *YAMLCodec {
	return &YAMLCodec{registry: registry}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports catalog data from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.CatalogFragment, error) {
	var doc document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc.toFragment(c.registry)
}

// Export exports catalog data to YAML
func (c *YAMLCodec) Export(fragment *domain.CatalogFragment, w io.Writer) error {
	doc, err := fromFragment(fragment)
	if err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}
