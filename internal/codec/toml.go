package codec

import (
	"fmt"
	"io"

	"prosopography/internal/domain"

	"github.com/BurntSushi/toml"
)

// TOMLCodec handles TOML fixtures
type TOMLCodec struct {
	registry *domain.Registry
}

// NewTOMLCodec creates a new TOML codec
func NewTOMLCodec(registry *domain.Registry) *TOMLCodec {
	return &TOMLCodec{registry: registry}
}

// Format returns the codec format identifier
func (c *TOMLCodec) Format() string {
	return "toml"
}

// Parse imports catalog data from TOML
func (c *TOMLCodec) Parse(r io.Reader) (*domain.CatalogFragment, error) {
	var doc document
	meta, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to parse TOML: unknown key %s", undecoded[0])
	}
	return doc.toFragment(c.registry)
}

// Export exports catalog data to TOML
func (c *TOMLCodec) Export(fragment *domain.CatalogFragment, w io.Writer) error {
	doc, err := fromFragment(fragment)
	if err != nil {
		return err
	}

	encoder := toml.NewEncoder(w)
	encoder.Indent = "  "
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	return nil
}
