package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"prosopography/internal/domain"
)

// Importer interface for importing catalog data from various formats
type Importer interface {
	Parse(r io.Reader) (*domain.CatalogFragment, error)
	Format() string
}

// Exporter interface for exporting catalog data to various formats
type Exporter interface {
	Export(fragment *domain.CatalogFragment, w io.Writer) error
	Format() string
}

// Codec both imports and exports one format
type Codec interface {
	Importer
	Exporter
}

// Formats lists the supported format identifiers
var Formats = []string{"yaml", "json", "toml", "cbor"}

// ForFormat returns the codec for a format identifier. A nil registry
// selects the default catalog kinds.
func ForFormat(format string, registry *domain.Registry) (Codec, error) {
	if registry == nil {
		registry = domain.DefaultRegistry()
	}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return NewYAMLCodec(registry), nil
	case "json":
		return NewJSONCodec(registry), nil
	case "toml":
		return NewTOMLCodec(registry), nil
	case "cbor":
		return NewCBORCodec(registry), nil
	}
	return nil, fmt.Errorf("unsupported format %q (supported: %s)", format, strings.Join(Formats, ", "))
}

// ForPath picks the codec from a file extension
func ForPath(path string, registry *domain.Registry) (Codec, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return nil, fmt.Errorf("cannot infer format of %s: no extension", path)
	}
	return ForFormat(ext, registry)
}
