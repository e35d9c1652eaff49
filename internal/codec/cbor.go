package codec

import (
	"fmt"
	"io"

	"prosopography/internal/domain"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec handles binary CBOR fixtures. Field names follow the JSON tags.
type CBORCodec struct {
	registry *domain.Registry
}

// NewCBORCodec creates a new CBOR codec
func NewCBORCodec(registry *domain.Registry) *CBORCodec {
	return &CBORCodec{registry: registry}
}

// Format returns the codec format identifier
func (c *CBORCodec) Format() string {
	return "cbor"
}

var cborDecMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Parse imports catalog data from CBOR
func (c *CBORCodec) Parse(r io.Reader) (*domain.CatalogFragment, error) {
	var doc document
	if err := cborDecMode.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse CBOR: %w", err)
	}
	return doc.toFragment(c.registry)
}

// Export exports catalog data to CBOR
func (c *CBORCodec) Export(fragment *domain.CatalogFragment, w io.Writer) error {
	doc, err := fromFragment(fragment)
	if err != nil {
		return err
	}
	if err := cborEncMode.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return nil
}
