package workspace

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hellenic-development/multipart-extractor/pkg/geometry"
)

// EncodeFeature converts a feature into its stored column values:
// WKB shape (nil for a null shape) and a JSON properties document.
func EncodeFeature(f Feature) (shape []byte, properties string, err error) {
	shape, err = geometry.EncodeWKB(f.Shape)
	if err != nil {
		return nil, "", fmt.Errorf("feature %d: %w", f.OID, err)
	}

	props := f.Properties
	if props == nil {
		props = map[string]any{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, "", fmt.Errorf("feature %d: encode properties: %w", f.OID, err)
	}

	return shape, string(data), nil
}

// DecodeFeature is the inverse of EncodeFeature.
func DecodeFeature(oid int64, shape, properties []byte) (Feature, error) {
	g, err := geometry.DecodeWKB(shape)
	if err != nil {
		return Feature{}, fmt.Errorf("feature %d: %w", oid, err)
	}

	props := map[string]any{}
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &props); err != nil {
			return Feature{}, fmt.Errorf("feature %d: decode properties: %w", oid, err)
		}
	}

	return Feature{OID: oid, Shape: g, Properties: props}, nil
}

// WhereSQL renders an optional attribute query as a SQL WHERE clause.
func WhereSQL(where string) string {
	where = strings.TrimSpace(where)
	if where == "" {
		return ""
	}
	return " WHERE (" + where + ")"
}

// FilterSelection restricts c to the features in sel. A nil selection passes
// every feature through.
func FilterSelection(c Cursor, sel *Selection) Cursor {
	if sel == nil {
		return c
	}
	return &selectedCursor{Cursor: c, selection: sel}
}

type selectedCursor struct {
	Cursor
	selection *Selection
}

func (c *selectedCursor) Next() bool {
	for c.Cursor.Next() {
		if c.selection.Contains(c.Cursor.Feature().OID) {
			return true
		}
	}
	return false
}

// SliceCursor iterates over an in-memory slice of features.
type SliceCursor struct {
	features []Feature
	pos      int
}

// NewSliceCursor returns a cursor over features.
func NewSliceCursor(features []Feature) *SliceCursor {
	return &SliceCursor{features: features, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.features) {
		c.pos = len(c.features)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Feature() Feature { return c.features[c.pos] }
func (c *SliceCursor) Err() error       { return nil }
func (c *SliceCursor) Close() error     { return nil }
