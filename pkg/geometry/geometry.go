package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Shape wraps an orb geometry and exposes the part-level properties the
// selector needs. A Shape with a nil Geometry represents a null shape.
type Shape struct {
	orb.Geometry
}

// IsNull reports whether the shape carries no geometry at all.
func (s Shape) IsNull() bool {
	return s.Geometry == nil
}

// IsMultipart reports whether the shape is made of more than one part.
func (s Shape) IsMultipart() bool {
	return IsMultipart(s.Geometry)
}

// PartCount returns the number of parts in the geometry.
// A multi-geometry counts one part per non-empty member, a collection sums
// the parts of its members, and interior rings of a polygon do not add parts.
func PartCount(g orb.Geometry) int {
	switch g := g.(type) {
	case nil:
		return 0
	case orb.Point, orb.Bound:
		return 1
	case orb.LineString:
		if len(g) == 0 {
			return 0
		}
		return 1
	case orb.Ring:
		if len(g) == 0 {
			return 0
		}
		return 1
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) == 0 {
			return 0
		}
		return 1
	case orb.MultiPoint:
		return len(g)
	case orb.MultiLineString:
		n := 0
		for _, ls := range g {
			n += PartCount(ls)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			n += PartCount(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, member := range g {
			n += PartCount(member)
		}
		return n
	default:
		return 0
	}
}

// IsMultipart reports whether g has more than one part.
func IsMultipart(g orb.Geometry) bool {
	return PartCount(g) > 1
}

// EncodeWKB encodes g as well-known binary. A nil geometry encodes to nil so
// that it can be stored as SQL NULL.
func EncodeWKB(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode %s as WKB: %w", g.GeoJSONType(), err)
	}

	return data, nil
}

// DecodeWKB decodes well-known binary. Empty input decodes to a nil geometry.
func DecodeWKB(data []byte) (orb.Geometry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode WKB: %w", err)
	}

	return g, nil
}
