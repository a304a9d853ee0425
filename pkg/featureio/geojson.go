package featureio

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
)

// ImportGeoJSON loads a GeoJSON FeatureCollection into a new feature class
// called name and returns the number of features written. Integer feature
// ids become object IDs; features without one are numbered after the highest
// id in the collection. Null geometries are kept as null shapes.
func ImportGeoJSON(ctx context.Context, ws workspace.Workspace, name string, r io.Reader, overwrite bool) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read GeoJSON: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	features := make([]workspace.Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		oid, err := objectID(f.ID)
		if err != nil {
			return 0, fmt.Errorf("feature %d: %w", i, err)
		}

		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}

		features = append(features, workspace.Feature{
			OID:        oid,
			Shape:      f.Geometry,
			Properties: props,
		})
	}

	assignObjectIDs(features)

	if err := ws.CreateFeatureClass(ctx, name, overwrite); err != nil {
		return 0, err
	}

	return ws.Insert(ctx, name, features)
}

// assignObjectIDs numbers the features without an id after the highest
// explicit one, in collection order, so a later explicit id can never clash
// with an assigned one.
func assignObjectIDs(features []workspace.Feature) {
	var next int64
	for _, f := range features {
		if f.OID > next {
			next = f.OID
		}
	}

	for i := range features {
		if features[i].OID == 0 {
			next++
			features[i].OID = next
		}
	}
}

// objectID converts a GeoJSON feature id into an object ID; 0 means none.
func objectID(id any) (int64, error) {
	switch v := id.(type) {
	case nil:
		return 0, nil
	case float64:
		if v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
			return 0, nil
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 1 {
			return 0, nil
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported feature id type %T", id)
	}
}

// ExportGeoJSON writes the layer's features, honoring its selection, as a
// FeatureCollection with object IDs as feature ids.
func ExportGeoJSON(ctx context.Context, layer workspace.Layer, w io.Writer) (int, error) {
	cursor, err := layer.SearchCursor(ctx, "")
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	fc := geojson.NewFeatureCollection()
	for cursor.Next() {
		feat := cursor.Feature()

		f := geojson.NewFeature(feat.Shape)
		f.ID = feat.OID
		for k, v := range feat.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	if err := cursor.Err(); err != nil {
		return 0, err
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to encode feature collection: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write GeoJSON: %w", err)
	}

	return len(fc.Features), nil
}

// LayerNameFromPath derives a feature class name from a file name,
// e.g. "data/County Parcels.geojson" becomes "county_parcels".
func LayerNameFromPath(path string) string {
	base := filepath.Base(path)
	return workspace.SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
}
