package selector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hellenic-development/multipart-extractor/pkg/geometry"
	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
)

// ScanResult is the outcome of scanning a layer for multipart features.
type ScanResult struct {
	IDs        []int64 // object IDs of multipart features, in scan order
	Rows       int     // rows visited
	NullShapes int     // rows skipped because their shape is null
}

// Scan visits every row of the layer and collects the object IDs of rows
// whose shape is non-null and made of more than one part.
func Scan(ctx context.Context, layer workspace.Layer) (*ScanResult, error) {
	cursor, err := layer.SearchCursor(ctx, "")
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	result := &ScanResult{}
	for cursor.Next() {
		f := cursor.Feature()
		result.Rows++

		shape := geometry.Shape{Geometry: f.Shape}
		if shape.IsNull() {
			result.NullShapes++
			continue
		}
		if shape.IsMultipart() {
			result.IDs = append(result.IDs, f.OID)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// WhereIn builds an attribute query selecting ids, e.g. "OBJECTID IN (1,2,3)".
// IDs are emitted in the given order. An empty list yields an empty query.
func WhereIn(field string, ids []int64) string {
	if len(ids) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(field)
	sb.WriteString(" IN (")
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	sb.WriteByte(')')

	return sb.String()
}

// ParseObjectIDs parses a comma-separated string of object IDs.
func ParseObjectIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid object ID %q: %w", trimmed, err)
		}
		if id <= 0 {
			return nil, fmt.Errorf("object ID must be positive, got %d", id)
		}

		ids = append(ids, id)
	}

	return ids, nil
}
