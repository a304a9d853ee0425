// Package workspace defines the feature store the extractor runs against:
// feature classes, layer views over them with a selection state, and the
// cursors used to scan them. Concrete stores live in the sqlite and postgis
// subpackages.
package workspace

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
)

// Field names shared by every feature class.
const (
	FieldOID        = "OBJECTID"
	FieldShape      = "SHAPE"
	FieldProperties = "PROPERTIES"
)

// Feature is one row of a feature class.
type Feature struct {
	OID        int64          // 0 on insert means "assign one"
	Shape      orb.Geometry   // nil for a null shape
	Properties map[string]any // attribute values, never nil when read back
}

// Cursor iterates features in object ID order, in the style of sql.Rows.
type Cursor interface {
	Next() bool
	Feature() Feature
	Err() error
	Close() error
}

// Layer is a named view over a feature class. It references the source
// features rather than copying them and carries its own selection.
type Layer interface {
	Name() string
	Source() string

	// SearchCursor scans the layer. Only selected features are returned when
	// the layer has a selection; where further restricts the rows.
	SearchCursor(ctx context.Context, where string) (Cursor, error)

	// SelectByAttribute updates the selection from an attribute query and
	// returns the number of selected features.
	SelectByAttribute(ctx context.Context, mode SelectionMode, where string) (int, error)

	// SelectNone sets an explicit, empty selection.
	SelectNone()

	// Selection returns the current selection, nil when nothing has been selected.
	Selection() *Selection
}

// Workspace is a container of feature classes bound to one session.
// Layers made from it live until the workspace is closed.
type Workspace interface {
	FeatureClasses(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, name string) (bool, error)
	CreateFeatureClass(ctx context.Context, name string, overwrite bool) error
	Insert(ctx context.Context, name string, features []Feature) (int, error)
	Delete(ctx context.Context, name string) error

	MakeFeatureLayer(ctx context.Context, source, name string) (Layer, error)

	// CopyFeatures writes the layer's features, honoring its selection, to a
	// new feature class and returns the number of features copied.
	CopyFeatures(ctx context.Context, in Layer, out string, overwrite bool) (int, error)

	Close() error
}

// Anchored so that a name can be spliced into SQL as a quoted identifier.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateName checks that name can be used as a feature class or layer name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid layer name %q: must start with a letter or underscore and contain only letters, digits and underscores (max 63)", name)
	}
	return nil
}

// SanitizeName turns an arbitrary string, such as a file name, into a valid
// layer name: lowercase, with runs of other characters collapsed to one underscore.
func SanitizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var result strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && result.Len() > 0 {
			result.WriteByte('_')
			lastUnderscore = true
		}
	}

	name := strings.TrimSuffix(result.String(), "_")
	if name == "" {
		name = "layer"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	if len(name) > 63 {
		name = name[:63]
	}

	return name
}
