package multipartextractor

import (
	"context"
	"errors"
	"strings"

	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
	"github.com/hellenic-development/multipart-extractor/pkg/workspace/postgis"
	"github.com/hellenic-development/multipart-extractor/pkg/workspace/sqlite"
)

// OpenWorkspace opens the workspace at path. postgres:// and postgresql://
// URLs open a PostGIS workspace; anything else is a SQLite file path.
func OpenWorkspace(ctx context.Context, path string) (workspace.Workspace, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, workspace.Wrap("OpenWorkspace", errors.New("no workspace configured"))
	}

	if IsPostGIS(path) {
		ws, err := postgis.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}

	ws, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// IsPostGIS reports whether path names a PostGIS workspace.
func IsPostGIS(path string) bool {
	return strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://")
}
