// Package sqlite implements a single-file workspace on SQLite.
//
// Each feature class is a table (OBJECTID INTEGER PRIMARY KEY, SHAPE BLOB,
// PROPERTIES TEXT) holding WKB shapes and JSON attributes, registered in the
// mpx_layers catalog. Layers are TEMP views, so they disappear with the
// connection; the workspace therefore holds exactly one connection.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hellenic-development/multipart-extractor/pkg/workspace"

	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory workspace.
const Memory = ":memory:"

// Workspace is a SQLite-backed workspace.Workspace.
type Workspace struct {
	db   *sql.DB
	path string
}

var _ workspace.Workspace = (*Workspace)(nil)

// Open creates or opens the workspace file at path.
func Open(ctx context.Context, path string) (*Workspace, error) {
	const tool = "OpenWorkspace"

	dsn := Memory
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, workspace.Errorf(tool, "failed to create directory: %w", err)
		}
		var err error
		if dsn, err = fileDSN(path); err != nil {
			return nil, workspace.Errorf(tool, "failed to resolve %q: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, workspace.Errorf(tool, "failed to open database %q: %w", path, err)
	}
	// TEMP views are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ws := &Workspace{db: db, path: path}
	if err := ws.initSchema(ctx); err != nil {
		db.Close()
		return nil, workspace.Errorf(tool, "failed to initialize schema: %w", err)
	}

	return ws, nil
}

// fileDSN turns path into a file: URI carrying the connection pragmas. The
// path is escaped so that '?', '#' and '%' stay part of the file name.
func fileDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}
	return u.String(), nil
}

// Path returns the database file path.
func (w *Workspace) Path() string {
	return w.path
}

// Close closes the connection, dropping every layer made from it.
func (w *Workspace) Close() error {
	return w.db.Close()
}

func (w *Workspace) initSchema(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS mpx_layers (
		name TEXT PRIMARY KEY COLLATE NOCASE,
		created_at TEXT NOT NULL
	)`)
	return err
}

func quote(name string) string {
	return `"` + name + `"`
}

// FeatureClasses lists the feature classes in name order.
func (w *Workspace) FeatureClasses(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT name FROM mpx_layers ORDER BY name`)
	if err != nil {
		return nil, workspace.Wrap("ListFeatureClasses", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, workspace.Wrap("ListFeatureClasses", err)
		}
		names = append(names, name)
	}

	return names, workspace.Wrap("ListFeatureClasses", rows.Err())
}

// Exists reports whether a feature class called name exists.
func (w *Workspace) Exists(ctx context.Context, name string) (bool, error) {
	return exists(ctx, w.db, name)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exists(ctx context.Context, q querier, name string) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM mpx_layers WHERE name = ?`, name).Scan(&count); err != nil {
		return false, workspace.Wrap("Exists", err)
	}
	return count > 0, nil
}

// CreateFeatureClass creates an empty feature class. An existing class is
// replaced only when overwrite is set.
func (w *Workspace) CreateFeatureClass(ctx context.Context, name string, overwrite bool) error {
	const tool = "CreateFeatureClass"

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return workspace.Wrap(tool, err)
	}
	defer tx.Rollback()

	if err := createFeatureClass(ctx, tx, tool, name, overwrite); err != nil {
		return err
	}

	return workspace.Wrap(tool, tx.Commit())
}

func createFeatureClass(ctx context.Context, tx *sql.Tx, tool, name string, overwrite bool) error {
	if err := workspace.ValidateName(name); err != nil {
		return workspace.Wrap(tool, err)
	}

	found, err := exists(ctx, tx, name)
	if err != nil {
		return err
	}
	if found {
		if !overwrite {
			return workspace.Errorf(tool, "output %q already exists", name)
		}
		if err := dropFeatureClass(ctx, tx, name); err != nil {
			return workspace.Wrap(tool, err)
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		OBJECTID INTEGER PRIMARY KEY,
		SHAPE BLOB,
		PROPERTIES TEXT NOT NULL DEFAULT '{}'
	)`, quote(name))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return workspace.Errorf(tool, "create table %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO mpx_layers (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return workspace.Errorf(tool, "register %q: %w", name, err)
	}

	return nil
}

func dropFeatureClass(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS main.`+quote(name)); err != nil {
		return fmt.Errorf("drop table %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mpx_layers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("unregister %q: %w", name, err)
	}
	return nil
}

// Delete removes a feature class.
func (w *Workspace) Delete(ctx context.Context, name string) error {
	const tool = "Delete"

	if err := workspace.ValidateName(name); err != nil {
		return workspace.Wrap(tool, err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return workspace.Wrap(tool, err)
	}
	defer tx.Rollback()

	found, err := exists(ctx, tx, name)
	if err != nil {
		return err
	}
	if !found {
		return workspace.Errorf(tool, "feature class %q does not exist", name)
	}
	if err := dropFeatureClass(ctx, tx, name); err != nil {
		return workspace.Wrap(tool, err)
	}

	return workspace.Wrap(tool, tx.Commit())
}

// Insert appends features to the named feature class. Features with a zero
// OID are assigned the next free one.
func (w *Workspace) Insert(ctx context.Context, name string, features []workspace.Feature) (int, error) {
	const tool = "InsertFeatures"

	found, err := w.Exists(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, workspace.Errorf(tool, "feature class %q does not exist", name)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, workspace.Wrap(tool, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (OBJECTID, SHAPE, PROPERTIES) VALUES (?, ?, ?)`, quote(name)))
	if err != nil {
		return 0, workspace.Wrap(tool, err)
	}
	defer stmt.Close()

	for _, f := range features {
		shape, props, err := workspace.EncodeFeature(f)
		if err != nil {
			return 0, workspace.Wrap(tool, err)
		}

		var oid any
		if f.OID != 0 {
			oid = f.OID
		}
		if _, err := stmt.ExecContext(ctx, oid, shape, props); err != nil {
			return 0, workspace.Errorf(tool, "insert feature %d into %q: %w", f.OID, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, workspace.Wrap(tool, err)
	}

	return len(features), nil
}

// MakeFeatureLayer creates a layer called name viewing the source feature class.
func (w *Workspace) MakeFeatureLayer(ctx context.Context, source, name string) (workspace.Layer, error) {
	const tool = "MakeFeatureLayer"

	if err := workspace.ValidateName(source); err != nil {
		return nil, workspace.Wrap(tool, err)
	}
	if err := workspace.ValidateName(name); err != nil {
		return nil, workspace.Wrap(tool, err)
	}

	found, err := w.Exists(ctx, source)
	if err != nil {
		return nil, workspace.Wrap(tool, err)
	}
	if !found {
		return nil, workspace.Errorf(tool, "input dataset %q does not exist or is not supported", source)
	}

	taken, err := w.Exists(ctx, name)
	if err != nil {
		return nil, workspace.Wrap(tool, err)
	}
	if taken {
		return nil, workspace.Errorf(tool, "layer name %q is already used by a feature class", name)
	}

	view := fmt.Sprintf(`CREATE TEMP VIEW %s AS SELECT OBJECTID, SHAPE, PROPERTIES FROM main.%s`, quote(name), quote(source))
	if _, err := w.db.ExecContext(ctx, view); err != nil {
		return nil, workspace.Errorf(tool, "create layer %q: %w", name, err)
	}

	return &layer{LayerState: workspace.NewLayerState(name, source), ws: w}, nil
}

// CopyFeatures copies the layer's features into a new feature class, in a
// single transaction. Only selected features are copied when the layer has a
// selection, so an empty selection produces an empty feature class.
func (w *Workspace) CopyFeatures(ctx context.Context, in workspace.Layer, out string, overwrite bool) (int, error) {
	const tool = "CopyFeatures"

	l, ok := in.(*layer)
	if !ok || l.ws != w {
		return 0, workspace.Errorf(tool, "layer %q does not belong to this workspace", in.Name())
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, workspace.Wrap(tool, err)
	}
	defer tx.Rollback()

	if err := createFeatureClass(ctx, tx, tool, out, overwrite); err != nil {
		return 0, err
	}

	copySQL := fmt.Sprintf(`INSERT INTO %s (OBJECTID, SHAPE, PROPERTIES) SELECT OBJECTID, SHAPE, PROPERTIES FROM %s`,
		quote(out), quote(l.Name()))

	sel := l.Selection()
	var copied int64
	switch {
	case sel == nil:
		res, err := tx.ExecContext(ctx, copySQL)
		if err != nil {
			return 0, workspace.Errorf(tool, "copy %q to %q: %w", l.Name(), out, err)
		}
		copied, _ = res.RowsAffected()
	case sel.Len() > 0:
		if err := stageSelection(ctx, tx, sel.IDs()); err != nil {
			return 0, workspace.Wrap(tool, err)
		}
		res, err := tx.ExecContext(ctx, copySQL+` WHERE OBJECTID IN (SELECT oid FROM temp.mpx_selection)`)
		if err != nil {
			return 0, workspace.Errorf(tool, "copy %q to %q: %w", l.Name(), out, err)
		}
		copied, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return 0, workspace.Wrap(tool, err)
	}

	return int(copied), nil
}

// stageSelection loads ids into the connection's temp.mpx_selection table.
func stageSelection(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS mpx_selection (oid INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("stage selection: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM temp.mpx_selection`); err != nil {
		return fmt.Errorf("stage selection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO temp.mpx_selection (oid) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("stage selection: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("stage selection: %w", err)
		}
	}

	return nil
}

// layer is a TEMP view over a feature class.
type layer struct {
	workspace.LayerState
	ws *Workspace
}

func (l *layer) SearchCursor(ctx context.Context, where string) (workspace.Cursor, error) {
	q := fmt.Sprintf(`SELECT OBJECTID, SHAPE, PROPERTIES FROM %s%s ORDER BY OBJECTID`,
		quote(l.Name()), workspace.WhereSQL(where))

	rows, err := l.ws.db.QueryContext(ctx, q)
	if err != nil {
		return nil, workspace.Errorf("SearchCursor", "query %q: %w", l.Name(), err)
	}

	return workspace.FilterSelection(&cursor{rows: rows}, l.Selection()), nil
}

func (l *layer) SelectByAttribute(ctx context.Context, mode workspace.SelectionMode, where string) (int, error) {
	return l.Select(ctx, mode, where, l.objectIDs)
}

func (l *layer) objectIDs(ctx context.Context, where string) ([]int64, error) {
	q := fmt.Sprintf(`SELECT OBJECTID FROM %s%s ORDER BY OBJECTID`, quote(l.Name()), workspace.WhereSQL(where))

	rows, err := l.ws.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", strings.TrimSpace(where), err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

type cursor struct {
	rows    *sql.Rows
	feature workspace.Feature
	err     error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	var (
		oid   int64
		shape []byte
		props sql.NullString
	)
	if err := c.rows.Scan(&oid, &shape, &props); err != nil {
		c.err = workspace.Wrap("SearchCursor", err)
		return false
	}

	f, err := workspace.DecodeFeature(oid, shape, []byte(props.String))
	if err != nil {
		c.err = workspace.Wrap("SearchCursor", err)
		return false
	}

	c.feature = f
	return true
}

func (c *cursor) Feature() workspace.Feature { return c.feature }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return workspace.Wrap("SearchCursor", c.rows.Err())
}

func (c *cursor) Close() error {
	return c.rows.Close()
}
