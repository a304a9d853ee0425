// Package postgis implements a workspace on PostgreSQL with the PostGIS
// extension. Shapes are stored in geometry columns and exchanged as WKB.
package postgis

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
)

// Workspace is a PostGIS-backed workspace.Workspace. It owns a single
// connection because layers are TEMP views scoped to the session.
type Workspace struct {
	conn *pgx.Conn
}

var _ workspace.Workspace = (*Workspace)(nil)

// Open connects to the database at url (postgres://...) and prepares the catalog.
func Open(ctx context.Context, url string) (*Workspace, error) {
	const tool = "OpenWorkspace"

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, workspace.Errorf(tool, "failed to connect: %w", err)
	}

	ws := &Workspace{conn: conn}
	if err := ws.initSchema(ctx); err != nil {
		conn.Close(ctx)
		return nil, workspace.Errorf(tool, "failed to initialize schema: %w", err)
	}

	return ws, nil
}

// Close ends the session, dropping every layer made from it.
func (w *Workspace) Close() error {
	return w.conn.Close(context.Background())
}

func (w *Workspace) initSchema(ctx context.Context) error {
	schema := `
	CREATE EXTENSION IF NOT EXISTS postgis;

	CREATE TABLE IF NOT EXISTS mpx_layers (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	_, err := w.conn.Exec(ctx, schema)
	return err
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// FeatureClasses lists the feature classes in name order.
func (w *Workspace) FeatureClasses(ctx context.Context) ([]string, error) {
	rows, err := w.conn.Query(ctx, `SELECT name FROM mpx_layers ORDER BY name`)
	if err != nil {
		return nil, workspace.Wrap("ListFeatureClasses", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return names, workspace.Wrap("ListFeatureClasses", err)
}

// Exists reports whether a feature class called name exists.
func (w *Workspace) Exists(ctx context.Context, name string) (bool, error) {
	return exists(ctx, w.conn, name)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func exists(ctx context.Context, q rowQuerier, name string) (bool, error) {
	var found bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mpx_layers WHERE name = $1)`, name).Scan(&found)
	if err != nil {
		return false, workspace.Wrap("Exists", err)
	}
	return found, nil
}

// CreateFeatureClass creates an empty feature class. An existing class is
// replaced only when overwrite is set.
func (w *Workspace) CreateFeatureClass(ctx context.Context, name string, overwrite bool) error {
	const tool = "CreateFeatureClass"

	return pgx.BeginFunc(ctx, w.conn, func(tx pgx.Tx) error {
		return createFeatureClass(ctx, tx, tool, name, overwrite)
	})
}

func createFeatureClass(ctx context.Context, tx pgx.Tx, tool, name string, overwrite bool) error {
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
		OBJECTID BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		SHAPE geometry,
		PROPERTIES jsonb NOT NULL DEFAULT '{}'::jsonb
	)`, ident(name))
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return workspace.Errorf(tool, "create table %q: %w", name, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO mpx_layers (name) VALUES ($1)`, name); err != nil {
		return workspace.Errorf(tool, "register %q: %w", name, err)
	}

	return nil
}

func dropFeatureClass(ctx context.Context, tx pgx.Tx, name string) error {
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+ident(name)); err != nil {
		return fmt.Errorf("drop table %q: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM mpx_layers WHERE name = $1`, name); err != nil {
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

	return pgx.BeginFunc(ctx, w.conn, func(tx pgx.Tx) error {
		found, err := exists(ctx, tx, name)
		if err != nil {
			return err
		}
		if !found {
			return workspace.Errorf(tool, "feature class %q does not exist", name)
		}
		return workspace.Wrap(tool, dropFeatureClass(ctx, tx, name))
	})
}

// Insert appends features to the named feature class in one batch. Features
// with a zero OID take the next identity value.
func (w *Workspace) Insert(ctx context.Context, name string, features []workspace.Feature) (int, error) {
	const tool = "InsertFeatures"

	found, err := w.Exists(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, workspace.Errorf(tool, "feature class %q does not exist", name)
	}

	withOID := fmt.Sprintf(`INSERT INTO %s (OBJECTID, SHAPE, PROPERTIES) VALUES ($1, ST_GeomFromWKB($2), $3::jsonb)`, ident(name))
	withoutOID := fmt.Sprintf(`INSERT INTO %s (SHAPE, PROPERTIES) VALUES (ST_GeomFromWKB($1), $2::jsonb)`, ident(name))

	batch := &pgx.Batch{}
	for _, f := range features {
		shape, props, err := workspace.EncodeFeature(f)
		if err != nil {
			return 0, workspace.Wrap(tool, err)
		}
		if f.OID != 0 {
			batch.Queue(withOID, f.OID, shape, props)
		} else {
			batch.Queue(withoutOID, shape, props)
		}
	}

	err = pgx.BeginFunc(ctx, w.conn, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := range features {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return workspace.Errorf(tool, "insert feature %d into %q: %w", features[i].OID, name, err)
			}
		}
		return workspace.Wrap(tool, results.Close())
	})
	if err != nil {
		return 0, err
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

	view := fmt.Sprintf(`CREATE TEMP VIEW %s AS SELECT OBJECTID, SHAPE, PROPERTIES FROM %s`, ident(name), ident(source))
	if _, err := w.conn.Exec(ctx, view); err != nil {
		return nil, workspace.Errorf(tool, "create layer %q: %w", name, err)
	}

	return &layer{LayerState: workspace.NewLayerState(name, source), ws: w}, nil
}

// CopyFeatures copies the layer's features into a new feature class in one
// transaction. Selected IDs are staged with COPY into a transaction-scoped
// temp table, so an empty selection produces an empty feature class.
func (w *Workspace) CopyFeatures(ctx context.Context, in workspace.Layer, out string, overwrite bool) (int, error) {
	const tool = "CopyFeatures"

	l, ok := in.(*layer)
	if !ok || l.ws != w {
		return 0, workspace.Errorf(tool, "layer %q does not belong to this workspace", in.Name())
	}

	copySQL := fmt.Sprintf(`INSERT INTO %s (OBJECTID, SHAPE, PROPERTIES) SELECT OBJECTID, SHAPE, PROPERTIES FROM %s`,
		ident(out), ident(l.Name()))

	var copied int64
	err := pgx.BeginFunc(ctx, w.conn, func(tx pgx.Tx) error {
		if err := createFeatureClass(ctx, tx, tool, out, overwrite); err != nil {
			return err
		}

		sel := l.Selection()
		if sel != nil && sel.Len() == 0 {
			return nil
		}

		query := copySQL
		if sel != nil {
			if err := stageSelection(ctx, tx, sel.IDs()); err != nil {
				return workspace.Wrap(tool, err)
			}
			query += ` WHERE OBJECTID IN (SELECT oid FROM mpx_selection)`
		}

		tag, err := tx.Exec(ctx, query)
		if err != nil {
			return workspace.Errorf(tool, "copy %q to %q: %w", l.Name(), out, err)
		}
		copied = tag.RowsAffected()

		// Keep the identity ahead of the copied OIDs for later inserts.
		_, err = tx.Exec(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%s', 'objectid'), COALESCE(MAX(OBJECTID), 0) + 1, false) FROM %s`,
			ident(out), ident(out)))
		return workspace.Wrap(tool, err)
	})
	if err != nil {
		return 0, err
	}

	return int(copied), nil
}

func stageSelection(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE mpx_selection (oid BIGINT PRIMARY KEY) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("stage selection: %w", err)
	}

	_, err := tx.CopyFrom(ctx, pgx.Identifier{"mpx_selection"}, []string{"oid"},
		pgx.CopyFromSlice(len(ids), func(i int) ([]any, error) {
			return []any{ids[i]}, nil
		}))
	if err != nil {
		return fmt.Errorf("stage selection: %w", err)
	}

	return nil
}

type layer struct {
	workspace.LayerState
	ws *Workspace
}

func (l *layer) SearchCursor(ctx context.Context, where string) (workspace.Cursor, error) {
	q := fmt.Sprintf(`SELECT OBJECTID, ST_AsBinary(SHAPE), PROPERTIES FROM %s%s ORDER BY OBJECTID`,
		ident(l.Name()), workspace.WhereSQL(where))

	rows, err := l.ws.conn.Query(ctx, q)
	if err != nil {
		return nil, workspace.Errorf("SearchCursor", "query %q: %w", l.Name(), err)
	}

	return workspace.FilterSelection(&cursor{rows: rows}, l.Selection()), nil
}

func (l *layer) SelectByAttribute(ctx context.Context, mode workspace.SelectionMode, where string) (int, error) {
	return l.Select(ctx, mode, where, l.objectIDs)
}

func (l *layer) objectIDs(ctx context.Context, where string) ([]int64, error) {
	q := fmt.Sprintf(`SELECT OBJECTID FROM %s%s ORDER BY OBJECTID`, ident(l.Name()), workspace.WhereSQL(where))

	rows, err := l.ws.conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", where, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", where, err)
	}

	return ids, nil
}

type cursor struct {
	rows    pgx.Rows
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
		props []byte
	)
	if err := c.rows.Scan(&oid, &shape, &props); err != nil {
		c.err = workspace.Wrap("SearchCursor", err)
		return false
	}

	f, err := workspace.DecodeFeature(oid, shape, props)
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
	c.rows.Close()
	return nil
}
