// Package multipartextractor finds the multipart features of a feature
// class (geometries made of more than one disjoint part), selects them and
// copies the selection to a new, timestamped output layer.
//
// The CLI lives in cmd/multipart-extractor; this root package exposes the
// same run as a Go API.
//
// # Import
//
// The module path contains a hyphen but Go package names cannot, so the
// package is named multipartextractor:
//
//	import "github.com/hellenic-development/multipart-extractor" // package multipartextractor
//
// # Quick start
//
//	errLog := errorlog.NewFile(errorlog.DefaultPath)
//	defer errLog.Close()
//
//	result, err := multipartextractor.Run(ctx, multipartextractor.Options{
//	    InputLayer:    "parcels",
//	    WorkspacePath: "gis.sqlite",
//	    Recorder:      errLog,
//	})
//	if err != nil {
//	    fmt.Println(multipartextractor.KindOf(err).Category())
//	    fmt.Println(err)
//	    os.Exit(1)
//	}
//	fmt.Println("Temporary layer:", result.TempLayer)
//	fmt.Println("Output layer:", result.OutputLayer)
//
// # Workspaces
//
// A workspace is either a SQLite file (see pkg/workspace/sqlite) or a
// PostGIS database given as a postgres:// URL (see pkg/workspace/postgis).
// Pass an already open workspace in [Options.Workspace] to reuse a session;
// otherwise Run opens [Options.WorkspacePath] and closes it when done, which
// also drops the temporary layer.
//
// # Selection
//
// The temporary layer is a view over the input. When no multipart feature is
// found the layer is given an explicit empty selection, so the output layer
// is created with zero features rather than a copy of the whole input.
//
// # Errors
//
// Run returns one of three error variants: [*ParameterMissingError],
// [*workspace.GeoprocessingError] or [*UnexpectedError]. [KindOf] maps an
// error to its [Kind], which provides the console category line and the
// error log prefix. Failures are passed to [Options.Recorder] as a single
// "<prefix>: <detail>" entry.
//
// # Logging
//
// Pass a [Logger] implementation in [Options.Logger] to receive progress
// messages. A nil Logger silences all output.
package multipartextractor
