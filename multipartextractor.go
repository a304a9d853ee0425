package multipartextractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hellenic-development/multipart-extractor/pkg/errorlog"
	"github.com/hellenic-development/multipart-extractor/pkg/selector"
	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
)

// Version is the release of the extractor.
const Version = "0.1.0"

// Layer name parts. Names are <prefix><timestamp>, unique per second.
const (
	TempLayerPrefix   = "temp_layer_"
	OutputLayerPrefix = "output_layer_"
	TimestampLayout   = "20060102_150405"
)

// Options configures a run.
type Options struct {
	InputLayer      string              // feature class to scan (required)
	Workspace       workspace.Workspace // nil = open WorkspacePath
	WorkspacePath   string              // SQLite file or postgres:// URL
	OverwriteOutput bool
	RunID           string            // empty = a new UUID
	Clock           func() time.Time  // nil = time.Now
	Logger          Logger            // nil = no logging
	Recorder        errorlog.Recorder // nil = failures are not recorded
}

// Logger receives progress messages. A nil Logger means silent operation.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Result describes a successful run.
type Result struct {
	RunID       string
	TempLayer   string
	OutputLayer string
	SelectedIDs []int64 // multipart object IDs, in scan order
	Scanned     int     // rows visited
	Copied      int     // features written to OutputLayer
}

func (o *Options) logInfo(f string, a ...any) {
	if o.Logger != nil {
		o.Logger.Infof(f, a...)
	}
}

func (o *Options) logWarn(f string, a ...any) {
	if o.Logger != nil {
		o.Logger.Warnf(f, a...)
	}
}

func (o *Options) logError(f string, a ...any) {
	if o.Logger != nil {
		o.Logger.Errorf(f, a...)
	}
}

// LayerNames derives the temporary and output layer names for a run started at t.
func LayerNames(t time.Time) (temp, output string) {
	stamp := t.Format(TimestampLayout)
	return TempLayerPrefix + stamp, OutputLayerPrefix + stamp
}

// Run selects the multipart features of the input layer and copies them to a
// new output layer.
//
// Every returned error is a *ParameterMissingError, a
// *workspace.GeoprocessingError or an *UnexpectedError (see KindOf). On
// failure exactly one entry is passed to Options.Recorder; a successful run
// records nothing.
func Run(ctx context.Context, opts Options) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &UnexpectedError{Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			err = classify(err)
			opts.record(err)
		}
	}()

	return run(ctx, &opts)
}

func run(ctx context.Context, opts *Options) (*Result, error) {
	input := strings.TrimSpace(opts.InputLayer)
	if input == "" {
		return nil, &ParameterMissingError{Parameter: "input_layer"}
	}

	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock
	}
	tempName, outputName := LayerNames(now())

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	opts.logInfo("Run %s: %s -> %s", runID, input, outputName)

	ws := opts.Workspace
	if ws == nil {
		opts.logInfo("Opening workspace %s...", opts.WorkspacePath)
		opened, err := OpenWorkspace(ctx, opts.WorkspacePath)
		if err != nil {
			return nil, fmt.Errorf("open workspace: %w", err)
		}
		defer opened.Close()
		ws = opened
	}

	// Make a layer so the selection does not touch the input.
	opts.logInfo("Creating temporary layer %s...", tempName)
	layer, err := ws.MakeFeatureLayer(ctx, input, tempName)
	if err != nil {
		return nil, fmt.Errorf("make feature layer: %w", err)
	}

	opts.logInfo("Scanning %s for multipart features...", input)
	scan, err := selector.Scan(ctx, layer)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", input, err)
	}
	if scan.NullShapes > 0 {
		opts.logWarn("Skipped %d feature(s) with a null shape", scan.NullShapes)
	}
	opts.logInfo("Found %d multipart feature(s) in %d row(s)", len(scan.IDs), scan.Rows)

	if len(scan.IDs) > 0 {
		where := selector.WhereIn(workspace.FieldOID, scan.IDs)
		if _, err := layer.SelectByAttribute(ctx, workspace.SelectNew, where); err != nil {
			return nil, fmt.Errorf("select multipart features: %w", err)
		}
	} else {
		// An unselected layer copies every feature.
		opts.logInfo("No multipart features, output will be empty")
		layer.SelectNone()
	}

	opts.logInfo("Copying selection to %s...", outputName)
	copied, err := ws.CopyFeatures(ctx, layer, outputName, opts.OverwriteOutput)
	if err != nil {
		return nil, fmt.Errorf("copy features: %w", err)
	}
	opts.logInfo("Copied %d feature(s)", copied)

	return &Result{
		RunID:       runID,
		TempLayer:   tempName,
		OutputLayer: outputName,
		SelectedIDs: scan.IDs,
		Scanned:     scan.Rows,
		Copied:      copied,
	}, nil
}

func (o *Options) record(err error) {
	if o.Recorder == nil {
		return
	}
	if recErr := o.Recorder.Record(errorlog.SeverityError, LogMessage(err)); recErr != nil {
		o.logError("Could not record error: %v", recErr)
	}
}
