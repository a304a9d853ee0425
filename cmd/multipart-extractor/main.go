package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	multipartextractor "github.com/hellenic-development/multipart-extractor"
	"github.com/hellenic-development/multipart-extractor/pkg/config"
	"github.com/hellenic-development/multipart-extractor/pkg/errorlog"
	"github.com/hellenic-development/multipart-extractor/pkg/featureio"
	"github.com/hellenic-development/multipart-extractor/pkg/selector"
	"github.com/hellenic-development/multipart-extractor/pkg/workspace"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const version = multipartextractor.Version

var (
	configFile      string
	inputLayer      string
	workspacePath   string
	errorLogPath    string
	overwriteOutput bool
	verbose         bool

	importName string
	exportIDs  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "multipart-extractor [input-layer]",
		Short: "Copy the multipart features of a layer to a new output layer",
		Long: "Scans a feature class for multipart geometries, selects them on a temporary layer " +
			"and copies the selection to a new timestamped output layer. Failures are appended to an error log.\n\n" +
			"A layer named like a subcommand (list, import, export, version, help, completion) " +
			"must be given with --input instead of as an argument.",
		Args: cobra.MaximumNArgs(1),
		Run:  run,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file (optional)")
	rootCmd.PersistentFlags().StringVarP(&workspacePath, "workspace", "w", config.DefaultWorkspace, "SQLite file or postgres:// URL")
	rootCmd.PersistentFlags().StringVar(&errorLogPath, "error-log", errorlog.DefaultPath, "File that failures are appended to")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print progress messages")
	rootCmd.Flags().StringVarP(&inputLayer, "input", "i", "", "Input feature class (alternative to the positional argument)")
	rootCmd.Flags().BoolVar(&overwriteOutput, "overwrite", false, "Replace an existing output layer")

	importCmd := &cobra.Command{
		Use:   "import <file.geojson>",
		Short: "Load a GeoJSON FeatureCollection into a new feature class",
		Args:  cobra.ExactArgs(1),
		Run:   runImport,
	}
	importCmd.Flags().StringVar(&importName, "name", "", "Feature class name (defaults to the file name)")
	importCmd.Flags().BoolVar(&overwriteOutput, "overwrite", false, "Replace an existing feature class")

	exportCmd := &cobra.Command{
		Use:   "export <layer> <file.geojson>",
		Short: "Write a feature class to a GeoJSON FeatureCollection",
		Args:  cobra.ExactArgs(2),
		Run:   runExport,
	}
	exportCmd.Flags().StringVar(&exportIDs, "ids", "", "Comma-separated object IDs to export (optional, exports every feature otherwise)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the feature classes of the workspace",
		Args:  cobra.NoArgs,
		Run:   runList,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("multipart-extractor version %s\n", version)
		},
	}

	rootCmd.AddCommand(importCmd, exportCmd, listCmd, versionCmd)

	return rootCmd
}

// loadConfig resolves the settings: flags over MPX_* variables over the
// config file over defaults.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		color.New(color.FgRed).Printf("Error: %v\n", err)
		os.Exit(1)
	}

	flags := cmd.Flags()
	if flags.Changed("workspace") {
		cfg.Workspace = workspacePath
	}
	if flags.Changed("error-log") {
		cfg.ErrorLog = errorLogPath
	}
	if flags.Changed("overwrite") {
		cfg.OverwriteOutput = overwriteOutput
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}

	if err := cfg.Validate(); err != nil {
		color.New(color.FgRed).Printf("Error: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

func logger(cfg config.Config, out io.Writer) multipartextractor.Logger {
	if !cfg.Verbose {
		return nil
	}
	return &cliLogger{out: out}
}

// resolveInput picks the input layer from the positional argument or the
// --input flag. Giving both is an error.
func resolveInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 {
		return inputLayer, nil
	}
	if cmd.Flags().Changed("input") {
		return "", errors.New("input layer given both as an argument and with --input")
	}
	return args[0], nil
}

func run(cmd *cobra.Command, args []string) {
	input, err := resolveInput(cmd, args)
	if err != nil {
		color.New(color.FgRed).Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := extract(ctx, cmd.OutOrStdout(), cfg, input); err != nil {
		stop()
		os.Exit(1)
	}
}

// extract runs the extractor and prints its outcome to out: the two layer
// names on success, the error category and detail on failure. In verbose
// mode the run ID follows so the console output can be matched to the
// progress messages of the same run.
func extract(ctx context.Context, out io.Writer, cfg config.Config, input string) error {
	runID := uuid.NewString()
	errLog := errorlog.NewFile(cfg.ErrorLog)

	result, err := multipartextractor.Run(ctx, multipartextractor.Options{
		InputLayer:      input,
		WorkspacePath:   cfg.Workspace,
		OverwriteOutput: cfg.OverwriteOutput,
		RunID:           runID,
		Logger:          logger(cfg, out),
		Recorder:        errLog,
	})
	errLog.Close()

	if err != nil {
		color.New(color.FgRed).Fprintln(out, multipartextractor.KindOf(err).Category())
		fmt.Fprintln(out, err)
	} else {
		fmt.Fprintf(out, "Temporary layer: %s\n", result.TempLayer)
		fmt.Fprintf(out, "Output layer: %s\n", result.OutputLayer)
	}

	if cfg.Verbose {
		fmt.Fprintf(out, "Run ID: %s\n", runID)
	}

	return err
}

func runImport(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	path := args[0]

	name := importName
	if name == "" {
		name = featureio.LayerNameFromPath(path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws := openWorkspace(ctx, cfg)
	defer ws.Close()

	f, err := os.Open(path)
	if err != nil {
		fail(ws, "Error: %v", err)
	}
	defer f.Close()

	n, err := featureio.ImportGeoJSON(ctx, ws, name, f, cfg.OverwriteOutput)
	if err != nil {
		fail(ws, "Error: %v", err)
	}

	color.New(color.FgGreen).Printf("Imported %d feature(s) into %s\n", n, name)
}

func runExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	source, path := args[0], args[1]

	ids, err := selector.ParseObjectIDs(exportIDs)
	if err != nil {
		color.New(color.FgRed).Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws := openWorkspace(ctx, cfg)
	defer ws.Close()

	layerName := "export_layer_" + time.Now().Format(multipartextractor.TimestampLayout)
	layer, err := ws.MakeFeatureLayer(ctx, source, layerName)
	if err != nil {
		fail(ws, "Error: %v", err)
	}

	if len(ids) > 0 {
		where := selector.WhereIn(workspace.FieldOID, ids)
		if _, err := layer.SelectByAttribute(ctx, workspace.SelectNew, where); err != nil {
			fail(ws, "Error: %v", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		fail(ws, "Error: %v", err)
	}

	n, err := featureio.ExportGeoJSON(ctx, layer, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fail(ws, "Error: %v", err)
	}

	color.New(color.FgGreen).Printf("Exported %d feature(s) to %s\n", n, path)
}

func runList(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws := openWorkspace(ctx, cfg)
	defer ws.Close()

	names, err := ws.FeatureClasses(ctx)
	if err != nil {
		fail(ws, "Error: %v", err)
	}

	if len(names) == 0 {
		color.New(color.FgYellow).Println("No feature classes")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func openWorkspace(ctx context.Context, cfg config.Config) workspace.Workspace {
	if cfg.Verbose {
		(&cliLogger{out: os.Stdout}).Infof("Opening workspace %s...", cfg.Workspace)
	}

	ws, err := multipartextractor.OpenWorkspace(ctx, cfg.Workspace)
	if err != nil {
		color.New(color.FgRed).Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return ws
}

// fail prints the error, closes the workspace and exits, since os.Exit
// skips deferred calls.
func fail(ws workspace.Workspace, format string, args ...any) {
	color.New(color.FgRed).Printf(format+"\n", args...)
	ws.Close()
	os.Exit(1)
}

// cliLogger implements multipartextractor.Logger with colored terminal output.
type cliLogger struct {
	out io.Writer
}

func (l *cliLogger) Infof(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(l.out, format+"\n", args...)
}

func (l *cliLogger) Warnf(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(l.out, "⚠ "+format+"\n", args...)
}

func (l *cliLogger) Errorf(format string, args ...any) {
	color.New(color.FgRed).Fprintf(l.out, "✗ "+format+"\n", args...)
}
