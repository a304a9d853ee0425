package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	multipartextractor "github.com/hellenic-development/multipart-extractor"
	"github.com/hellenic-development/multipart-extractor/pkg/config"
	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
)

func TestLoadConfigPrecedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "mpx.yaml")
	data := "workspace: file.sqlite\nerror_log: file.log\nverbose: true\n"
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	tests := []struct {
		name string
		env  map[string]string
		args []string
		want config.Config
	}{
		{
			name: "file over defaults",
			args: []string{"--config", cfgPath},
			want: config.Config{Workspace: "file.sqlite", ErrorLog: "file.log", Verbose: true},
		},
		{
			name: "env over file",
			env:  map[string]string{"MPX_ERROR_LOG": "env.log", "MPX_WORKSPACE": "env.sqlite"},
			args: []string{"--config", cfgPath},
			want: config.Config{Workspace: "env.sqlite", ErrorLog: "env.log", Verbose: true},
		},
		{
			name: "flags over env",
			env:  map[string]string{"MPX_WORKSPACE": "env.sqlite"},
			args: []string{"--config", cfgPath, "--workspace", "flag.sqlite", "--overwrite", "--verbose=false"},
			want: config.Config{Workspace: "flag.sqlite", ErrorLog: "file.log", OverwriteOutput: true},
		},
		{
			name: "defaults",
			want: config.Default(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cmd := newRootCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}

			if diff := cmp.Diff(tt.want, loadConfig(cmd)); diff != "" {
				t.Errorf("loadConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubcommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"import", "export", "list", "version"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func noColor(t *testing.T) {
	t.Helper()

	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

// seedWorkspace writes a "parcels" feature class with one multipart feature
// and returns a config pointing at it.
func seedWorkspace(t *testing.T) config.Config {
	t.Helper()

	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Config{
		Workspace: filepath.Join(dir, "gis.sqlite"),
		ErrorLog:  filepath.Join(dir, "error_log.txt"),
	}

	ws, err := multipartextractor.OpenWorkspace(ctx, cfg.Workspace)
	if err != nil {
		t.Fatalf("OpenWorkspace() error = %v", err)
	}
	defer ws.Close()

	if err := ws.CreateFeatureClass(ctx, "parcels", false); err != nil {
		t.Fatalf("CreateFeatureClass() error = %v", err)
	}
	features := []workspace.Feature{
		{OID: 1, Shape: orb.Point{0, 0}},
		{OID: 2, Shape: orb.MultiPoint{{0, 0}, {5, 5}}},
	}
	if _, err := ws.Insert(ctx, "parcels", features); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	return cfg
}

func outputLines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
}

func TestExtractSuccessOutput(t *testing.T) {
	noColor(t)
	cfg := seedWorkspace(t)

	var out bytes.Buffer
	if err := extract(context.Background(), &out, cfg, "parcels"); err != nil {
		t.Fatalf("extract() error = %v", err)
	}

	lines := outputLines(&out)
	if len(lines) != 2 {
		t.Fatalf("extract() printed %d lines, want 2:\n%s", len(lines), out.String())
	}
	if !regexp.MustCompile(`^Temporary layer: temp_layer_\d{8}_\d{6}$`).MatchString(lines[0]) {
		t.Errorf("first line = %q", lines[0])
	}
	if !regexp.MustCompile(`^Output layer: output_layer_\d{8}_\d{6}$`).MatchString(lines[1]) {
		t.Errorf("second line = %q", lines[1])
	}

	if _, err := os.Stat(cfg.ErrorLog); !os.IsNotExist(err) {
		t.Errorf("error log written on success, stat error = %v", err)
	}
}

func TestExtractFailureOutput(t *testing.T) {
	noColor(t)

	tests := []struct {
		name     string
		input    string
		category string
		detail   string
	}{
		{
			name:     "missing input",
			input:    " ",
			category: "Value error occurred:",
			detail:   multipartextractor.NoFeatureLayerMessage,
		},
		{
			name:     "unknown layer",
			input:    "roads",
			category: "Geoprocessing error occurred:",
			detail:   "make feature layer: MakeFeatureLayer failed: input dataset \"roads\" does not exist or is not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := seedWorkspace(t)

			var out bytes.Buffer
			if err := extract(context.Background(), &out, cfg, tt.input); err == nil {
				t.Fatal("extract() expected error")
			}

			want := []string{tt.category, tt.detail}
			if diff := cmp.Diff(want, outputLines(&out)); diff != "" {
				t.Errorf("console output mismatch (-want +got):\n%s", diff)
			}

			data, err := os.ReadFile(cfg.ErrorLog)
			if err != nil {
				t.Fatalf("failed to read error log: %v", err)
			}
			if n := strings.Count(string(data), "\n"); n != 1 {
				t.Errorf("error log has %d lines, want 1", n)
			}
		})
	}
}

func TestExtractVerbosePrintsRunID(t *testing.T) {
	noColor(t)
	cfg := seedWorkspace(t)
	cfg.Verbose = true

	var out bytes.Buffer
	if err := extract(context.Background(), &out, cfg, ""); err == nil {
		t.Fatal("extract() expected error")
	}

	lines := outputLines(&out)
	last := lines[len(lines)-1]
	if !regexp.MustCompile(`^Run ID: [0-9a-f-]{36}$`).MatchString(last) {
		t.Fatalf("last line = %q, want the run ID", last)
	}

	out.Reset()
	if err := extract(context.Background(), &out, cfg, "parcels"); err != nil {
		t.Fatalf("extract() error = %v", err)
	}

	runID := strings.TrimPrefix(outputLines(&out)[len(outputLines(&out))-1], "Run ID: ")
	if !strings.Contains(out.String(), "Run "+runID+": parcels -> output_layer_") {
		t.Errorf("progress output does not mention run %s:\n%s", runID, out.String())
	}
}

func TestResolveInput(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "positional", args: []string{"parcels"}, want: "parcels"},
		{name: "flag", flags: []string{"--input", "list"}, want: "list"},
		{name: "short flag", flags: []string{"-i", "version"}, want: "version"},
		{name: "neither", want: ""},
		{name: "both", flags: []string{"--input", "list"}, args: []string{"parcels"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			if err := cmd.ParseFlags(tt.flags); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}

			got, err := resolveInput(cmd, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveInput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveInput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInputFlagIsNotASubcommand(t *testing.T) {
	cmd := newRootCmd()

	found, _, err := cmd.Find([]string{"--input", "list"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if found != cmd {
		t.Errorf("--input list dispatched to %q, want the root command", found.Name())
	}
}
