package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
)

// sliceLayer is a layer over an in-memory list of features.
type sliceLayer struct {
	workspace.LayerState
	features  []workspace.Feature
	cursorErr error
}

func (l *sliceLayer) SearchCursor(ctx context.Context, where string) (workspace.Cursor, error) {
	if l.cursorErr != nil {
		return nil, l.cursorErr
	}
	return workspace.FilterSelection(workspace.NewSliceCursor(l.features), l.Selection()), nil
}

func (l *sliceLayer) SelectByAttribute(ctx context.Context, mode workspace.SelectionMode, where string) (int, error) {
	return 0, errors.New("not supported")
}

func newLayer(features ...workspace.Feature) *sliceLayer {
	return &sliceLayer{LayerState: workspace.NewLayerState("temp_layer", "input"), features: features}
}

func TestScan(t *testing.T) {
	twoPolygons := orb.MultiPolygon{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
	}

	tests := []struct {
		name      string
		features  []workspace.Feature
		wantIDs   []int64
		wantRows  int
		wantNulls int
	}{
		{
			name:     "empty layer",
			features: nil,
			wantIDs:  nil,
			wantRows: 0,
		},
		{
			name: "no multipart features",
			features: []workspace.Feature{
				{OID: 1, Shape: orb.Point{0, 0}},
				{OID: 2, Shape: orb.MultiPolygon{twoPolygons[0]}},
			},
			wantIDs:  nil,
			wantRows: 2,
		},
		{
			name: "multipart features in scan order",
			features: []workspace.Feature{
				{OID: 7, Shape: orb.MultiPoint{{0, 0}, {1, 1}}},
				{OID: 3, Shape: orb.Point{0, 0}},
				{OID: 5, Shape: twoPolygons},
			},
			wantIDs:  []int64{7, 5},
			wantRows: 3,
		},
		{
			name: "null shapes are never selected",
			features: []workspace.Feature{
				{OID: 1, Shape: nil, Properties: map[string]any{"multipart": true}},
				{OID: 2, Shape: twoPolygons},
				{OID: 3, Shape: nil},
			},
			wantIDs:   []int64{2},
			wantRows:  3,
			wantNulls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Scan(context.Background(), newLayer(tt.features...))
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantIDs, got.IDs); diff != "" {
				t.Errorf("Scan() IDs mismatch (-want +got):\n%s", diff)
			}
			if got.Rows != tt.wantRows {
				t.Errorf("Scan() Rows = %d, want %d", got.Rows, tt.wantRows)
			}
			if got.NullShapes != tt.wantNulls {
				t.Errorf("Scan() NullShapes = %d, want %d", got.NullShapes, tt.wantNulls)
			}
		})
	}
}

func TestScanHonorsSelection(t *testing.T) {
	l := newLayer(
		workspace.Feature{OID: 1, Shape: orb.MultiPoint{{0, 0}, {1, 1}}},
		workspace.Feature{OID: 2, Shape: orb.MultiPoint{{0, 0}, {1, 1}}},
	)
	l.SelectNone()

	got, err := Scan(context.Background(), l)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got.Rows != 0 || len(got.IDs) != 0 {
		t.Errorf("Scan() over an empty selection = %+v", got)
	}
}

func TestScanCursorError(t *testing.T) {
	boom := errors.New("boom")
	l := newLayer()
	l.cursorErr = boom

	if _, err := Scan(context.Background(), l); !errors.Is(err, boom) {
		t.Errorf("Scan() error = %v, want %v", err, boom)
	}
}

func TestWhereIn(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		want string
	}{
		{name: "empty", ids: nil, want: ""},
		{name: "single", ids: []int64{42}, want: "OBJECTID IN (42)"},
		{name: "keeps order", ids: []int64{9, 2, 31}, want: "OBJECTID IN (9,2,31)"},
		{name: "no dedup", ids: []int64{1, 1}, want: "OBJECTID IN (1,1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WhereIn(workspace.FieldOID, tt.ids); got != tt.want {
				t.Errorf("WhereIn() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseObjectIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int64
		wantErr bool
	}{
		{name: "single", input: "5", want: []int64{5}},
		{name: "list with spaces", input: "1, 2 ,3", want: []int64{1, 2, 3}},
		{name: "empty entries skipped", input: "1,,2,", want: []int64{1, 2}},
		{name: "empty string", input: "", want: []int64{}},
		{name: "not a number", input: "1,abc", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObjectIDs(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseObjectIDs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseObjectIDs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
