package workspace

import (
	"errors"
	"fmt"
)

// GeoprocessingError reports a failure of a workspace tool: creating a layer,
// selecting, copying, or reaching the store at all.
type GeoprocessingError struct {
	Tool string // e.g. "MakeFeatureLayer"
	Err  error
}

func (e *GeoprocessingError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *GeoprocessingError) Unwrap() error {
	return e.Err
}

// Errorf returns a GeoprocessingError for tool with a formatted cause.
func Errorf(tool, format string, args ...any) error {
	return &GeoprocessingError{Tool: tool, Err: fmt.Errorf(format, args...)}
}

// Wrap attributes err to tool. Errors that already are geoprocessing errors
// are returned unchanged so the innermost tool name wins.
func Wrap(tool string, err error) error {
	if err == nil {
		return nil
	}

	var gpErr *GeoprocessingError
	if errors.As(err, &gpErr) {
		return err
	}

	return &GeoprocessingError{Tool: tool, Err: err}
}
