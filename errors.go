package multipartextractor

import (
	"errors"
	"fmt"

	"github.com/hellenic-development/multipart-extractor/pkg/workspace"
)

// NoFeatureLayerMessage is the detail of a ParameterMissingError.
const NoFeatureLayerMessage = "No feature layer provided. Please ensure the parameter is correctly set."

// ParameterMissingError reports that the required input layer was not given.
type ParameterMissingError struct {
	Parameter string
}

func (e *ParameterMissingError) Error() string {
	return NoFeatureLayerMessage
}

// UnexpectedError wraps any failure that is neither a missing parameter nor
// a geoprocessing error, including recovered panics.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return e.Err.Error()
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Kind is the closed set of failure categories a run can end with.
type Kind int

const (
	KindUnexpected Kind = iota
	KindParameterMissing
	KindGeoprocessing
)

func (k Kind) String() string {
	switch k {
	case KindParameterMissing:
		return "parameter missing"
	case KindGeoprocessing:
		return "geoprocessing"
	default:
		return "unexpected"
	}
}

// Category is the console line printed before the error detail.
func (k Kind) Category() string {
	switch k {
	case KindParameterMissing:
		return "Value error occurred:"
	case KindGeoprocessing:
		return "Geoprocessing error occurred:"
	default:
		return "An error occurred:"
	}
}

// LogPrefix is the label that starts the error log entry.
func (k Kind) LogPrefix() string {
	switch k {
	case KindParameterMissing:
		return "Value error"
	case KindGeoprocessing:
		return "Geoprocessing error"
	default:
		return "General error"
	}
}

// KindOf classifies err. A missing parameter takes precedence over a
// geoprocessing failure; anything else is unexpected.
func KindOf(err error) Kind {
	var paramErr *ParameterMissingError
	if errors.As(err, &paramErr) {
		return KindParameterMissing
	}

	var gpErr *workspace.GeoprocessingError
	if errors.As(err, &gpErr) {
		return KindGeoprocessing
	}

	return KindUnexpected
}

// LogMessage renders err as an error log entry, e.g.
// "Value error: No feature layer provided. Please ensure the parameter is correctly set."
func LogMessage(err error) string {
	return fmt.Sprintf("%s: %v", KindOf(err).LogPrefix(), err)
}

// classify makes sure an error leaving Run is one of the three variants.
func classify(err error) error {
	if err == nil || KindOf(err) != KindUnexpected {
		return err
	}

	var unexpected *UnexpectedError
	if errors.As(err, &unexpected) {
		return err
	}

	return &UnexpectedError{Err: err}
}
