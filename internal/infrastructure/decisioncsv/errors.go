package decisioncsv

import "errors"

// Common parsing errors
var (
	// ErrEmptyFile is returned when the decision file is empty
	ErrEmptyFile = errors.New("decision file is empty")

	// ErrInvalidEncoding is returned when the file is not valid UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrMissingHeader is returned when the file has no header row
	ErrMissingHeader = errors.New("decision file missing header row")
)
