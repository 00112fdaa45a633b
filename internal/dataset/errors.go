package dataset

import "fmt"

// SourceUnavailableError indicates the source could not be fetched (network or filesystem).
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e == nil {
		return "source unavailable"
	}
	if e.Source != "" {
		return fmt.Sprintf("source unavailable at %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source unavailable: %v", e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// DataFormatError indicates a cell or header that does not fit the schema.
// Row is 1-based and counts data rows only; zero means the header.
type DataFormatError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *DataFormatError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("data format: header: %v", e.Err)
	}
	return fmt.Sprintf("data format: row %d column %q value %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// MissingColumnError indicates a column required by a stage is absent.
type MissingColumnError struct {
	Column string
	Stage  string
}

func (e *MissingColumnError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("missing column %q required by %s", e.Column, e.Stage)
	}
	return fmt.Sprintf("missing column %q", e.Column)
}
