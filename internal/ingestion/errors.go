package ingestion

import "fmt"

// UnsupportedFormatError reports an upload with a file type the extractor
// cannot handle.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q: only .txt, .md, and .html files are supported", e.Extension)
}

// ValidationError reports a rejected upload or user prompt
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
