package llm

import "fmt"

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	// KindTransport covers connection-level failures before a response arrived.
	KindTransport ErrorKind = "transport"
	// KindTimeout covers calls that exceeded the configured call timeout.
	KindTimeout ErrorKind = "timeout"
	// KindAPI covers errors reported by the model API itself.
	KindAPI ErrorKind = "api"
)

// UpstreamError represents a failure of a single model API call. It is never
// retried automatically; the pipeline coordinator decides what to do with it.
type UpstreamError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream %s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}
