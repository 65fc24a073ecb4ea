package threads

import "fmt"

// UpstreamError is returned when the remote thread API rejects a call or cannot be reached.
// Body holds the raw response body so callers can surface it for diagnosis.
type UpstreamError struct {
	// Op names the step that failed, e.g. "create run".
	Op string

	// StatusCode is the HTTP status returned by the provider, or 0 on transport failure.
	StatusCode int

	// Body is the raw upstream response body.
	Body string

	// Err is the transport or decoding error, if any.
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("upstream %s returned %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Detail is the diagnostic text handed back to API callers.
func (e *UpstreamError) Detail() string {
	if e.Body != "" {
		return e.Body
	}
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("status %d", e.StatusCode)
}
