package remote

import "fmt"

// genericFailure is the fallback message when an error body cannot be parsed.
const genericFailure = "request failed"

// RequestError reports a non-success response from the pilot service.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("remote request failed (status %d): %s", e.StatusCode, e.Message)
}

// ValidationError reports client-side precondition failures: a missing
// session ID before an action, or a plan execution record that violates its
// own invariants. It is surfaced distinctly from RequestError so callers can
// tell a broken contract from an ordinary remote failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// errorBody is the shape the service uses for error responses. Any of the
// three fields may be present; extraction priority is detail, error, message.
type errorBody struct {
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// extractMessage pulls the most specific message out of a raw error body,
// falling back to a fixed generic message when the body is not JSON or
// carries none of the known fields. It never fails.
func extractMessage(raw []byte) string {
	var body errorBody
	if err := jsonAPI.Unmarshal(raw, &body); err != nil {
		return genericFailure
	}
	switch {
	case body.Detail != "":
		return body.Detail
	case body.Error != "":
		return body.Error
	case body.Message != "":
		return body.Message
	}
	return genericFailure
}
