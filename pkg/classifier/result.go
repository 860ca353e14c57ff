// Package classifier talks to the external complaint classification service.
//
// The service is treated as untrusted: its response shape varies between model versions, so every
// call produces a Result that is either a Success (a defensively parsed payload) or a Failure
// (transport error, non-2xx status, unparseable body or an open circuit breaker).
package classifier

// Result is the outcome of one classifier call. It is implemented only by Success and Failure.
type Result interface {
	RawBody() string
	isResult()
}

// Label is a single predicted category label as the classifier named it.
type Label struct {
	Name       string
	Confidence *float64
}

// Success carries a parsed classifier payload. Confidences are normalised to [0,1];
// SeverityScore is passed through as reported.
type Success struct {
	ModelVersion      string
	OverallConfidence *float64
	SeverityScore     *float64
	Labels            []Label
	Raw               string
}

// Failure describes why no usable payload was obtained.
type Failure struct {
	Reason string
	Raw    string
	Err    error
}

// RawBody returns the response body as received.
func (s Success) RawBody() string { return s.Raw }

// RawBody returns the response body as received, when there was one.
func (f Failure) RawBody() string { return f.Raw }

func (Success) isResult() {}
func (Failure) isResult() {}

// Error implements error so a Failure can be logged or wrapped directly.
func (f Failure) Error() string {
	if f.Err != nil {
		return f.Reason + ": " + f.Err.Error()
	}
	return f.Reason
}

// Unwrap exposes the underlying cause.
func (f Failure) Unwrap() error { return f.Err }
