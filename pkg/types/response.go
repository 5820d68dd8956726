// Package types holds the wire envelopes every handler writes. Success and
// error bodies never share a shape: clients branch on the top-level key.
package types

// SuccessEnvelope wraps every 2xx body under "data".
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error body. Code is one of the published
// error codes; Details carries field-level context when the code allows it.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx body under "error".
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
