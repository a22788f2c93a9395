package fragcache

// Query is the originating query of a request. SelectionKey returns a stable
// representation of the selection shape beneath path; two queries selecting
// different sub-fields at the same path must return different keys.
type Query interface {
	SelectionKey(path Path) string
}

// ExecutionContext is the view of one request's execution a Fragment needs.
type ExecutionContext interface {
	// Path is the position of the field currently being resolved.
	Path() Path
	Query() Query
	// Result is the final data tree; nil until execution completes.
	Result() map[string]any
	State() *RequestState
	// Renew forces every read in the request to miss.
	Renew() bool
}

// RequestIDer is implemented by execution contexts that carry a request id
// for log correlation.
type RequestIDer interface {
	RequestID() string
}

func requestID(exec ExecutionContext) string {
	if r, ok := exec.(RequestIDer); ok {
		return r.RequestID()
	}
	return ""
}
