// Package fragexec is a small execution context for fragcache hosts: a
// request carrying the memo state, the renew flag and the final result, and
// per-field views bound to a tree path.
package fragexec

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/goforj/fragcache"
)

// Request is the execution state of one query. It implements
// fragcache.ExecutionContext at the root path.
type Request struct {
	id    string
	op    *Operation
	renew bool
	state *fragcache.RequestState

	mu     sync.RWMutex
	result map[string]any
}

// RequestOption mutates a Request before execution starts.
type RequestOption func(*Request)

// WithRenew forces every cached field of the request to recompute.
func WithRenew() RequestOption {
	return func(r *Request) { r.renew = true }
}

// WithRequestID overrides the generated request id.
func WithRequestID(id string) RequestOption {
	return func(r *Request) { r.id = id }
}

// NewRequest starts a request for op with a fresh memo table.
func NewRequest(op *Operation, opts ...RequestOption) *Request {
	r := &Request{
		id:    uuid.NewString(),
		op:    op,
		state: fragcache.NewRequestState(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Request) RequestID() string              { return r.id }
func (r *Request) Path() fragcache.Path           { return nil }
func (r *Request) State() *fragcache.RequestState { return r.state }
func (r *Request) Renew() bool                    { return r.renew }

func (r *Request) Query() fragcache.Query {
	if r.op == nil {
		return nil
	}
	return r.op
}

// Result returns the final data tree, nil until Complete is called.
func (r *Request) Result() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Complete records the final data tree of the request.
func (r *Request) Complete(result map[string]any) {
	r.mu.Lock()
	r.result = result
	r.mu.Unlock()
}

// At returns the execution context of the field at path.
func (r *Request) At(path fragcache.Path) *Field {
	return &Field{req: r, path: path}
}

// Resolve resolves the field at path through the cache.
func (r *Request) Resolve(ctx context.Context, c *fragcache.Cache, path fragcache.Path, opts fragcache.Options, fn func(context.Context, *Field) (any, error)) (any, error) {
	field := r.At(path)
	return c.Resolve(ctx, field, opts, func(ctx context.Context) (any, error) {
		return fn(ctx, field)
	})
}

// Finish completes the request with result and persists pending fragments.
func (r *Request) Finish(ctx context.Context, c *fragcache.Cache, result map[string]any) error {
	r.Complete(result)
	return c.Finish(ctx, r)
}

// Field is the execution context of one field resolution.
type Field struct {
	req  *Request
	path fragcache.Path
}

func (f *Field) Path() fragcache.Path           { return f.path }
func (f *Field) Query() fragcache.Query         { return f.req.Query() }
func (f *Field) Result() map[string]any         { return f.req.Result() }
func (f *Field) State() *fragcache.RequestState { return f.req.state }
func (f *Field) Renew() bool                    { return f.req.renew }
func (f *Field) RequestID() string              { return f.req.id }

// Request returns the request the field belongs to.
func (f *Field) Request() *Request { return f.req }
