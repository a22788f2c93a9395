package fragcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type testQuery map[string]string

func (q testQuery) SelectionKey(path Path) string { return q[path.String()] }

// testExec is a minimal ExecutionContext for one field of one request.
type testExec struct {
	path   Path
	query  Query
	state  *RequestState
	renew  bool
	mu     *sync.Mutex
	result *map[string]any
}

func newTestExec(path ...any) *testExec {
	var result map[string]any
	return &testExec{
		path:   MustPath(path...),
		query:  testQuery{},
		state:  NewRequestState(),
		mu:     &sync.Mutex{},
		result: &result,
	}
}

// at returns a sibling field sharing the request state and result.
func (e *testExec) at(path ...any) *testExec {
	cp := *e
	cp.path = MustPath(path...)
	return &cp
}

func (e *testExec) complete(result map[string]any) {
	e.mu.Lock()
	*e.result = result
	e.mu.Unlock()
}

func (e *testExec) Path() Path           { return e.path }
func (e *testExec) Query() Query         { return e.query }
func (e *testExec) State() *RequestState { return e.state }
func (e *testExec) Renew() bool          { return e.renew }
func (e *testExec) RequestID() string    { return "req-1" }

func (e *testExec) Result() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.result
}

// spyStore counts reads and writes on top of a memory store and can be told
// to fail or block reads.
type spyStore struct {
	Store
	gets    atomic.Int64
	sets    atomic.Int64
	getErr  error
	getGate chan struct{}
}

func newSpyStore() *spyStore {
	return &spyStore{Store: newMemoryStore(0, 0)}
}

func (s *spyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.gets.Add(1)
	if s.getGate != nil {
		<-s.getGate
	}
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *spyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.sets.Add(1)
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *spyStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return s.Store.(KeyLister).KeysWithPrefix(ctx, prefix)
}
