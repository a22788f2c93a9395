package fragcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// RequestState is the per-request memo table and pending-write list. It is
// safe for concurrent use by the resolutions of one request and must never
// be shared across requests.
type RequestState struct {
	mu      sync.Mutex
	loaded  map[string]Result
	pending []*Fragment
	group   singleflight.Group
}

// NewRequestState returns an empty request state.
func NewRequestState() *RequestState {
	return &RequestState{loaded: make(map[string]Result)}
}

// Loaded returns the memoized result for key.
func (s *RequestState) Loaded(key string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.loaded[key]
	return r, ok
}

// Forget drops the memoized result for key.
func (s *RequestState) Forget(key string) {
	s.mu.Lock()
	delete(s.loaded, key)
	s.mu.Unlock()
}

// Pending reports how many fragments are waiting to be written.
func (s *RequestState) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *RequestState) remember(key string, r Result) {
	s.mu.Lock()
	s.loaded[key] = r
	s.mu.Unlock()
}

// load returns the memoized result for key or runs fn once, collapsing
// concurrent callers. Errors are returned to every waiter but not memoized.
func (s *RequestState) load(key string, fn func() (Result, error)) (Result, error) {
	if r, ok := s.Loaded(key); ok {
		return r, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		if r, ok := s.Loaded(key); ok {
			return r, nil
		}
		r, err := fn()
		if err != nil {
			return nil, err
		}
		s.remember(key, r)
		return r, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *RequestState) addPending(f *Fragment) {
	s.mu.Lock()
	s.pending = append(s.pending, f)
	s.mu.Unlock()
}

func (s *RequestState) takePending() []*Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}
