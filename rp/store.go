package rp

import (
	"sync"
)

// RequestStore tracks pending authorization requests keyed by state and
// hands each one out at most once. Taking a request removes it, so a second
// callback carrying the same state fails with ErrStateMismatch no matter
// whether the first attempt succeeded.
type RequestStore struct {
	mu       sync.Mutex
	requests map[string]*Request
}

// NewRequestStore creates an empty request store
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string]*Request),
	}
}

// Add registers a pending request. Expired entries are pruned on the way in
// so abandoned login attempts cannot accumulate.
func (s *RequestStore) Add(req *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for state, pending := range s.requests {
		if pending.Expired() {
			delete(s.requests, state)
		}
	}
	s.requests[req.State] = req
}

// Take removes and returns the pending request for the given state.
// Returns ErrStateMismatch for an unknown state and ErrExpiredRequest for a
// request that outlived its TTL; in both cases the entry is gone afterwards.
func (s *RequestStore) Take(state string) (*Request, error) {
	if state == "" {
		return nil, ErrStateMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[state]
	if !ok {
		return nil, ErrStateMismatch
	}
	delete(s.requests, state)

	if req.Expired() {
		return nil, ErrExpiredRequest
	}
	return req, nil
}

// Len reports the number of pending requests
func (s *RequestStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
