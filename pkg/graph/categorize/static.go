package categorize

import (
	"context"
	"sync"
)

// StaticClassifier answers every request with a fixed label or error. It is
// used offline and in tests, and records the requests it saw.
type StaticClassifier struct {
	Label string
	Err   error

	mu       sync.Mutex
	requests []Request
}

// Classify implements Classifier.
func (s *StaticClassifier) Classify(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	return s.Label, nil
}

// Requests returns a copy of every request received so far.
func (s *StaticClassifier) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
