package server

import (
	"sync"

	"spai-hq/gatekeeper/pkg/pipeline"
)

// captureStore keeps the most recent capture per tab so diagnostics and
// the appeal surface can see what page a tab last reported.
type captureStore struct {
	mu   sync.RWMutex
	last map[int]pipeline.Capture
}

func newCaptureStore() *captureStore {
	return &captureStore{last: make(map[int]pipeline.Capture)}
}

func (s *captureStore) put(tabID int, c pipeline.Capture) {
	s.mu.Lock()
	s.last[tabID] = c
	s.mu.Unlock()
}

func (s *captureStore) get(tabID int) (pipeline.Capture, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.last[tabID]
	return c, ok
}
