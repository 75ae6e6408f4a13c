// Package interrupt implements cooperative cancellation keyed by root plan id.
package interrupt

import (
	"sync"

	"github.com/rohanthewiz/logger"
)

// Service tracks an interruption flag per root plan.
// Cancellation is cooperative: executors and agents poll CheckAndContinue at
// their suspension points; work already in flight runs to completion.
type Service struct {
	mu     sync.RWMutex
	flags  map[string]bool
	active map[string]bool
}

// NewService creates an interruption service
func NewService() *Service {
	return &Service{
		flags:  make(map[string]bool),
		active: make(map[string]bool),
	}
}

// MarkActive registers a root plan as running so shutdown can reach it
func (s *Service) MarkActive(rootPlanID string) {
	if rootPlanID == "" {
		return
	}
	s.mu.Lock()
	s.active[rootPlanID] = true
	s.mu.Unlock()
}

// MarkDone removes a root plan from the active set
func (s *Service) MarkDone(rootPlanID string) {
	s.mu.Lock()
	delete(s.active, rootPlanID)
	s.mu.Unlock()
}

// InterruptAll flags every active root plan. Used during graceful shutdown.
func (s *Service) InterruptAll() {
	s.mu.Lock()
	count := 0
	for id := range s.active {
		s.flags[id] = true
		count++
	}
	s.mu.Unlock()
	if count > 0 {
		logger.Info("Interrupted all active plans for shutdown", "count", count)
	}
}

// Interrupt sets the interruption flag for a root plan
func (s *Service) Interrupt(rootPlanID string) {
	if rootPlanID == "" {
		return
	}
	s.mu.Lock()
	s.flags[rootPlanID] = true
	s.mu.Unlock()
	logger.Info("Interruption requested", "root_plan_id", rootPlanID)
}

// Resume clears the interruption flag so execution may continue
func (s *Service) Resume(rootPlanID string) {
	s.mu.Lock()
	delete(s.flags, rootPlanID)
	s.mu.Unlock()
}

// CheckAndContinue returns true when execution should continue, false when
// the root plan has been interrupted
func (s *Service) CheckAndContinue(rootPlanID string) bool {
	if rootPlanID == "" {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.flags[rootPlanID]
}

// Clear removes all state for a finished root plan
func (s *Service) Clear(rootPlanID string) {
	s.Resume(rootPlanID)
	s.MarkDone(rootPlanID)
}
