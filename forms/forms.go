// Package forms arbitrates user form input: one active form per root plan.
package forms

import (
	"sync"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"taskflow/tools"
)

// Store holds the active FormInputTool per root plan. Slots are exclusive:
// a second agent trying to present a form for the same root plan waits for
// the slot and fails fast on lock timeout.
type Store struct {
	mu          sync.Mutex
	slots       map[string]*tools.FormInputTool
	lockTimeout time.Duration
}

// NewStore creates a form store with the given slot-acquisition timeout
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Store{
		slots:       make(map[string]*tools.FormInputTool),
		lockTimeout: lockTimeout,
	}
}

// StoreExclusive claims the slot for a root plan. When another form already
// occupies it, the call polls until the slot frees or the lock timeout
// elapses. Returns an error on timeout.
func (s *Store) StoreExclusive(rootPlanID string, form *tools.FormInputTool) error {
	if rootPlanID == "" || form == nil {
		return serr.New("rootPlanID and form are required")
	}

	deadline := time.Now().Add(s.lockTimeout)
	for {
		s.mu.Lock()
		existing, occupied := s.slots[rootPlanID]
		if !occupied || existing == form {
			s.slots[rootPlanID] = form
			s.mu.Unlock()
			logger.Debug("Form slot acquired", "root_plan_id", rootPlanID)
			return nil
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return serr.New("form slot lock timeout", "root_plan_id", rootPlanID)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Get returns the active form for a root plan, nil when none is pending
func (s *Store) Get(rootPlanID string) *tools.FormInputTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[rootPlanID]
}

// Remove frees the slot for a root plan
func (s *Store) Remove(rootPlanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, rootPlanID)
}

// Submit delivers user values to the active form. Returns an error when no
// form is awaiting input for the root plan.
func (s *Store) Submit(rootPlanID string, values map[string]string) error {
	form := s.Get(rootPlanID)
	if form == nil {
		return serr.New("no form is awaiting input", "root_plan_id", rootPlanID)
	}
	if !form.SubmitInputs(values) {
		return serr.New("form is not in the awaiting state", "root_plan_id", rootPlanID)
	}
	logger.Info("Form input received", "root_plan_id", rootPlanID)
	return nil
}
