package syncer

import (
	"sync"
	"time"

	"jobsift/pkg/models"
)

// state guards the run snapshot. Every read hands out a deep copy so HTTP
// handlers never observe a half-updated run.
type state struct {
	mu     sync.Mutex
	status models.RunStatus
}

func newState() *state {
	return &state{
		status: models.RunStatus{Errors: []string{}},
	}
}

// begin atomically claims the run slot. It returns the fresh snapshot and
// true on success, or the in-flight snapshot and false when a run is active.
func (s *state) begin() (models.RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Running {
		return copyStatus(s.status), false
	}

	now := time.Now()
	s.status = models.RunStatus{
		Running:   true,
		StartedAt: &now,
		Errors:    []string{},
	}
	return copyStatus(s.status), true
}

// finish releases the run slot and stamps the finish time, returning the
// final snapshot.
func (s *state) finish() models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.status.Running = false
	s.status.FinishedAt = &now
	return copyStatus(s.status)
}

func (s *state) snapshot() models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyStatus(s.status)
}

func (s *state) mutate(fn func(*models.RunStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *state) addError(msg string) {
	s.mutate(func(st *models.RunStatus) {
		st.Errors = append(st.Errors, msg)
	})
}

func copyStatus(st models.RunStatus) models.RunStatus {
	out := st
	out.Errors = append([]string{}, st.Errors...)
	if st.StartedAt != nil {
		t := *st.StartedAt
		out.StartedAt = &t
	}
	if st.FinishedAt != nil {
		t := *st.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
