package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ytdlp-telegram-bot/internal/domain"
)

// ErrInvalidTransition is returned for edges the job state machine forbids.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrJobFinished is returned when a terminal job receives another transition.
var ErrJobFinished = errors.New("job already finished")

// Machine tracks one job's phase and enforces allowed transitions.
type Machine struct {
	mu  sync.RWMutex
	job domain.Job
}

// NewMachine creates a machine for job in requested phase.
func NewMachine(job domain.Job) *Machine {
	job.Phase = domain.JobPhaseRequested
	return &Machine{job: job}
}

// Transition validates and applies a phase change.
func (m *Machine) Transition(phase domain.JobPhase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Phase.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrJobFinished, m.job.Phase)
	}
	if !isValidTransition(m.job.Phase, phase) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.job.Phase, phase)
	}

	m.job.Phase = phase
	if phase != domain.JobPhaseDone {
		m.job.Percent = 0
	} else {
		m.job.Percent = 100
	}
	return nil
}

// Progress records the last displayed percentage and status timestamp.
func (m *Machine) Progress(percent int, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Phase.IsTerminal() {
		return
	}
	m.job.Percent = percent
	m.job.LastStatusAt = at
}

// AttachStatus binds the status message that reports on this job.
func (m *Machine) AttachStatus(messageID int, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.job.StatusMessageID = messageID
	m.job.LastStatusAt = at
}

// Snapshot returns a copy of the job.
func (m *Machine) Snapshot() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.job
}

// Phase returns the current phase.
func (m *Machine) Phase() domain.JobPhase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.job.Phase
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobPhase) bool {
	switch from {
	case domain.JobPhaseRequested:
		return to == domain.JobPhaseDownloading || to == domain.JobPhaseTranscoding || to == domain.JobPhaseFailed
	case domain.JobPhaseDownloading:
		return to == domain.JobPhaseTranscoding || to == domain.JobPhaseDone || to == domain.JobPhaseFailed
	case domain.JobPhaseTranscoding:
		return to == domain.JobPhaseDone || to == domain.JobPhaseFailed
	default:
		return false
	}
}
