package jobs

import (
	"errors"
	"testing"
	"time"

	"ytdlp-telegram-bot/internal/domain"
)

// TestMachineDownloadThenTranscode verifies the full happy path.
func TestMachineDownloadThenTranscode(t *testing.T) {
	m := NewMachine(domain.Job{ID: "job-1", Phase: domain.JobPhaseDone})
	if m.Phase() != domain.JobPhaseRequested {
		t.Fatalf("initial phase = %s, want requested", m.Phase())
	}

	for _, phase := range []domain.JobPhase{
		domain.JobPhaseDownloading,
		domain.JobPhaseTranscoding,
		domain.JobPhaseDone,
	} {
		if err := m.Transition(phase); err != nil {
			t.Fatalf("transition to %s: %v", phase, err)
		}
	}

	if got := m.Snapshot(); got.Phase != domain.JobPhaseDone || got.Percent != 100 {
		t.Fatalf("snapshot = %+v", got)
	}
}

// TestMachineRejectsInvalidTransitions checks state machine constraints.
func TestMachineRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []domain.JobPhase
		next domain.JobPhase
		want error
	}{
		{name: "requested to done", next: domain.JobPhaseDone, want: ErrInvalidTransition},
		{name: "transcoding back to downloading", path: []domain.JobPhase{domain.JobPhaseTranscoding}, next: domain.JobPhaseDownloading, want: ErrInvalidTransition},
		{name: "failed is terminal", path: []domain.JobPhase{domain.JobPhaseDownloading, domain.JobPhaseFailed}, next: domain.JobPhaseTranscoding, want: ErrJobFinished},
		{name: "done is terminal", path: []domain.JobPhase{domain.JobPhaseDownloading, domain.JobPhaseDone}, next: domain.JobPhaseFailed, want: ErrJobFinished},
	}

	for _, tc := range tests {
		m := NewMachine(domain.Job{ID: "job"})
		for _, phase := range tc.path {
			if err := m.Transition(phase); err != nil {
				t.Fatalf("%s: setup transition to %s: %v", tc.name, phase, err)
			}
		}
		if err := m.Transition(tc.next); !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

// TestMachineProgressIgnoredAfterTerminal verifies late samples are dropped.
func TestMachineProgressIgnoredAfterTerminal(t *testing.T) {
	m := NewMachine(domain.Job{ID: "job"})
	_ = m.Transition(domain.JobPhaseDownloading)

	at := time.Unix(100, 0)
	m.Progress(40, at)
	if got := m.Snapshot(); got.Percent != 40 || !got.LastStatusAt.Equal(at) {
		t.Fatalf("snapshot = %+v", got)
	}

	_ = m.Transition(domain.JobPhaseFailed)
	m.Progress(90, at.Add(time.Second))
	if got := m.Snapshot(); got.Percent != 0 {
		t.Fatalf("percent after failure = %d, want 0", got.Percent)
	}
}
