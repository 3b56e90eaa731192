// Package supervisor owns the lifetime of external commands and exposes their
// output and termination as an ordered event stream.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Stream selects which process output carries progress.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// EventKind classifies supervisor events.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventErrored   EventKind = "errored"
)

// Event is one lifecycle notification from a supervised process.
type Event struct {
	Kind     EventKind
	Chunk    string
	ExitCode int
	Err      error
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventErrored
}

// Success reports a clean exit.
func (e Event) Success() bool {
	return e.Kind == EventCompleted && e.ExitCode == 0
}

// Command describes one external invocation.
type Command struct {
	Name           string
	Args           []string
	Dir            string
	ProgressStream Stream
}

// String renders the command for logs and messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// SpawnError reports a command that could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Handle is the caller's view of one launched process. Events yields progress
// chunks in emission order followed by exactly one terminal event, then closes.
type Handle interface {
	Events() <-chan Event
}

// Launcher starts supervised processes.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) Handle
}

// ExecLauncher launches processes via os/exec.
type ExecLauncher struct {
	log logrus.FieldLogger
}

// NewExecLauncher creates a launcher logging secondary output to log.
func NewExecLauncher(log logrus.FieldLogger) *ExecLauncher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ExecLauncher{log: log}
}

// Launch starts cmd asynchronously. Spawn failures are delivered as an
// errored event, never returned.
func (l *ExecLauncher) Launch(ctx context.Context, cmd Command) Handle {
	p := &process{events: make(chan Event, 16)}
	go p.run(ctx, cmd, l.log.WithField("command", cmd.Name))
	return p
}

type process struct {
	events chan Event
}

func (p *process) Events() <-chan Event {
	return p.events
}

func (p *process) run(ctx context.Context, c Command, log logrus.FieldLogger) {
	defer close(p.events)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.events <- Event{Kind: EventErrored, ExitCode: -1, Err: &SpawnError{Command: c.Name, Err: err}}
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.events <- Event{Kind: EventErrored, ExitCode: -1, Err: &SpawnError{Command: c.Name, Err: err}}
		return
	}

	log.WithField("dir", c.Dir).Infof("Executing command: %s", c)
	if err := cmd.Start(); err != nil {
		p.events <- Event{Kind: EventErrored, ExitCode: -1, Err: &SpawnError{Command: c.Name, Err: err}}
		return
	}

	progressOut, otherOut := io.Reader(stdout), io.Reader(stderr)
	if c.ProgressStream == Stderr {
		progressOut, otherOut = stderr, stdout
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(progressOut, func(line string) {
			p.events <- Event{Kind: EventProgress, Chunk: line}
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(otherOut, func(line string) {
			log.Debug(line)
		})
	}()
	// Pipes must be drained before Wait closes them.
	wg.Wait()

	err = cmd.Wait()
	if err == nil {
		log.Info("Process exited with code 0")
		p.events <- Event{Kind: EventCompleted}
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.WithField("exit_code", exitErr.ExitCode()).Warn("Process exited with nonzero code")
		p.events <- Event{Kind: EventCompleted, ExitCode: exitErr.ExitCode(), Err: err}
		return
	}

	log.WithError(err).Error("Process wait failed")
	p.events <- Event{Kind: EventErrored, ExitCode: -1, Err: err}
}

func scanLines(r io.Reader, fn func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}
	// Keep reading after an oversized line so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}
