package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/media"
	"ytdlp-telegram-bot/internal/progress"
	"ytdlp-telegram-bot/internal/relay"
	"ytdlp-telegram-bot/internal/supervisor"
	"ytdlp-telegram-bot/internal/transcode"
)

// ErrArtifactNotFound is returned when a requested library video is missing.
var ErrArtifactNotFound = errors.New("artifact not found")

// PhaseError describes the job phase and command that failed.
type PhaseError struct {
	Phase    domain.JobPhase
	Command  string
	ExitCode int
	Err      error
}

func (e *PhaseError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s failed (command=%q, exit=%d): %v", e.Phase, e.Command, e.ExitCode, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// VideoSender uploads a finished artifact to a chat.
type VideoSender interface {
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
}

// Request is one user request handled by the orchestrator.
type Request struct {
	ChatID           int64
	RequestMessageID int
	// URL is the source passed to the downloader.
	URL string
	// VideoID identifies the source in the library and names the transcode output.
	VideoID string
	// Transcode asks for transcode-and-send after a successful download.
	Transcode bool
}

// Config wires the orchestrator dependencies.
type Config struct {
	Settings   domain.Settings
	Launcher   supervisor.Launcher
	Runner     supervisor.Runner
	Relay      *relay.Relay
	Transcoder *transcode.Transcoder
	Library    *media.Library
	Sender     VideoSender
	Events     *EventBus
	Logger     logrus.FieldLogger
}

// Orchestrator sequences download, transcode and delivery for chat requests.
type Orchestrator struct {
	settings   domain.Settings
	launcher   supervisor.Launcher
	runner     supervisor.Runner
	relay      *relay.Relay
	transcoder *transcode.Transcoder
	library    *media.Library
	sender     VideoSender
	events     *EventBus
	log        logrus.FieldLogger
	newID      func() string
	glob       func(pattern string) ([]string, error)
	stat       func(name string) (os.FileInfo, error)
}

// NewOrchestrator builds an orchestrator from cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	events := cfg.Events
	if events == nil {
		events = NewEventBus(0)
	}
	return &Orchestrator{
		settings:   cfg.Settings,
		launcher:   cfg.Launcher,
		runner:     cfg.Runner,
		relay:      cfg.Relay,
		transcoder: cfg.Transcoder,
		library:    cfg.Library,
		sender:     cfg.Sender,
		events:     events,
		log:        log,
		newID:      newJobID,
		glob:       filepath.Glob,
		stat:       os.Stat,
	}
}

// Events exposes the job event bus.
func (o *Orchestrator) Events() *EventBus {
	return o.events
}

// run holds the per-job state owned by the job goroutine.
type run struct {
	req     Request
	machine *Machine
	status  *relay.Status
	log     logrus.FieldLogger
}

// Download runs yt-dlp for req.URL and, when requested, transcodes and
// delivers the result. It blocks until the job reaches a terminal phase.
func (o *Orchestrator) Download(ctx context.Context, req Request) (domain.Job, error) {
	r, err := o.open(ctx, req, req.URL)
	if err != nil {
		return r.machine.Snapshot(), err
	}

	if err := o.transition(r, domain.JobPhaseDownloading, "download started"); err != nil {
		return r.machine.Snapshot(), err
	}
	r.status.Phase(func(percent int) string {
		return fmt.Sprintf("Download of %s started! %d%%", req.URL, percent)
	})

	cmd := supervisor.Command{
		Name:           o.settings.Tools.YtDlp,
		Args:           BuildDownloadArgs(req.URL),
		Dir:            o.settings.DataDir,
		ProgressStream: supervisor.Stdout,
	}
	terminal := o.supervise(ctx, r, cmd, progress.ParseDownload)

	if !terminal.Success() {
		text := fmt.Sprintf("Download of %s failed! (code: %d)", req.URL, terminal.ExitCode)
		if terminal.Kind == supervisor.EventErrored {
			text = fmt.Sprintf("Download of %s failed!", req.URL)
		}
		return o.fail(ctx, r, phaseError(domain.JobPhaseDownloading, cmd, terminal), text)
	}

	o.housekeeping(ctx, r.log)

	if !req.Transcode {
		if err := o.transition(r, domain.JobPhaseDone, "download finished"); err != nil {
			return r.machine.Snapshot(), err
		}
		o.finish(ctx, r, fmt.Sprintf("Download of %s finished!", req.URL), r.req.RequestMessageID)
		return r.machine.Snapshot(), nil
	}

	video, err := o.library.Find(req.VideoID)
	if err != nil {
		perr := &PhaseError{Phase: domain.JobPhaseDownloading, Err: fmt.Errorf("%w: %s: %v", ErrArtifactNotFound, req.VideoID, err)}
		return o.fail(ctx, r, perr, fmt.Sprintf("Video %s not found after download!", req.VideoID))
	}
	return o.transcodeAndSend(ctx, r, video)
}

// Send transcodes an already downloaded library video and delivers it.
func (o *Orchestrator) Send(ctx context.Context, req Request) (domain.Job, error) {
	r, err := o.open(ctx, req, req.VideoID)
	if err != nil {
		return r.machine.Snapshot(), err
	}

	video, err := o.library.Find(req.VideoID)
	if err != nil {
		perr := &PhaseError{Phase: domain.JobPhaseRequested, Err: fmt.Errorf("%w: %s: %v", ErrArtifactNotFound, req.VideoID, err)}
		return o.fail(ctx, r, perr, fmt.Sprintf("Video %s not found!", req.VideoID))
	}
	return o.transcodeAndSend(ctx, r, video)
}

func (o *Orchestrator) open(ctx context.Context, req Request, source string) (*run, error) {
	job := domain.Job{
		ID:               o.newID(),
		ChatID:           req.ChatID,
		RequestMessageID: req.RequestMessageID,
		Source:           source,
		WorkDir:          o.settings.DataDir,
	}
	r := &run{
		req:     req,
		machine: NewMachine(job),
		log: o.log.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"chat_id": req.ChatID,
		}),
	}

	o.publish(r, Event{Type: EventTypeStatus, Message: "job requested"})

	status, err := o.relay.Open(ctx, req.ChatID, fmt.Sprintf("Processing %s...", source))
	if err != nil {
		r.log.WithError(err).Error("send status message failed")
		_ = r.machine.Transition(domain.JobPhaseFailed)
		o.publish(r, Event{Type: EventTypeError, Message: err.Error()})
		return r, fmt.Errorf("open status message: %w", err)
	}
	r.status = status
	r.machine.AttachStatus(status.MessageID(), status.LastUpdate())
	return r, nil
}

func (o *Orchestrator) transcodeAndSend(ctx context.Context, r *run, video domain.VideoFile) (domain.Job, error) {
	if err := o.transition(r, domain.JobPhaseTranscoding, "transcoding "+video.Name); err != nil {
		return r.machine.Snapshot(), err
	}

	if artifact, ok := o.transcoder.Existing(video.ID); ok {
		r.log.WithField("path", artifact.Path).Info("transcoded file already exists, skipping transcoding")
		return o.complete(ctx, r, video, artifact)
	}

	frames, err := o.transcoder.Probe(ctx, video.Path)
	if err != nil {
		r.log.WithError(err).Warn("frame count unavailable, transcoding without progress")
	}

	cmd, artifact, err := o.transcoder.Command(video.Path, video.ID)
	if err != nil {
		perr := &PhaseError{Phase: domain.JobPhaseTranscoding, Err: err}
		return o.fail(ctx, r, perr, fmt.Sprintf("Transcoding of %s failed!", video.Name))
	}

	r.status.Phase(func(percent int) string {
		return fmt.Sprintf("Transcoding %s... %d%%", video.Name, percent)
	})
	parser := progress.FrameParser{TotalFrames: frames}
	terminal := o.supervise(ctx, r, cmd, parser.Parse)

	if !terminal.Success() {
		o.transcoder.Discard(artifact)
		text := fmt.Sprintf("Transcoding of %s failed! (code: %d)", video.Name, terminal.ExitCode)
		if terminal.Kind == supervisor.EventErrored {
			text = fmt.Sprintf("Transcoding of %s failed!", video.Name)
		}
		return o.fail(ctx, r, phaseError(domain.JobPhaseTranscoding, cmd, terminal), text)
	}
	return o.complete(ctx, r, video, artifact)
}

func (o *Orchestrator) complete(ctx context.Context, r *run, video domain.VideoFile, artifact transcode.Artifact) (domain.Job, error) {
	if err := o.transition(r, domain.JobPhaseDone, "transcoding done"); err != nil {
		return r.machine.Snapshot(), err
	}
	o.publish(r, Event{Type: EventTypeResult, Message: video.Name, Path: artifact.Path})
	o.finish(ctx, r, fmt.Sprintf("Transcoding of %s done: %s", video.Name, artifact.Path), r.req.RequestMessageID)
	o.deliver(ctx, r, video, &artifact)
	return r.machine.Snapshot(), nil
}

// deliver uploads the artifact. Failures are reported but leave the job done.
func (o *Orchestrator) deliver(ctx context.Context, r *run, video domain.VideoFile, artifact *transcode.Artifact) {
	if o.sender == nil {
		return
	}

	if err := o.sender.SendVideo(ctx, r.req.ChatID, artifact.Path, video.Name); err != nil {
		r.log.WithError(err).WithField("path", artifact.Path).Error("send video failed")
		o.publish(r, Event{Type: EventTypeError, Message: "send video failed: " + err.Error(), Path: artifact.Path})
		if rerr := o.relay.ReplyAndDelete(ctx, r.req.ChatID, 0, fmt.Sprintf("Sending of %s failed!", video.Name)); rerr != nil {
			r.log.WithError(rerr).Warn("send failure notice failed")
		}
		return
	}

	if err := artifact.Cleanup(); err != nil {
		r.log.WithError(err).WithField("path", artifact.Path).Warn("remove transcoded file failed")
	}
}

// supervise launches cmd and relays parsed samples until the terminal event.
func (o *Orchestrator) supervise(ctx context.Context, r *run, cmd supervisor.Command, parse func(string) (domain.ProgressSample, bool)) supervisor.Event {
	r.log.WithField("command", cmd.String()).Info("launching command")
	o.publish(r, Event{Type: EventTypeLog, Command: cmd.String()})

	terminal := supervisor.Event{Kind: supervisor.EventErrored, Err: errors.New("process ended without terminal event")}
	for ev := range o.launcher.Launch(ctx, cmd).Events() {
		if ev.IsTerminal() {
			terminal = ev
			continue
		}
		sample, ok := parse(ev.Chunk)
		if !ok {
			continue
		}
		if r.status.Progress(ctx, sample.Percent) {
			r.machine.Progress(sample.Percent, r.status.LastUpdate())
		}
	}

	fields := logrus.Fields{"command": cmd.Name, "exit_code": terminal.ExitCode}
	if terminal.Success() {
		r.log.WithFields(fields).Info("command completed")
	} else {
		r.log.WithFields(fields).WithError(terminal.Err).Error("command failed")
	}
	return terminal
}

func (o *Orchestrator) fail(ctx context.Context, r *run, perr *PhaseError, text string) (domain.Job, error) {
	if err := r.machine.Transition(domain.JobPhaseFailed); err != nil {
		r.log.WithError(err).Warn("failed transition rejected")
	}
	o.publish(r, Event{
		Type:     EventTypeError,
		Message:  perr.Error(),
		Command:  perr.Command,
		ExitCode: perr.ExitCode,
	})
	o.finish(ctx, r, text, r.req.RequestMessageID)
	return r.machine.Snapshot(), perr
}

func (o *Orchestrator) finish(ctx context.Context, r *run, text string, transient ...int) {
	if err := r.status.Finish(ctx, text, transient...); err != nil {
		r.log.WithError(err).Warn("send terminal message failed")
	}
}

func (o *Orchestrator) transition(r *run, phase domain.JobPhase, message string) error {
	if err := r.machine.Transition(phase); err != nil {
		r.log.WithError(err).Error("job transition rejected")
		return err
	}
	o.publish(r, Event{Type: EventTypeStatus, Message: message})
	return nil
}

func (o *Orchestrator) publish(r *run, ev Event) {
	job := r.machine.Snapshot()
	ev.JobID = job.ID
	ev.ChatID = job.ChatID
	ev.Phase = job.Phase
	ev.Source = job.Source
	o.events.Publish(ev)
}

// housekeeping converts webp posters to jpg and applies the configured mode.
func (o *Orchestrator) housekeeping(ctx context.Context, log logrus.FieldLogger) {
	dir := o.settings.DataDir
	posters, err := o.glob(filepath.Join(dir, "*.webp"))
	if err != nil {
		log.WithError(err).Warn("list posters failed")
	}
	for _, poster := range posters {
		jpg := strings.TrimSuffix(poster, ".webp") + ".jpg"
		if _, err := o.stat(jpg); err == nil {
			continue
		}
		if result, err := o.runner.Run(ctx, o.settings.Tools.Convert, poster, jpg); err != nil {
			log.WithFields(logrus.Fields{
				"command":   o.settings.Tools.Convert,
				"exit_code": result.ExitCode,
				"poster":    poster,
			}).WithError(err).Warn("convert poster failed")
		}
	}

	if o.settings.ChmodMode == "" {
		return
	}
	if result, err := o.runner.Run(ctx, "chmod", "-R", o.settings.ChmodMode, dir); err != nil {
		log.WithFields(logrus.Fields{
			"command":   "chmod",
			"exit_code": result.ExitCode,
		}).WithError(err).Warn("chmod data directory failed")
	}
}

// BuildDownloadArgs returns the yt-dlp arguments for url.
func BuildDownloadArgs(url string) []string {
	return []string{
		"--newline",
		"--progress-template", progress.DownloadTemplate,
		"--merge-output-format", "mkv",
		"--write-info-json",
		"--add-metadata",
		"--write-thumbnail",
		"-o", "thumbnail:%(title)s [%(id)s]-poster.%(ext)s",
		url,
	}
}

func phaseError(phase domain.JobPhase, cmd supervisor.Command, terminal supervisor.Event) *PhaseError {
	err := terminal.Err
	if err == nil {
		err = fmt.Errorf("exit code %d", terminal.ExitCode)
	}
	return &PhaseError{
		Phase:    phase,
		Command:  cmd.String(),
		ExitCode: terminal.ExitCode,
		Err:      err,
	}
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
