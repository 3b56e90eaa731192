package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/auth"
	"ytdlp-telegram-bot/internal/diagnostics"
	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/httpapi"
	"ytdlp-telegram-bot/internal/jobs"
	"ytdlp-telegram-bot/internal/media"
	"ytdlp-telegram-bot/internal/relay"
	"ytdlp-telegram-bot/internal/supervisor"
	"ytdlp-telegram-bot/internal/telegram"
	"ytdlp-telegram-bot/internal/transcode"
	"ytdlp-telegram-bot/internal/users"
)

// EventHistory is the number of job events kept for /status and /events.
const EventHistory = 1000

// App wires configuration, users, jobs and the chat transport.
type App struct {
	Settings    domain.Settings
	Diagnostics domain.DiagnosticReport

	log     logrus.FieldLogger
	chat    relay.Chat
	relay   *relay.Relay
	auth    *auth.Service
	store   users.Store
	library *media.Library
	jobs    jobRunner
	events  *jobs.EventBus
	checker *diagnostics.Checker
	poller  poller

	mu      sync.Mutex
	running sync.WaitGroup
}

// jobRunner isolates the job orchestrator behind an interface.
type jobRunner interface {
	Download(ctx context.Context, req jobs.Request) (domain.Job, error)
	Send(ctx context.Context, req jobs.Request) (domain.Job, error)
}

// poller receives chat messages until the context ends.
type poller interface {
	Poll(ctx context.Context, handle telegram.Handler) error
}

// Deps are the collaborators of an App. Nil fields get production defaults
// where one exists.
type Deps struct {
	Settings domain.Settings
	Logger   logrus.FieldLogger
	Chat     relay.Chat
	Sender   jobs.VideoSender
	Poller   poller
	Store    users.Store
	Launcher supervisor.Launcher
	Runner   supervisor.Runner
	Checker  *diagnostics.Checker
	Jobs     jobRunner
	// RelayOptions are appended after the settings-derived options.
	RelayOptions []relay.Option
}

// New connects to the Bot API and builds the application from settings.
func New(settings domain.Settings, log logrus.FieldLogger) (*App, error) {
	client, err := telegram.New(settings.BotToken, log)
	if err != nil {
		return nil, err
	}

	store, err := users.OpenFileStore(settings.UsersFile, log)
	if err != nil {
		return nil, fmt.Errorf("open users file: %w", err)
	}

	return Assemble(Deps{
		Settings: settings,
		Logger:   log,
		Chat:     client,
		Sender:   client,
		Poller:   client,
		Store:    store,
	}), nil
}

// Assemble builds an App from explicit dependencies.
func Assemble(deps Deps) *App {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	settings := deps.Settings

	store := deps.Store
	if store == nil {
		store = users.NewMemoryStore()
	}
	runner := deps.Runner
	if runner == nil {
		runner = &supervisor.ExecRunner{}
	}
	launcher := deps.Launcher
	if launcher == nil {
		launcher = supervisor.NewExecLauncher(log)
	}
	checker := deps.Checker
	if checker == nil {
		checker = diagnostics.NewChecker()
	}

	relayOpts := []relay.Option{relay.WithLogger(log)}
	if settings.ProgressInterval > 0 {
		relayOpts = append(relayOpts, relay.WithMinInterval(settings.ProgressInterval))
	}
	if settings.CleanupDelay > 0 {
		relayOpts = append(relayOpts, relay.WithCleanupDelay(settings.CleanupDelay))
	}
	relayOpts = append(relayOpts, deps.RelayOptions...)
	r := relay.New(deps.Chat, relayOpts...)

	library := media.NewLibrary(settings.DataDir)
	events := jobs.NewEventBus(EventHistory)

	runnerJobs := deps.Jobs
	if runnerJobs == nil {
		runnerJobs = jobs.NewOrchestrator(jobs.Config{
			Settings:   settings,
			Launcher:   launcher,
			Runner:     runner,
			Relay:      r,
			Transcoder: transcode.New(settings.Tools.FFmpeg, settings.Tools.FFprobe, settings.TempDir, runner),
			Library:    library,
			Sender:     deps.Sender,
			Events:     events,
			Logger:     log,
		})
	}

	return &App{
		Settings: settings,
		log:      log,
		chat:     deps.Chat,
		relay:    r,
		auth:     auth.NewService(store, auth.NewCodes(settings.JWTSecret, settings.TokenTTL), log),
		store:    store,
		library:  library,
		jobs:     runnerJobs,
		events:   events,
		checker:  checker,
		poller:   deps.Poller,
	}
}

// Events exposes the job event bus.
func (a *App) Events() *jobs.EventBus {
	return a.events
}

// RefreshDiagnostics reruns dependency checks and caches the report.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run(a.Settings)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

// Run polls for messages until ctx ends, then waits for running jobs.
func (a *App) Run(ctx context.Context) error {
	if a.poller == nil {
		return errors.New("no chat poller configured")
	}

	report := a.RefreshDiagnostics()
	for _, item := range report.Items {
		entry := a.log.WithFields(logrus.Fields{"check": item.ID, "status": item.Status})
		switch item.Status {
		case domain.DiagnosticStatusPass:
			entry.Debug(item.Message)
		case domain.DiagnosticStatusWarn:
			entry.Warn(item.Message)
		default:
			entry.WithField("hint", item.Hint).Error(item.Message)
		}
	}

	if watcher, ok := a.store.(interface{ Watch(context.Context) error }); ok {
		if err := watcher.Watch(ctx); err != nil {
			a.log.WithError(err).Warn("users file changes will only be seen on access")
		}
	}

	httpErr := make(chan error, 1)
	if a.Settings.HTTPAddr != "" {
		router := httpapi.NewRouter(httpapi.Deps{
			Diagnose: a.RefreshDiagnostics,
			Events:   a.events,
			Logger:   a.log,
		})
		go func() {
			httpErr <- httpapi.Serve(ctx, a.Settings.HTTPAddr, router, a.log)
		}()
	}

	err := a.poller.Poll(ctx, a.HandleMessage)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	a.log.Info("waiting for running jobs")
	a.running.Wait()

	if a.Settings.HTTPAddr != "" {
		select {
		case herr := <-httpErr:
			if herr != nil && err == nil {
				err = fmt.Errorf("http server: %w", herr)
			}
		case <-time.After(httpapi.ShutdownTimeout):
		}
	}
	return err
}

// startJob runs fn on its own goroutine; Run waits for it on shutdown.
// Jobs outlive the poll context so a shutdown lets them report their result.
func (a *App) startJob(ctx context.Context, kind string, fn func(ctx context.Context) (domain.Job, error)) {
	jobCtx := context.WithoutCancel(ctx)
	a.running.Add(1)
	go func() {
		defer a.running.Done()
		job, err := fn(jobCtx)
		entry := a.log.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"chat_id": job.ChatID,
			"kind":    kind,
			"phase":   job.Phase,
		})
		if err != nil {
			entry.WithError(err).Warn("job failed")
			return
		}
		entry.Info("job finished")
	}()
}

// Wait blocks until all started jobs have returned.
func (a *App) Wait() {
	a.running.Wait()
}
