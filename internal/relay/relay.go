// Package relay maps job progress onto a single chat status message, dropping
// redundant and too frequent edits and cleaning up transient messages.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMinInterval is the minimum gap between two progress edits.
	DefaultMinInterval = 300 * time.Millisecond
	// DefaultCleanupDelay is how long terminal and transient messages stay visible.
	DefaultCleanupDelay = 5 * time.Second

	deleteTimeout = 10 * time.Second
)

// ErrFinished is returned when a finished status is finished again.
var ErrFinished = errors.New("status already finished")

// Chat is the message primitive set the relay needs from the transport.
type Chat interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Relay creates status messages and one-shot transient replies.
type Relay struct {
	chat         Chat
	minInterval  time.Duration
	cleanupDelay time.Duration
	now          func() time.Time
	afterFunc    func(time.Duration, func())
	log          logrus.FieldLogger
}

// Option customizes a Relay.
type Option func(*Relay)

// WithMinInterval overrides the progress edit interval.
func WithMinInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d >= 0 {
			r.minInterval = d
		}
	}
}

// WithCleanupDelay overrides the default deletion delay.
func WithCleanupDelay(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.cleanupDelay = d
		}
	}
}

// WithClock injects the time source and timer used for throttling and cleanup.
func WithClock(now func() time.Time, afterFunc func(time.Duration, func())) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
		if afterFunc != nil {
			r.afterFunc = afterFunc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Relay) {
		if log != nil {
			r.log = log
		}
	}
}

// New builds a relay on top of chat.
func New(chat Chat, opts ...Option) *Relay {
	r := &Relay{
		chat:         chat,
		minInterval:  DefaultMinInterval,
		cleanupDelay: DefaultCleanupDelay,
		now:          time.Now,
		afterFunc: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CleanupDelay returns the default deletion delay.
func (r *Relay) CleanupDelay() time.Duration {
	return r.cleanupDelay
}

// Open sends the status message that later progress edits replace.
func (r *Relay) Open(ctx context.Context, chatID int64, text string) (*Status, error) {
	messageID, err := r.chat.SendMessage(ctx, chatID, text)
	if err != nil {
		return nil, err
	}

	return &Status{
		relay:      r,
		chatID:     chatID,
		messageID:  messageID,
		displayed:  text,
		lastUpdate: r.now(),
		floor:      -1,
	}, nil
}

// ReplyAndDelete answers a request and removes both messages after the default delay.
func (r *Relay) ReplyAndDelete(ctx context.Context, chatID int64, requestID int, text string) error {
	return r.ReplyAndDeleteAfter(ctx, chatID, requestID, text, r.cleanupDelay)
}

// ReplyAndDeleteAfter is ReplyAndDelete with an explicit delay.
func (r *Relay) ReplyAndDeleteAfter(ctx context.Context, chatID int64, requestID int, text string, delay time.Duration) error {
	responseID, err := r.chat.SendMessage(ctx, chatID, text)
	if err != nil {
		r.scheduleDelete(chatID, delay, requestID)
		return err
	}
	r.scheduleDelete(chatID, delay, requestID, responseID)
	return nil
}

// scheduleDelete removes messages after delay; failures are only logged.
func (r *Relay) scheduleDelete(chatID int64, delay time.Duration, messageIDs ...int) {
	ids := make([]int, 0, len(messageIDs))
	for _, id := range messageIDs {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	r.afterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()
		for _, id := range ids {
			if err := r.chat.DeleteMessage(ctx, chatID, id); err != nil {
				r.log.WithFields(logrus.Fields{
					"chat_id":    chatID,
					"message_id": id,
				}).WithError(err).Debug("delete message failed")
			}
		}
	})
}

// Status is the single progress message of one job.
type Status struct {
	relay     *Relay
	chatID    int64
	messageID int

	mu         sync.Mutex
	displayed  string
	lastUpdate time.Time
	floor      int
	format     func(percent int) string
	finished   bool
}

// MessageID returns the chat id of the status message.
func (s *Status) MessageID() int {
	return s.messageID
}

// Text returns the currently displayed text.
func (s *Status) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed
}

// LastUpdate returns when the status message last changed.
func (s *Status) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

// Phase starts a new progress phase rendered by format. The monotonic floor
// is reset so the new phase may start again from zero.
func (s *Status) Phase(format func(percent int) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.floor = -1
}

// Progress edits the status message unless the update is too soon after the
// previous one, regresses below the phase floor or renders identical text.
// It reports whether an edit was issued.
func (s *Status) Progress(ctx context.Context, percent int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.format == nil {
		return false
	}
	now := s.relay.now()
	if now.Sub(s.lastUpdate) < s.relay.minInterval {
		return false
	}
	if percent < s.floor {
		return false
	}

	text := s.format(percent)
	if text == s.displayed {
		return false
	}

	s.lastUpdate = now
	if err := s.relay.chat.EditMessageText(ctx, s.chatID, s.messageID, text); err != nil {
		s.relay.log.WithFields(logrus.Fields{
			"chat_id":    s.chatID,
			"message_id": s.messageID,
		}).WithError(err).Warn("edit status message failed")
		return false
	}

	s.displayed = text
	s.floor = percent
	return true
}

// Finish sends the terminal message and schedules deletion of the status
// message, the terminal message and any transient messages.
func (s *Status) Finish(ctx context.Context, text string, transient ...int) error {
	return s.FinishAfter(ctx, s.relay.cleanupDelay, text, transient...)
}

// FinishAfter is Finish with an explicit deletion delay.
func (s *Status) FinishAfter(ctx context.Context, delay time.Duration, text string, transient ...int) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrFinished
	}
	s.finished = true
	s.mu.Unlock()

	ids := append([]int{s.messageID}, transient...)
	responseID, err := s.relay.chat.SendMessage(ctx, s.chatID, text)
	if err == nil {
		ids = append(ids, responseID)
	}
	s.relay.scheduleDelete(s.chatID, delay, ids...)
	return err
}
