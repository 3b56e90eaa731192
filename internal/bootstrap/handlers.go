package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/auth"
	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/jobs"
	"ytdlp-telegram-bot/internal/media"
	"ytdlp-telegram-bot/internal/telegram"
	"ytdlp-telegram-bot/internal/users"
)

// InfoReplyDelay keeps /list and /status answers readable longer than
// the regular transient replies.
const InfoReplyDelay = time.Minute

// MaxListLimit caps /list [n].
const MaxListLimit = 50

// statusHistory is the number of events /status shows.
const statusHistory = 10

// HandleMessage dispatches one chat message.
func (a *App) HandleMessage(ctx context.Context, msg telegram.Message) {
	switch msg.Command {
	case "start":
		a.handleStart(ctx, msg)
	case "token":
		a.handleToken(ctx, msg)
	case "list":
		a.guarded(ctx, msg, a.handleList)
	case "send":
		a.guarded(ctx, msg, a.handleSend)
	case "status":
		a.guarded(ctx, msg, a.handleStatus)
	case "":
		a.guarded(ctx, msg, a.handleLink)
	default:
		a.log.WithField("command", msg.Command).Debug("ignoring unknown command")
	}
}

func (a *App) handleStart(ctx context.Context, msg telegram.Message) {
	record := domain.UserRecord{
		UserID:       msg.UserID,
		ChatID:       msg.ChatID,
		ChatType:     msg.ChatType,
		ChatTitle:    msg.ChatTitle,
		ChatUsername: msg.ChatUsername,
		FirstName:    msg.FirstName,
		LastName:     msg.LastName,
		Username:     msg.Username,
	}

	result, _, err := a.auth.Register(record)
	if err != nil {
		a.log.WithField("user_id", msg.UserID).WithError(err).Error("register user failed")
		a.reply(ctx, msg, "Registration failed, please try again later.")
		return
	}

	if result == auth.AlreadyRegistered {
		a.reply(ctx, msg, fmt.Sprintf("Hello %s! You are already registered!", record.DisplayName()))
		return
	}
	if _, err := a.chat.SendMessage(ctx, msg.ChatID, fmt.Sprintf("Hello %s! Please send me the code to authenticate you.", record.DisplayName())); err != nil {
		a.log.WithField("chat_id", msg.ChatID).WithError(err).Warn("send greeting failed")
	}
}

func (a *App) handleToken(ctx context.Context, msg telegram.Message) {
	if msg.Args == "" {
		a.reply(ctx, msg, "Please send /token <code>")
		return
	}

	result, err := a.auth.Authenticate(msg.UserID, msg.Args)
	if err != nil {
		a.log.WithField("user_id", msg.UserID).WithError(err).Error("authenticate user failed")
	}
	switch result {
	case auth.NotRegistered:
		a.reply(ctx, msg, "You are not registered!")
	case auth.AlreadyAuthenticated:
		a.reply(ctx, msg, "You are already authenticated!")
	case auth.Authenticated:
		a.reply(ctx, msg, "You are authenticated!")
	default:
		a.reply(ctx, msg, "You are not authenticated!")
	}
}

// guarded runs handle only for authenticated senders.
func (a *App) guarded(ctx context.Context, msg telegram.Message, handle func(context.Context, telegram.Message, domain.UserRecord)) {
	record, err := a.auth.Authorize(msg.UserID)
	switch {
	case errors.Is(err, users.ErrNotRegistered):
		a.reply(ctx, msg, "You are not registered!")
	case errors.Is(err, auth.ErrNotAuthenticated):
		a.reply(ctx, msg, "You are not authenticated!")
	case err != nil:
		a.log.WithField("user_id", msg.UserID).WithError(err).Error("authorize user failed")
	default:
		handle(ctx, msg, record)
	}
}

func (a *App) handleLink(ctx context.Context, msg telegram.Message, user domain.UserRecord) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	link, ok := media.FindLink(msg.Text)
	if !ok {
		a.reply(ctx, msg, "Please send me a youtube link!")
		return
	}

	a.log.WithFields(logrus.Fields{
		"user_id": user.UserID,
		"name":    user.DisplayName(),
		"url":     link.URL,
	}).Info("download requested")

	req := jobs.Request{ChatID: msg.ChatID, RequestMessageID: msg.ID, URL: link.URL, VideoID: link.ID}
	a.startJob(ctx, "download", func(ctx context.Context) (domain.Job, error) {
		return a.jobs.Download(ctx, req)
	})
}

func (a *App) handleSend(ctx context.Context, msg telegram.Message, user domain.UserRecord) {
	target := strings.TrimSpace(msg.Args)
	if target == "" {
		a.reply(ctx, msg, "Please send /send <id|url>")
		return
	}

	if link, ok := media.FindLink(target); ok {
		a.log.WithFields(logrus.Fields{"user_id": user.UserID, "url": link.URL}).Info("download and send requested")
		req := jobs.Request{ChatID: msg.ChatID, RequestMessageID: msg.ID, URL: link.URL, VideoID: link.ID, Transcode: true}
		a.startJob(ctx, "download+send", func(ctx context.Context) (domain.Job, error) {
			return a.jobs.Download(ctx, req)
		})
		return
	}

	a.log.WithFields(logrus.Fields{"user_id": user.UserID, "video_id": target}).Info("send requested")
	req := jobs.Request{ChatID: msg.ChatID, RequestMessageID: msg.ID, VideoID: target}
	a.startJob(ctx, "send", func(ctx context.Context) (domain.Job, error) {
		return a.jobs.Send(ctx, req)
	})
}

func (a *App) handleList(ctx context.Context, msg telegram.Message, _ domain.UserRecord) {
	limit := a.Settings.ListLimit
	if msg.Args != "" {
		n, err := strconv.Atoi(msg.Args)
		if err != nil || n <= 0 {
			a.reply(ctx, msg, "Please send /list [count]")
			return
		}
		limit = n
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	files, err := a.library.Newest(limit)
	if err != nil {
		a.log.WithError(err).Error("list library failed")
		a.reply(ctx, msg, "Listing videos failed!")
		return
	}
	if len(files) == 0 {
		a.reply(ctx, msg, "No videos found!")
		return
	}
	a.replyFor(ctx, msg, formatList(files), InfoReplyDelay)
}

func (a *App) handleStatus(ctx context.Context, msg telegram.Message, _ domain.UserRecord) {
	events := a.events.Recent(msg.ChatID, statusHistory)
	if len(events) == 0 {
		a.reply(ctx, msg, "No recent jobs.")
		return
	}
	a.replyFor(ctx, msg, formatEvents(events), InfoReplyDelay)
}

func (a *App) reply(ctx context.Context, msg telegram.Message, text string) {
	a.replyFor(ctx, msg, text, a.relay.CleanupDelay())
}

func (a *App) replyFor(ctx context.Context, msg telegram.Message, text string, delay time.Duration) {
	if err := a.relay.ReplyAndDeleteAfter(ctx, msg.ChatID, msg.ID, text, delay); err != nil {
		a.log.WithField("chat_id", msg.ChatID).WithError(err).Warn("send reply failed")
	}
}

func formatList(files []domain.VideoFile) string {
	var b strings.Builder
	for i, file := range files {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s [%s]", i+1, file.Name, file.ID)
	}
	return b.String()
}

func formatEvents(events []jobs.Event) string {
	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s", ev.Timestamp.Format("15:04:05"), ev.Phase, ev.Source)
		if ev.Message != "" {
			fmt.Fprintf(&b, ": %s", ev.Message)
		}
	}
	return b.String()
}
