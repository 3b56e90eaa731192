// Package telegram adapts the Bot API client to the relay and job interfaces.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// PollTimeout is the long-polling timeout in seconds.
const PollTimeout = 60

// Message is an incoming chat message reduced to what handlers need.
type Message struct {
	ID           int
	ChatID       int64
	ChatType     string
	ChatTitle    string
	ChatUsername string
	UserID       int64
	FirstName    string
	LastName     string
	Username     string
	Text         string
	// Command is the bot command without slash or mention, empty for plain text.
	Command string
	Args    string
}

// Handler processes one incoming message.
type Handler func(ctx context.Context, msg Message)

// Client wraps a Bot API connection.
type Client struct {
	api *tgbotapi.BotAPI
	log logrus.FieldLogger
}

// New authenticates against the Bot API.
func New(token string, log logrus.FieldLogger) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, log)
}

// NewWithEndpoint authenticates against a custom Bot API endpoint, for
// example a local bot API server that accepts large uploads.
func NewWithEndpoint(token, endpoint string, log logrus.FieldLogger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to bot api: %w", err)
	}
	log.WithField("bot", api.Self.UserName).Info("authorized on bot account")
	return &Client{api: api, log: log}, nil
}

// Username returns the bot account name.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sent, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

// SendVideo uploads a local file as a streamable video.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.Caption = caption
	video.SupportsStreaming = true
	if _, err := c.api.Send(video); err != nil {
		return fmt.Errorf("send video %s: %w", path, err)
	}
	return nil
}

// Poll receives updates until ctx is cancelled and passes messages to handle.
func (c *Client) Poll(ctx context.Context, handle Handler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = PollTimeout
	updates := c.api.GetUpdatesChan(cfg)
	defer c.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := FromUpdate(update)
			if !ok {
				continue
			}
			c.log.WithFields(logrus.Fields{
				"chat_id": msg.ChatID,
				"user_id": msg.UserID,
				"command": msg.Command,
			}).Debug("message received")
			handle(ctx, msg)
		}
	}
}

// FromUpdate extracts a message update. Non-message updates and messages
// without a sender are skipped.
func FromUpdate(update tgbotapi.Update) (Message, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return Message{}, false
	}

	msg := Message{
		ID:           m.MessageID,
		ChatID:       m.Chat.ID,
		ChatType:     m.Chat.Type,
		ChatTitle:    m.Chat.Title,
		ChatUsername: m.Chat.UserName,
		UserID:       m.From.ID,
		FirstName:    m.From.FirstName,
		LastName:     m.From.LastName,
		Username:     m.From.UserName,
		Text:         m.Text,
	}
	if m.IsCommand() {
		msg.Command = m.Command()
		msg.Args = strings.TrimSpace(m.CommandArguments())
	}
	return msg, true
}
