package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"NoteSalesTracker/internal/ports"
)

// Notifier sends operator messages to a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

var _ ports.Notifier = (*Notifier)(nil)

// Option customizes a Notifier.
type Option func(*Notifier)

// WithEndpoint overrides the bot API endpoint format (token, method).
func WithEndpoint(endpoint string) Option {
	return func(n *Notifier) { n.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) { n.client = client }
}

// NewNotifier registers bot token and chat identifier. The chat is either a
// numeric ID or an @channel name. The bot is contacted on first use.
func NewNotifier(botToken, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   strings.TrimSpace(chatID),
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify posts the message prefixed with the level emoji.
func (n *Notifier) Notify(ctx context.Context, level ports.Level, message string) error {
	if n.botToken == "" || n.chatID == "" {
		return errors.New("telegram notifier misconfigured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	api, err := n.bot()
	if err != nil {
		return err
	}

	text := level.Emoji() + " " + message
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(n.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(n.chatID, text)
	}
	msg.DisableWebPagePreview = true

	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (n *Notifier) bot() (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.api != nil {
		return n.api, nil
	}
	api, err := tgbotapi.NewBotAPIWithClient(n.botToken, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	n.api = api
	return api, nil
}
