package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramConfig configura el sink de Telegram. Sin token el sink queda
// deshabilitado y solo loguea los mensajes.
type TelegramConfig struct {
	Token     string
	APIServer string // vacío = api.telegram.org
	Timeout   time.Duration
}

// Telegram implementa ports.Notifier enviando mensajes HTML a un chat.
type Telegram struct {
	bot *telego.Bot
	log *slog.Logger
}

// NewTelegram crea el sink. Devuelve error si el token no es válido.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Telegram{log: logger.With("component", "telegram")}
	if cfg.Token == "" {
		t.log.Warn("telegram disabled: no bot token configured, alerts will only be logged")
		return t, nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []telego.BotOption{
		telego.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		telego.WithDiscardLogger(),
	}
	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIServer))
	}
	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: %w", err)
	}
	t.bot = bot
	return t, nil
}

// Enabled reports whether messages are actually delivered.
func (t *Telegram) Enabled() bool {
	return t.bot != nil
}

// Send entrega text al chat destination (id numérico o @canal).
// Quien llama no reintenta: un fallo se devuelve y se loguea arriba.
func (t *Telegram) Send(ctx context.Context, destination, text string) error {
	if t.bot == nil {
		t.log.Info("alert (telegram disabled)", "destination", destination, "text", text)
		return nil
	}
	chatID, err := parseChatID(destination)
	if err != nil {
		return fmt.Errorf("notify.Telegram.Send: %w", err)
	}

	msg := tu.Message(chatID, text).
		WithParseMode(telego.ModeHTML).
		WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})
	if _, err := t.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("notify.Telegram.Send: %w", err)
	}
	t.log.Debug("telegram message sent", "destination", destination, "len", len(text))
	return nil
}

func parseChatID(destination string) (telego.ChatID, error) {
	d := strings.TrimSpace(destination)
	if d == "" {
		return telego.ChatID{}, fmt.Errorf("empty destination")
	}
	if strings.HasPrefix(d, "@") {
		return tu.Username(d), nil
	}
	id, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("invalid chat id %q", destination)
	}
	return tu.ID(id), nil
}
