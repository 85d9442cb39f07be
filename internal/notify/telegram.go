package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/storefront/internal/domain/user"
)

// DefaultTelegramURL is the public Bot API endpoint.
const DefaultTelegramURL = "https://api.telegram.org"

// UserLookup resolves the Telegram chat of a user.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	BotToken string
	// APIURL defaults to DefaultTelegramURL.
	APIURL  string
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return "telegram: " + e.Description
}

// Telegram sends messages through the Telegram Bot API to the chat linked by
// the user. Users without a linked chat are skipped.
type Telegram struct {
	users    UserLookup
	client   *http.Client
	endpoint string
	breaker  *gobreaker.CircuitBreaker[struct{}]
}

// NewTelegram creates a Telegram channel.
func NewTelegram(cfg TelegramConfig, users UserLookup) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultTelegramURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	maxFailures := cfg.MaxFailures
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A rejected chat is the user's problem, not an outage.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500)
		},
	})

	return &Telegram{
		users: users,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		endpoint: strings.TrimRight(cfg.APIURL, "/") + "/bot" + cfg.BotToken + "/sendMessage",
		breaker:  breaker,
	}, nil
}

// Notify implements order.Notifier.
func (t *Telegram) Notify(ctx context.Context, userID, message string) (bool, error) {
	u, err := t.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "lookup user")
	}
	if u.TelegramChatID == "" {
		return false, nil
	}

	if _, err := t.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, t.send(ctx, u.TelegramChatID, message)
	}); err != nil {
		return false, errors.Wrap(err, "telegram send")
	}
	return true, nil
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("chat_id")
	e.Str(chatID)
	e.FieldStart("text")
	e.Str(text)
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	return decodeTelegramResponse(resp.StatusCode, body)
}

func decodeTelegramResponse(status int, body []byte) error {
	var (
		ok     bool
		apiErr = &APIError{Code: status}
	)
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "ok":
			v, err := d.Bool()
			ok = v
			return err
		case "error_code":
			v, err := d.Int()
			apiErr.Code = v
			return err
		case "description":
			v, err := d.Str()
			apiErr.Description = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return errors.Wrapf(err, "decode response (status %d)", status)
	}
	if !ok {
		if apiErr.Description == "" {
			apiErr.Description = http.StatusText(status)
		}
		return apiErr
	}
	return nil
}
