package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/errs"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends alerts through a bot and long-polls the same bot for user
// commands (/trade, /close, ...).
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegram returns a Telegram sink. baseURL empty means the production
// Bot API.
func NewTelegram(token, chatID, baseURL string) *Telegram {
	if baseURL == "" {
		baseURL = telegramAPI
	}
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 40 * time.Second},
	}
}

func (t *Telegram) Name() string  { return "telegram" }
func (t *Telegram) Enabled() bool { return t.token != "" && t.chatID != "" }

func (t *Telegram) Send(ctx context.Context, a *Alert) error {
	return t.sendText(ctx, Render(a))
}

func (t *Telegram) sendText(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return errs.E(errs.KindInternal, "telegram: marshal message", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errs.E(errs.KindInternal, "telegram: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errs.E(errs.KindTransientFetch, "telegram: send", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.Ef(errs.KindTransientFetch, "telegram: send",
			"HTTP %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Listen long-polls getUpdates and feeds each incoming command line to
// handle, replying with whatever it returns. Blocks until ctx is done.
func (t *Telegram) Listen(ctx context.Context, handle func(ctx context.Context, line string) string) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			log.Warn().Err(err).Msg("telegram poll failed")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			text := u.Message.Text
			if text == "" {
				continue
			}
			if reply := handle(ctx, text); reply != "" {
				if err := t.sendText(ctx, reply); err != nil {
					log.Warn().Err(err).Msg("telegram reply failed")
				}
			}
		}
	}
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
	} `json:"message"`
}

func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]telegramUpdate, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=30&offset=%d", t.baseURL, t.token, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.E(errs.KindInternal, "telegram: build poll", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errs.E(errs.KindTransientFetch, "telegram: poll", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Ef(errs.KindTransientFetch, "telegram: poll", "HTTP %d", resp.StatusCode)
	}

	var body struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errs.E(errs.KindTransientFetch, "telegram: decode updates", err)
	}
	if !body.OK {
		return nil, errs.Ef(errs.KindTransientFetch, "telegram: poll", "response not ok")
	}
	return body.Result, nil
}
