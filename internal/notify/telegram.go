package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Telegram sends messages through the Bot API. BaseURL is overridable for
// tests.
type Telegram struct {
	Token   string
	BaseURL string
	Client  *http.Client
}

func NewTelegram(token string) *Telegram {
	if token == "" {
		return nil
	}
	return &Telegram{
		Token:   token,
		BaseURL: "https://api.telegram.org",
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramPayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) Send(ctx context.Context, recipient, text string) Delivery {
	if t == nil || t.Token == "" {
		return Failed("telegram", recipient, "telegram disabled")
	}
	if recipient == "" {
		return Failed("telegram", recipient, "empty chat id")
	}
	body, _ := json.Marshal(telegramPayload{ChatID: recipient, Text: text, ParseMode: "HTML"})
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.Token)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return Failed("telegram", recipient, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Failed("telegram", recipient, fmt.Sprintf("telegram status %d", resp.StatusCode))
	}
	return Delivered("telegram", recipient)
}
