package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Slack posts to an incoming webhook. The webhook pins the channel, so the
// recipient argument is ignored.
type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, recipient, text string) Delivery {
	if s == nil || s.Webhook == "" {
		return Failed("slack", recipient, "slack disabled")
	}
	body, _ := json.Marshal(slackPayload{Text: text})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Failed("slack", recipient, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Failed("slack", recipient, fmt.Sprintf("slack status %d", resp.StatusCode))
	}
	return Delivered("slack", recipient)
}
