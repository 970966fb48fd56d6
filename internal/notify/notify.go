// Package notify delivers alert messages to chat channels.
package notify

import "context"

// Delivery reports the outcome of one send attempt. Callers decide what to
// do with failures; the notifier never hides them.
type Delivery struct {
	Channel   string
	Recipient string
	OK        bool
	Reason    string
}

func Delivered(channel, recipient string) Delivery {
	return Delivery{Channel: channel, Recipient: recipient, OK: true}
}

func Failed(channel, recipient, reason string) Delivery {
	return Delivery{Channel: channel, Recipient: recipient, OK: false, Reason: reason}
}

// Notifier sends one message to one recipient. recipient is
// channel-specific (a Telegram chat id; ignored by webhook channels).
type Notifier interface {
	Send(ctx context.Context, recipient, text string) Delivery
}

// Multi fans a message out to every configured channel.
type Multi []Notifier

func (m Multi) Deliver(ctx context.Context, recipient, text string) []Delivery {
	var out []Delivery
	for _, n := range m {
		if n == nil {
			continue
		}
		out = append(out, n.Send(ctx, recipient, text))
	}
	return out
}
