// Package channels holds the outbound delivery adapters. Each adapter
// implements Sender for one channel; the engine picks by channel and treats
// failures uniformly.
package channels

import (
	"context"
	"errors"

	"nurture_backend/internal/leads/domain"
)

// ErrConsentRevoked is returned when the provider reports the recipient
// opted out. The engine treats it as a consent revocation, not a transient
// delivery failure.
var ErrConsentRevoked = errors.New("recipient revoked consent")

// Sender delivers one message to one lead on one channel.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, lead domain.Lead, message string) error
}

// Registry maps channels to their senders.
type Registry map[domain.Channel]Sender

func NewRegistry(senders ...Sender) Registry {
	reg := make(Registry, len(senders))
	for _, s := range senders {
		if s != nil {
			reg[s.Channel()] = s
		}
	}
	return reg
}

// For returns the sender for a channel, or nil when none is configured.
func (r Registry) For(channel domain.Channel) Sender {
	return r[channel]
}
