package domain

import (
	"encoding/json"
	"fmt"
)

// Payload carries channel-specific delivery data. Each channel reads its
// own variant; Meta is free-form key/value data forwarded to the recipient
// (push message data, in-app extras).
type Payload struct {
	Push *PushPayload      `json:"push,omitempty"`
	Meta map[string]string `json:"meta,omitempty"`
}

// PushPayload holds the web-push subscription the message is delivered to.
type PushPayload struct {
	Subscription PushSubscription `json:"subscription"`
}

// PushSubscription is a browser push subscription as handed out by the
// Push API: the endpoint URL plus the client key material.
type PushSubscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// SubscriptionKeys holds the client's encryption keys.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// IsZero reports whether the payload carries no data at all.
func (p Payload) IsZero() bool {
	return p.Push == nil && len(p.Meta) == 0
}

// Validate checks that the payload carries the variant the channel needs.
func (p Payload) Validate(ch Channel) error {
	if ch == ChannelPush {
		if p.Push == nil {
			return fmt.Errorf("%w: push job is missing a subscription", ErrInvalidPayload)
		}
		sub := p.Push.Subscription
		if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
			return fmt.Errorf("%w: push subscription is incomplete", ErrInvalidPayload)
		}
	}
	return nil
}

// Encode serializes the payload for storage. An empty payload encodes to nil.
func (p Payload) Encode() ([]byte, error) {
	if p.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses a stored payload. Nil or empty input yields the
// zero payload.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}
