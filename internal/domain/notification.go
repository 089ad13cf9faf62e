package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Channel represents the delivery channel a notification is sent through.
// The queue wire form is lowercase ("email", "push", "sms").
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelSMS   Channel = "SMS"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS:
		return true
	}
	return false
}

func (c Channel) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(string(c)))
}

// UnmarshalJSON accepts the wire form case-insensitively. Unknown channels are
// kept as-is so the consumer can reject them with a structured reason instead
// of a bare decode error.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Channel(strings.ToUpper(strings.TrimSpace(raw)))
	return nil
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Priority is the producer-supplied priority level, 1 (low) to 4 (critical).
// It affects broker queue ordering only, not processing guarantees.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// DeliveryStatus is the terminal outcome reported back to the originating system.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

// Target is a resolved delivery address: a device token for push, an email
// address for email, an MSISDN for SMS.
type Target struct {
	Channel Channel
	Address string
}

// Content is the rendered message produced by the template service.
type Content struct {
	Subject string
	Body    string
}
