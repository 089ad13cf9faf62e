package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

// Publisher publishes messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg NotificationMessage) error
	PublishDeadLetter(ctx context.Context, queue string, env DeadLetterEnvelope) error
	Close() error
}

// MessageHandler handles a consumed, structurally valid queue message.
// A nil return acknowledges the message; an error nacks it for broker
// redelivery.
type MessageHandler func(ctx context.Context, msg NotificationMessage) error

// MalformedHandler receives payloads that failed decoding or structural
// validation. The message is acknowledged afterwards regardless; retrying a
// malformed payload can never succeed.
type MalformedHandler func(ctx context.Context, body []byte, cause error)

// Consumer consumes notification messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedChannels = []domain.Channel{
	domain.ChannelEmail,
	domain.ChannelPush,
	domain.ChannelSMS,
}

// queueMaxPriority is the RabbitMQ x-max-priority value for work queues,
// matching domain.PriorityCritical.
const queueMaxPriority int32 = 4

// QueueName returns the channel work queue name, e.g. push.
func QueueName(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.push.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

// WorkQueueNames returns all channel work queues.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}

// PriorityValue maps domain priority to RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	if !priority.IsValid() {
		return uint8(domain.PriorityNormal)
	}
	return uint8(priority)
}
