// Package notify publishes claim confirmation events over watermill.
//
// Drivers:
//   - none: confirmations are not published
//   - gochannel: in-process pub/sub, used by tests and single-node setups
//   - amqp: durable queue on a RabbitMQ broker
//
// Publishing is best effort. The engine logs a failed publish and moves on;
// the confirmation itself is already stored.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/roach88/claimrecon/internal/claim"
)

// Drivers accepted by Open.
const (
	DriverNone      = "none"
	DriverGoChannel = "gochannel"
	DriverAMQP      = "amqp"
)

// DefaultTopic is the topic confirmations are published to.
const DefaultTopic = "claims.confirmed"

// EventClaimConfirmed is the event_type metadata value of a confirmation.
const EventClaimConfirmed = "claim.confirmed"

// Event is the JSON payload of a confirmation message.
type Event struct {
	Type              string    `json:"type"`
	ClaimID           string    `json:"claimId"`
	SubjectID         string    `json:"subjectId"`
	Kind              string    `json:"claimKind"`
	VerificationToken string    `json:"verificationToken"`
	RetryCount        int       `json:"retryCount"`
	ConfirmedAt       time.Time `json:"confirmedAt"`
}

// Config selects the publisher driver.
type Config struct {
	Driver  string
	AMQPURI string
	Topic   string
	Debug   bool
}

// Publisher sends confirmation events. A Publisher for DriverNone accepts
// and drops every event.
type Publisher struct {
	pub   message.Publisher
	sub   message.Subscriber // set for gochannel only
	topic string
}

// Open creates the publisher named by cfg.Driver.
func Open(cfg Config) (*Publisher, error) {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	logger := watermill.NewStdLogger(cfg.Debug, false)

	switch cfg.Driver {
	case DriverNone, "":
		return &Publisher{topic: topic}, nil
	case DriverGoChannel:
		// Publish waits for the audit subscriber's ack, so a confirmation
		// is logged before the engine moves on.
		ch := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, logger)
		return &Publisher{pub: ch, sub: ch, topic: topic}, nil
	case DriverAMQP:
		if cfg.AMQPURI == "" {
			return nil, fmt.Errorf("amqp notifier: uri is required")
		}
		pub, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(cfg.AMQPURI), logger)
		if err != nil {
			return nil, fmt.Errorf("amqp notifier: %w", err)
		}
		return &Publisher{pub: pub, topic: topic}, nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q (want %s, %s or %s)", cfg.Driver, DriverNone, DriverGoChannel, DriverAMQP)
	}
}

// NewPublisher wraps an existing watermill publisher.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{pub: pub, topic: topic}
}

// Topic returns the topic events are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// Subscriber returns the in-process subscriber for the gochannel driver,
// or nil for other drivers.
func (p *Publisher) Subscriber() message.Subscriber {
	return p.sub
}

// ClaimConfirmed publishes a confirmation event for c.
func (p *Publisher) ClaimConfirmed(ctx context.Context, c claim.Claim) error {
	if p.pub == nil {
		return nil
	}

	payload, err := json.Marshal(Event{
		Type:              EventClaimConfirmed,
		ClaimID:           c.ID,
		SubjectID:         c.SubjectID,
		Kind:              c.Kind,
		VerificationToken: c.VerificationToken,
		RetryCount:        c.RetryCount,
		ConfirmedAt:       c.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal confirmation %s: %w", c.ID, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	middleware.SetCorrelationID(c.ID, msg)
	msg.Metadata.Set("event_type", EventClaimConfirmed)
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish confirmation %s: %w", c.ID, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	if p.pub == nil {
		return nil
	}
	return p.pub.Close()
}

// DecodeEvent parses a confirmation message.
func DecodeEvent(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// Audit is an open subscription to confirmation events. Events published
// after SubscribeAudit returns are delivered to Run.
type Audit struct {
	messages <-chan *message.Message
}

// SubscribeAudit subscribes to the confirmation topic. The subscription
// ends when ctx is done. For drivers without an in-process subscriber the
// returned Audit delivers nothing.
func (p *Publisher) SubscribeAudit(ctx context.Context) (*Audit, error) {
	if p.sub == nil {
		return &Audit{}, nil
	}
	messages, err := p.sub.Subscribe(ctx, p.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", p.topic, err)
	}
	return &Audit{messages: messages}, nil
}

// Run logs every confirmation until the subscription ends.
func (a *Audit) Run(logger *slog.Logger) error {
	if a.messages == nil {
		return nil
	}
	for msg := range a.messages {
		ev, err := DecodeEvent(msg)
		if err != nil {
			// Audit failures are never fatal.
			logger.Warn("audit: undecodable confirmation", "message_id", msg.UUID, "error", err)
			msg.Ack()
			continue
		}
		logger.Info("audit: claim confirmed",
			"claim_id", ev.ClaimID,
			"subject_id", ev.SubjectID,
			"claim_kind", ev.Kind,
			"retry_count", ev.RetryCount,
			"correlation_id", middleware.MessageCorrelationID(msg),
		)
		msg.Ack()
	}
	return nil
}

// AuditLog subscribes and logs every confirmation until ctx is done.
// Confirmations published before the subscription exists are not seen;
// use SubscribeAudit before starting the engine when that matters.
func (p *Publisher) AuditLog(ctx context.Context, logger *slog.Logger) error {
	audit, err := p.SubscribeAudit(ctx)
	if err != nil {
		return err
	}
	return audit.Run(logger)
}
