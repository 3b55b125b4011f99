package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/aspect-go/internal/reliability"
)

// Publisher publishes messages with publisher confirms
type Publisher struct {
	opener         ChannelOpener
	confirmTimeout time.Duration
	publishTimeout time.Duration
	retryDelay     time.Duration
	maxRetries     int
	retryPolicy    reliability.RetryPolicy
	mandatory      bool
	logger         *slog.Logger
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmTimeout sets the confirmation timeout
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithPublishTimeout sets the overall publish timeout used when the caller's
// context has no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.publishTimeout = timeout
	}
}

// WithPublishRetries sets the maximum number of publish retries
func WithPublishRetries(retries int) PublisherOption {
	return func(p *Publisher) {
		p.maxRetries = retries
	}
}

// WithRetryDelay sets the delay before the first retry; later retries double
func WithRetryDelay(delay time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.retryDelay = delay
	}
}

// WithRetryPolicy replaces the backoff built from WithRetryDelay and
// WithPublishRetries
func WithRetryPolicy(policy reliability.RetryPolicy) PublisherOption {
	return func(p *Publisher) {
		p.retryPolicy = policy
	}
}

// WithMandatory makes the broker return messages no queue accepts
func WithMandatory(mandatory bool) PublisherOption {
	return func(p *Publisher) {
		p.mandatory = mandatory
	}
}

// WithPublisherLogger sets the logger used for retry diagnostics
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher creates a new publisher
func NewPublisher(opener ChannelOpener, options ...PublisherOption) *Publisher {
	p := &Publisher{
		opener:         opener,
		confirmTimeout: 5 * time.Second,
		publishTimeout: 10 * time.Second,
		retryDelay:     time.Second,
		maxRetries:     3,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	if p.retryPolicy == nil {
		p.retryPolicy = &reliability.ExponentialBackoff{
			InitialInterval: p.retryDelay,
			MaxInterval:     p.publishTimeout,
			Multiplier:      2.0,
			MaxAttempts:     p.maxRetries,
		}
	}

	return p
}

// DeclareExchange declares a durable exchange
func (p *Publisher) DeclareExchange(name, kind string) error {
	ch, err := p.opener.OpenChannel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

// Publish publishes a message and waits for the broker to confirm it
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	attempt := 0
	err := reliability.Retry(ctx, p.retryPolicy, func() error {
		attempt++
		err := p.publishWithConfirm(ctx, exchange, routingKey, msg)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return reliability.Permanent(err)
		}
		p.logger.Debug("publish attempt failed",
			"exchange", exchange,
			"routingKey", routingKey,
			"attempt", attempt,
			"error", err)
		return err
	})
	if err == nil {
		return nil
	}

	var permanent reliability.RetryableError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return p.publishError(exchange, routingKey, err)
}

func (p *Publisher) publishError(exchange, routingKey string, err error) error {
	return &PublishError{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Mandatory:  p.mandatory,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

// publishWithConfirm publishes a single message on a fresh confirm channel
func (p *Publisher) publishWithConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	ch, err := p.opener.OpenChannel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable confirms: %w", err)
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	returns := ch.NotifyReturn(make(chan amqp.Return, 1))

	if err := ch.PublishWithContext(ctx, exchange, routingKey, p.mandatory, false, msg); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	timeout := time.NewTimer(p.confirmTimeout)
	defer timeout.Stop()

	select {
	case ret := <-returns:
		return fmt.Errorf("%w: %s", ErrPublishReturned, ret.ReplyText)

	case confirm := <-confirms:
		if !confirm.Ack {
			return ErrPublishNacked
		}
		// The broker sends a return before the ack of the same message.
		select {
		case ret := <-returns:
			return fmt.Errorf("%w: %s", ErrPublishReturned, ret.ReplyText)
		default:
			return nil
		}

	case <-timeout.C:
		return ErrPublishNotConfirmed

	case <-ctx.Done():
		return ctx.Err()
	}
}
