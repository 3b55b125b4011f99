// Package rabbitmq publishes dispatch timing records to a RabbitMQ exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/aspect-go/dispatch"
	"github.com/glimte/aspect-go/internal/rabbitmq"
	"github.com/glimte/aspect-go/internal/reliability"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange receives timing records unless WithExchange is used
	DefaultExchange = "aspect.timing"

	// MessageType is set as the AMQP type of every timing message
	MessageType = "aspect.timing.record"
)

var (
	// ErrQueueFull is returned when a queued publisher has no room for a record
	ErrQueueFull = errors.New("timing publisher: queue is full")

	// ErrPublisherClosed is returned for records offered after Close
	ErrPublisherClosed = errors.New("timing publisher: closed")
)

// TimingPublisher implements dispatch.TimingRecorder over RabbitMQ
type TimingPublisher struct {
	manager    *rabbitmq.ConnectionManager
	publisher  *rabbitmq.Publisher
	breaker    *reliability.CircuitBreaker
	exchange   string
	routingKey string
	logger     *slog.Logger

	// queued mode only
	queue   chan queuedRecord
	drained sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

type queuedRecord struct {
	id         string
	routingKey string
	msg        amqp.Publishing
}

var _ dispatch.TimingRecorder = (*TimingPublisher)(nil)

// PublisherConfig holds configuration for the timing publisher
type PublisherConfig struct {
	Exchange          string
	RoutingKey        string
	SkipDeclare       bool
	Logger            *slog.Logger
	Breaker           *reliability.CircuitBreaker
	QueueSize         int
	ConnectionOptions []rabbitmq.ConnectionOption
	PublisherOptions  []rabbitmq.PublisherOption
}

// PublisherOption configures the timing publisher
type PublisherOption func(*PublisherConfig)

// WithExchange sets the topic exchange records are published to
func WithExchange(exchange string) PublisherOption {
	return func(cfg *PublisherConfig) {
		if exchange != "" {
			cfg.Exchange = exchange
		}
	}
}

// WithRoutingKey publishes every record with one routing key instead of
// timing.<type>.<method>
func WithRoutingKey(key string) PublisherOption {
	return func(cfg *PublisherConfig) {
		cfg.RoutingKey = key
	}
}

// WithoutDeclare skips declaring the exchange on start
func WithoutDeclare() PublisherOption {
	return func(cfg *PublisherConfig) {
		cfg.SkipDeclare = true
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(cfg *PublisherConfig) {
		cfg.Logger = logger
	}
}

// WithCircuitBreaker replaces the breaker that stops publishing while the
// broker keeps failing
func WithCircuitBreaker(breaker *reliability.CircuitBreaker) PublisherOption {
	return func(cfg *PublisherConfig) {
		cfg.Breaker = breaker
	}
}

// WithQueue makes RecordTiming hand records to a buffer of size records
// drained by a background publisher, so callers never wait on the broker.
// Records offered while the buffer is full are dropped with ErrQueueFull.
func WithQueue(size int) PublisherOption {
	return func(cfg *PublisherConfig) {
		cfg.QueueSize = size
	}
}

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) PublisherOption {
	return func(cfg *PublisherConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPublisherOptions sets publisher options
func WithPublisherOptions(opts ...rabbitmq.PublisherOption) PublisherOption {
	return func(cfg *PublisherConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, opts...)
	}
}

func newConfig(options []PublisherOption) *PublisherConfig {
	cfg := &PublisherConfig{Exchange: DefaultExchange}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		logger := cfg.Logger
		cfg.Breaker = reliability.NewCircuitBreaker(
			reliability.WithName("timing:"+cfg.Exchange),
			reliability.WithFailureThreshold(5),
			reliability.WithTimeout(30*time.Second),
			reliability.WithStateChange(func(name string, from, to reliability.State, reason string) {
				logger.Warn("timing publisher circuit changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
					"reason", reason)
			}),
		)
	}
	return cfg
}

// NewTimingPublisher connects to the broker at connectionString and declares
// the timing exchange
func NewTimingPublisher(ctx context.Context, connectionString string, options ...PublisherOption) (*TimingPublisher, error) {
	cfg := newConfig(options)

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(cfg.Logger)}, cfg.ConnectionOptions...)
	manager := rabbitmq.NewConnectionManager(connectionString, connOpts...)
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	p, err := newTimingPublisher(manager, cfg)
	if err != nil {
		manager.Close()
		return nil, err
	}
	p.manager = manager
	return p, nil
}

// NewTimingPublisherWithOpener builds a timing publisher over channels from
// opener. The caller owns whatever connection backs opener.
func NewTimingPublisherWithOpener(opener rabbitmq.ChannelOpener, options ...PublisherOption) (*TimingPublisher, error) {
	return newTimingPublisher(opener, newConfig(options))
}

func newTimingPublisher(opener rabbitmq.ChannelOpener, cfg *PublisherConfig) (*TimingPublisher, error) {
	pubOpts := append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(cfg.Logger)}, cfg.PublisherOptions...)
	publisher := rabbitmq.NewPublisher(opener, pubOpts...)

	if !cfg.SkipDeclare {
		if err := publisher.DeclareExchange(cfg.Exchange, amqp.ExchangeTopic); err != nil {
			return nil, fmt.Errorf("failed to declare exchanges: %w", err)
		}
	}

	p := &TimingPublisher{
		publisher:  publisher,
		breaker:    cfg.Breaker,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     cfg.Logger,
	}
	if cfg.QueueSize > 0 {
		p.queue = make(chan queuedRecord, cfg.QueueSize)
		p.drained.Add(1)
		go p.drain()
	}
	return p, nil
}

// RecordTiming implements dispatch.TimingRecorder. While the circuit is open
// records are dropped with an error wrapping reliability.ErrCircuitOpen. In
// queued mode it only enqueues; publish failures are then logged.
func (p *TimingPublisher) RecordTiming(ctx context.Context, record dispatch.TimingRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal timing record: %w", err)
	}

	item := queuedRecord{
		id:         record.ID,
		routingKey: p.routingKeyFor(record),
		msg: amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     record.ID,
			CorrelationId: record.InvocationID,
			Timestamp:     record.StartedAt,
			Type:          MessageType,
			Headers: amqp.Table{
				"x-aspect-type":    record.Type,
				"x-aspect-method":  record.Method,
				"x-aspect-variant": record.Variant,
			},
			Body: body,
		},
	}

	if p.queue == nil {
		return p.publish(ctx, item)
	}
	return p.enqueue(item)
}

func (p *TimingPublisher) enqueue(item queuedRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("failed to queue timing record %s: %w", item.id, ErrPublisherClosed)
	}
	select {
	case p.queue <- item:
		return nil
	default:
		return fmt.Errorf("failed to queue timing record %s: %w", item.id, ErrQueueFull)
	}
}

func (p *TimingPublisher) drain() {
	defer p.drained.Done()
	for item := range p.queue {
		if err := p.publish(context.Background(), item); err != nil {
			p.logger.Warn("timing record dropped", "id", item.id, "error", err)
		}
	}
}

func (p *TimingPublisher) publish(ctx context.Context, item queuedRecord) error {
	err := p.breaker.Execute(ctx, func() error {
		return p.publisher.Publish(ctx, p.exchange, item.routingKey, item.msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish timing record %s: %w", item.id, err)
	}
	return nil
}

func (p *TimingPublisher) routingKeyFor(record dispatch.TimingRecord) string {
	if p.routingKey != "" {
		return p.routingKey
	}
	return "timing." + record.Type + "." + record.Method
}

// Exchange returns the exchange records are published to
func (p *TimingPublisher) Exchange() string {
	return p.exchange
}

// Close publishes the records still queued, then closes the connection
// opened by NewTimingPublisher
func (p *TimingPublisher) Close() error {
	if p.queue != nil {
		p.mu.Lock()
		if !p.closed {
			p.closed = true
			close(p.queue)
		}
		p.mu.Unlock()
		p.drained.Wait()
	}

	if p.manager == nil {
		return nil
	}
	return p.manager.Close()
}
