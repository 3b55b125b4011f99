package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glimte/aspect-go/dispatch"
	"github.com/glimte/aspect-go/internal/rabbitmq"
	"github.com/glimte/aspect-go/internal/reliability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

// brokerChannel acks every publish and keeps what it saw
type brokerChannel struct {
	declareErr error
	declared   map[string]string
	sent       *[]sentMessage
	confirms   chan amqp.Confirmation
}

func (c *brokerChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if c.declareErr != nil {
		return c.declareErr
	}
	c.declared[name] = kind
	return nil
}

func (c *brokerChannel) Confirm(noWait bool) error { return nil }

func (c *brokerChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	c.confirms = confirm
	return confirm
}

func (c *brokerChannel) NotifyReturn(r chan amqp.Return) chan amqp.Return { return r }

func (c *brokerChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	*c.sent = append(*c.sent, sentMessage{exchange: exchange, key: key, msg: msg})
	c.confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
	return nil
}

func (c *brokerChannel) Close() error { return nil }

type fakeBroker struct {
	declared map[string]string
	sent     []sentMessage
	openErr  error
	opened   int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{declared: make(map[string]string)}
}

func (b *fakeBroker) OpenChannel() (rabbitmq.Channel, error) {
	b.opened++
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &brokerChannel{declared: b.declared, sent: &b.sent}, nil
}

// gatedOpener holds every channel open until the gate is closed
type gatedOpener struct {
	broker  *fakeBroker
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedOpener() *gatedOpener {
	return &gatedOpener{
		broker:  newFakeBroker(),
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
}

func (o *gatedOpener) OpenChannel() (rabbitmq.Channel, error) {
	o.once.Do(func() { close(o.entered) })
	<-o.gate
	return o.broker.OpenChannel()
}

func sampleRecord() dispatch.TimingRecord {
	return dispatch.TimingRecord{
		ID:           "rec-1",
		InvocationID: "inv-1",
		Type:         "billing.Invoices",
		Method:       "Issue",
		StartedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Elapsed:      1500 * time.Microsecond,
		Variant:      "release",
	}
}

func TestTimingPublisher(t *testing.T) {
	t.Run("declares the default exchange", func(t *testing.T) {
		broker := newFakeBroker()

		p, err := NewTimingPublisherWithOpener(broker)

		require.NoError(t, err)
		assert.Equal(t, DefaultExchange, p.Exchange())
		assert.Equal(t, amqp.ExchangeTopic, broker.declared[DefaultExchange])
		assert.NoError(t, p.Close())
	})

	t.Run("skips declaring when asked", func(t *testing.T) {
		broker := newFakeBroker()

		_, err := NewTimingPublisherWithOpener(broker, WithoutDeclare(), WithExchange("perf"))

		require.NoError(t, err)
		assert.Empty(t, broker.declared)
	})

	t.Run("declare failure is returned", func(t *testing.T) {
		broker := newFakeBroker()
		broker.openErr = rabbitmq.ErrConnectionNotReady

		_, err := NewTimingPublisherWithOpener(broker)

		assert.ErrorIs(t, err, rabbitmq.ErrConnectionNotReady)
	})

	t.Run("publishes the record as json", func(t *testing.T) {
		broker := newFakeBroker()
		p, err := NewTimingPublisherWithOpener(broker, WithExchange("perf"))
		require.NoError(t, err)

		require.NoError(t, p.RecordTiming(context.Background(), sampleRecord()))

		require.Len(t, broker.sent, 1)
		sent := broker.sent[0]
		assert.Equal(t, "perf", sent.exchange)
		assert.Equal(t, "timing.billing.Invoices.Issue", sent.key)
		assert.Equal(t, "rec-1", sent.msg.MessageId)
		assert.Equal(t, "inv-1", sent.msg.CorrelationId)
		assert.Equal(t, MessageType, sent.msg.Type)
		assert.Equal(t, "application/json", sent.msg.ContentType)
		assert.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
		assert.Equal(t, "Issue", sent.msg.Headers["x-aspect-method"])

		var decoded dispatch.TimingRecord
		require.NoError(t, json.Unmarshal(sent.msg.Body, &decoded))
		assert.Equal(t, sampleRecord(), decoded)
	})

	t.Run("fixed routing key", func(t *testing.T) {
		broker := newFakeBroker()
		p, err := NewTimingPublisherWithOpener(broker, WithRoutingKey("all"))
		require.NoError(t, err)

		require.NoError(t, p.RecordTiming(context.Background(), sampleRecord()))
		assert.Equal(t, "all", broker.sent[0].key)
	})

	t.Run("publish failure names the record", func(t *testing.T) {
		broker := newFakeBroker()
		p, err := NewTimingPublisherWithOpener(broker,
			WithPublisherOptions(rabbitmq.WithPublishRetries(0)))
		require.NoError(t, err)
		broker.openErr = errors.New("channel limit reached")

		err = p.RecordTiming(context.Background(), sampleRecord())

		assert.ErrorContains(t, err, "rec-1")
		var pubErr *rabbitmq.PublishError
		assert.ErrorAs(t, err, &pubErr)
	})

	t.Run("open circuit drops records without touching the broker", func(t *testing.T) {
		broker := newFakeBroker()
		breaker := reliability.NewCircuitBreaker(
			reliability.WithFailureThreshold(2),
			reliability.WithTimeout(time.Hour),
		)
		p, err := NewTimingPublisherWithOpener(broker,
			WithoutDeclare(),
			WithCircuitBreaker(breaker),
			WithPublisherOptions(rabbitmq.WithPublishRetries(0)))
		require.NoError(t, err)
		broker.openErr = rabbitmq.ErrConnectionNotReady

		assert.Error(t, p.RecordTiming(context.Background(), sampleRecord()))
		assert.Error(t, p.RecordTiming(context.Background(), sampleRecord()))
		require.Equal(t, reliability.StateOpen, breaker.State())
		opened := broker.opened

		err = p.RecordTiming(context.Background(), sampleRecord())

		assert.ErrorIs(t, err, reliability.ErrCircuitOpen)
		assert.Equal(t, opened, broker.opened)
	})

	t.Run("default breaker is named after the exchange", func(t *testing.T) {
		p, err := NewTimingPublisherWithOpener(newFakeBroker(), WithExchange("perf"))
		require.NoError(t, err)

		assert.Equal(t, "timing:perf", p.breaker.Name())
		assert.Equal(t, reliability.StateClosed, p.breaker.State())
	})

	t.Run("queued records are published by Close", func(t *testing.T) {
		broker := newFakeBroker()
		p, err := NewTimingPublisherWithOpener(broker, WithQueue(8))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, p.RecordTiming(context.Background(), sampleRecord()))
		}
		require.NoError(t, p.Close())

		assert.Len(t, broker.sent, 3)
		assert.Equal(t, "timing.billing.Invoices.Issue", broker.sent[0].key)
	})

	t.Run("queued mode does not wait for the broker", func(t *testing.T) {
		opener := newGatedOpener()
		p, err := NewTimingPublisherWithOpener(opener, WithoutDeclare(), WithQueue(1))
		require.NoError(t, err)

		require.NoError(t, p.RecordTiming(context.Background(), sampleRecord()))
		<-opener.entered
		require.NoError(t, p.RecordTiming(context.Background(), sampleRecord()))

		err = p.RecordTiming(context.Background(), sampleRecord())
		assert.ErrorIs(t, err, ErrQueueFull)

		close(opener.gate)
		require.NoError(t, p.Close())
		assert.Len(t, opener.broker.sent, 2)
	})

	t.Run("records after Close are rejected", func(t *testing.T) {
		p, err := NewTimingPublisherWithOpener(newFakeBroker(), WithQueue(1))
		require.NoError(t, err)
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		err = p.RecordTiming(context.Background(), sampleRecord())
		assert.ErrorIs(t, err, ErrPublisherClosed)
	})

	t.Run("connect failure", func(t *testing.T) {
		_, err := NewTimingPublisher(context.Background(), "invalid://broker")

		var connErr *rabbitmq.ConnectionError
		assert.ErrorAs(t, err, &connErr)
	})
}
