// Package rabbitmq provides the RabbitMQ plumbing used to ship timing records
// off the process.
//
// This package includes:
//   - ConnectionManager: Manages a RabbitMQ connection with automatic reconnection
//   - Publisher: Publishes messages with publisher confirms and retries
//
// Both sides talk to the broker through the narrow Channel interface, which
// *amqp.Channel satisfies, so publishing can be exercised without a broker.
package rabbitmq
