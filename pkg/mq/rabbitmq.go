package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
)

// Client carries wake-up hints for due jobs and the dead-letter stream of
// abandoned jobs. The jobs table stays the source of truth: a message only
// tells a worker that a claim attempt is worthwhile.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

const (
	JobsExchange    = "jobs.exchange"
	DLXExchange     = "jobs.dlx"
	DeadLetterQueue = "jobs.dead_letter.queue"
)

// QueueName is the wake-up queue of a job type.
func QueueName(t job.Type) string {
	return fmt.Sprintf("jobs.queue.%s", t)
}

func New(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &Client{conn: conn, ch: ch}, nil
}

// SetupTopology declares all necessary exchanges and queues. Idempotent.
func (c *Client) SetupTopology() error {
	// Main exchange for wake-ups
	if err := c.ch.ExchangeDeclare(JobsExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	// Dead-letter exchange
	if err := c.ch.ExchangeDeclare(DLXExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	// Dead-letter queue for operator review
	if _, err := c.ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := c.ch.QueueBind(DeadLetterQueue, "", DLXExchange, false, nil); err != nil {
		return err
	}

	// One queue per job type for isolation
	for _, jt := range job.Types {
		queueName := QueueName(jt)
		if _, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			return err
		}
		if err := c.ch.QueueBind(queueName, string(jt), JobsExchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}

// PublishReady publishes a wake-up for jobID on the queue of its type.
func (c *Client) PublishReady(ctx context.Context, routingKey, jobID string) error {
	return c.ch.PublishWithContext(ctx,
		JobsExchange, // exchange
		routingKey,   // routing key (matches job type)
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(jobID),
		})
}

// PublishAbandoned sends the final snapshot of an abandoned job to the
// dead-letter queue.
func (c *Client) PublishAbandoned(ctx context.Context, j *job.Job) error {
	body, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encoding abandoned job: %w", err)
	}
	return c.ch.PublishWithContext(ctx,
		DLXExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    j.ID,
			Type:         string(j.Type),
			Body:         body,
		})
}

// ConsumeReady starts consuming wake-ups for a job type. prefetch bounds the
// number of unacknowledged deliveries held by this consumer.
func (c *Client) ConsumeReady(jobType job.Type, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	return c.ch.Consume(
		QueueName(jobType),
		"",    // consumer
		false, // auto-ack is false. We will manually ack.
		false,
		false,
		false,
		nil,
	)
}

func (c *Client) Close() {
	c.ch.Close()
	c.conn.Close()
}
