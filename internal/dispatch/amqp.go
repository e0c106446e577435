// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDispatcher publishes events to a durable RabbitMQ queue on the
// default exchange.
type AMQPDispatcher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPDispatcher dials the broker and declares the target queue.
func NewAMQPDispatcher(url, queue string) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp_dial_failed: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp_channel_failed: %w", err)
	}

	_, err = channel.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp_queue_declare_failed: %w", err)
	}

	return &AMQPDispatcher{conn: conn, channel: channel, queue: queue}, nil
}

// Close releases the channel and connection.
func (d *AMQPDispatcher) Close() {
	if d == nil {
		return
	}
	if d.channel != nil {
		_ = d.channel.Close()
	}
	if d.conn != nil {
		_ = d.conn.Close()
	}
}

// Dispatch publishes the event as a persistent JSON message.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return d.channel.PublishWithContext(ctx,
		"",      // default exchange
		d.queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}
