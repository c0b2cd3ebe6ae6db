// Package pubsub implements the message channel on Google Cloud Pub/Sub.
// Each job-type queue maps to one topic plus one durable subscription, giving
// at-least-once delivery with manual acknowledgment.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub/v2"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// Config identifies the Pub/Sub project and subscription naming.
type Config struct {
	ProjectID string
	// SubscriptionPrefix is prepended to the queue name to form the
	// subscription ID, e.g. "scrapejobs" + "-" + "scrape-team-stats".
	SubscriptionPrefix string
}

// Broker implements scraping.TaskPublisher and scraping.TaskConsumer.
type Broker struct {
	client *pubsub.Client
	cfg    Config

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// New creates a Pub/Sub client using Application Default Credentials.
func New(ctx context.Context, cfg Config) (*Broker, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Broker{
		client:     client,
		cfg:        cfg,
		publishers: make(map[string]*pubsub.Publisher),
	}, nil
}

func (b *Broker) publisher(queue string) *pubsub.Publisher {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.publishers[queue]
	if !ok {
		p = b.client.Publisher(queue)
		b.publishers[queue] = p
	}
	return p
}

// Publish sends the task to the queue's topic and waits for the server
// acknowledgment, so a broker outage fails the call instead of being deferred
// to a background flush.
func (b *Broker) Publish(ctx context.Context, queue string, task scraping.TaskMessage) error {
	data, err := json.Marshal(task)
	if err != nil {
		return &scraping.PublishError{Queue: queue, Err: fmt.Errorf("marshal task: %w", err)}
	}
	result := b.publisher(queue).Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return &scraping.PublishError{Queue: queue, Err: err}
	}
	return nil
}

// Receive consumes the queue's subscription until ctx ends. Malformed
// payloads are acked and dropped; they can never become runnable jobs.
func (b *Broker) Receive(
	ctx context.Context,
	queue string,
	handle func(context.Context, scraping.TaskDelivery),
) error {
	subID := queue
	if b.cfg.SubscriptionPrefix != "" {
		subID = b.cfg.SubscriptionPrefix + "-" + queue
	}
	sub := b.client.Subscriber(subID)
	err := sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var task scraping.TaskMessage
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			msg.Ack()
			return
		}
		handle(msgCtx, scraping.TaskDelivery{
			Task: task,
			Ack:  msg.Ack,
			Nack: msg.Nack,
		})
	})
	if err != nil {
		return fmt.Errorf("receive on %q: %w", subID, err)
	}
	return nil
}

// Close stops all publishers and closes the client connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	for _, p := range b.publishers {
		p.Stop()
	}
	b.mu.Unlock()
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
