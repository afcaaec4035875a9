// Package pubsub implements a Google Cloud Pub/Sub publisher. All
// notification channels share one topic; the channel name travels as a
// message attribute so subscribers can filter.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Connect opens a Pub/Sub client and returns a Publisher plus a close
// function for the underlying client.
func Connect(ctx context.Context, projectID, topicName string) (*Publisher, func() error, error) {
	if projectID == "" || topicName == "" {
		return nil, nil, fmt.Errorf("pubsub project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	pub := New(topic)
	closeFn := func() error {
		topic.Stop()
		return client.Close()
	}
	return pub, closeFn, nil
}

// Publish marshals the payload to JSON and publishes it with the channel name
// as an attribute.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"channel": channel},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
