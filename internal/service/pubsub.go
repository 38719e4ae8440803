package service

import (
	"context"

	"cloud.google.com/go/pubsub"
)

// PublishResult represents the result of a Pub/Sub publish operation.
type PublishResult interface {
	Get(context.Context) (string, error)
}

// Topic abstracts the alert topic so the alerter can be tested without a
// broker.
type Topic interface {
	Publish(context.Context, *pubsub.Message) PublishResult
}

// NewTopicAdapter wraps a pubsub.Topic so it satisfies the Topic interface.
func NewTopicAdapter(t *pubsub.Topic) Topic {
	if t == nil {
		return nil
	}
	return &topicAdapter{t}
}

type topicAdapter struct{ *pubsub.Topic }

func (t *topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	return t.Topic.Publish(ctx, msg)
}
