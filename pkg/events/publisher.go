package events

import "context"

// EventPublisher publishes feature change events.
type EventPublisher interface {
	PublishFeatureChanged(ctx context.Context, event *FeatureChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (broadcast disabled).
type NoOpPublisher struct{}

// PublishFeatureChanged is a no-op.
func (p *NoOpPublisher) PublishFeatureChanged(_ context.Context, _ *FeatureChangedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *FeatureChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *FeatureChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishFeatureChanged calls the callback.
func (p *CallbackPublisher) PublishFeatureChanged(ctx context.Context, event *FeatureChangedEvent) error {
	return p.callback(ctx, event)
}
