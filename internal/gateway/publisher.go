package gateway

import "log/slog"

// Publisher sends a reading body to a topic.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// RetainedPublisher sends state the broker should keep for late subscribers.
type RetainedPublisher interface {
	PublishRetained(topic string, body []byte) error
}

// DryRunPublisher logs what would be published.
type DryRunPublisher struct {
	Logger *slog.Logger
}

func (p DryRunPublisher) Publish(topic string, body []byte) error {
	p.logger().Info("dry run: publish", "topic", topic, "body", string(body))
	return nil
}

func (p DryRunPublisher) PublishRetained(topic string, body []byte) error {
	p.logger().Info("dry run: publish retained", "topic", topic, "body", string(body))
	return nil
}

func (p DryRunPublisher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
