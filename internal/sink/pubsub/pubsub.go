// Package pubsub publishes harvest output to a Google Cloud Pub/Sub topic
// as JSON messages: one per record, plus the aggregate report on flush.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub"

	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/report"
)

// Config identifies the destination topic.
type Config struct {
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	TopicID   string `mapstructure:"topic_id" yaml:"topic_id"`
}

// Sink publishes records and reports to one topic. Message attributes carry
// the payload kind, market, and run ID so subscribers can filter without
// decoding bodies.
type Sink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a Pub/Sub client, verifies the topic exists, and returns a
// ready Sink. It authenticates using Application Default Credentials.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic: %w", err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}
	return &Sink{client: client, topic: topic}, nil
}

// NewWithTopic wraps an existing topic handle (primarily for testing). The
// caller keeps ownership of the client.
func NewWithTopic(topic *pubsub.Topic) *Sink {
	return &Sink{topic: topic}
}

// Publish sends one record and waits for the server acknowledgement so
// delivery failures surface to the caller.
func (s *Sink) Publish(ctx context.Context, rec harvest.Record) error {
	if s == nil || s.topic == nil {
		return fmt.Errorf("pubsub sink is not configured")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":   "record",
			"market": rec.Market,
		},
	}
	if runID := harvest.RunIDFrom(ctx); runID != "" {
		msg.Attributes["run_id"] = runID
	}
	if _, err := s.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Flush publishes the aggregate report as a single message.
func (s *Sink) Flush(ctx context.Context, rep *report.Report) error {
	if s == nil || s.topic == nil {
		return fmt.Errorf("pubsub sink is not configured")
	}
	if rep == nil {
		return nil
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":   "report",
			"run_id": rep.Summary.RunID,
		},
	}
	if _, err := s.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// Close stops the topic's publish goroutines and closes the client when the
// Sink owns it.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	if s.topic != nil {
		s.topic.Stop()
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
