// Package sinks provides ready-made progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/progress"
)

// LogSink writes progress events to a structured logger. Failure stages are
// logged at warn level, everything else at debug so steady-state runs stay
// quiet.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink backed by logger. A nil logger falls back to
// a no-op logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, events []progress.Event) error {
	for _, evt := range events {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Market != "" {
			fields = append(fields, zap.String("market", evt.Market))
		}
		if evt.Term != "" {
			fields = append(fields, zap.String("term", evt.Term))
		}
		if evt.Round > 0 {
			fields = append(fields, zap.Int("round", evt.Round))
		}
		if evt.Outcome != "" {
			fields = append(fields, zap.String("outcome", evt.Outcome))
		}
		if evt.Added > 0 {
			fields = append(fields, zap.Int("added", evt.Added))
		}
		if evt.Total > 0 {
			fields = append(fields, zap.Int("total", evt.Total))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("duration", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageRunError:
			s.logger.Warn("harvest progress", fields...)
		case progress.StageRunStart, progress.StageRunDone:
			s.logger.Info("harvest progress", fields...)
		default:
			s.logger.Debug("harvest progress", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink. The logger is owned by the caller, so
// there is nothing to release.
func (s *LogSink) Close(context.Context) error {
	return nil
}
