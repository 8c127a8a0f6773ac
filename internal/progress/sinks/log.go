package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/progress"
)

// LogSink writes progress events as structured logs. Item events log at debug
// so long runs stay readable; stats and lifecycle events log at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageItemDone:
			fields = append(fields,
				zap.Int64("item_id", evt.ItemID),
				zap.String("outcome", evt.Outcome),
				zap.String("status", evt.Status.String()),
				zap.Bool("filtered", evt.Filtered),
				zap.Int("consecutive_failures", evt.Failures),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("progress event", fields...)
			continue
		case progress.StageCooldown:
			fields = append(fields, zap.Duration("cooldown", evt.Dur))
		case progress.StageStats, progress.StageRunDone:
			fields = append(fields,
				zap.Int64("total", evt.Stats.Total),
				zap.Int64("pending", evt.Stats.Pending),
				zap.Int64("games", evt.Stats.Games),
				zap.Int64("not_games", evt.Stats.NotGames),
				zap.Int64("failed", evt.Stats.Failed),
				zap.Int64("filtered", evt.Stats.Filtered),
				zap.Float64("progress_pct", evt.Stats.Progress()),
				zap.Duration("dur", evt.Dur),
			)
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
