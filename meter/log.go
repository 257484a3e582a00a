package meter

import (
	"log/slog"

	"github.com/ineyio/chatrelay"
)

// LogMeter logs relay events using slog. Upstream error detail stays here,
// server-side; the client only ever sees the generic ErrorEvent message.
type LogMeter struct {
	Logger *slog.Logger
}

var _ chatrelay.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnStage(e chatrelay.StageEvent) {
	attrs := []any{
		"request_id", e.RequestID,
		"stage", e.Stage,
		"provider", e.Provider,
		"model", e.Model,
		"elapsed_ms", e.ElapsedMS,
	}
	if e.EstimatedTokens > 0 {
		attrs = append(attrs, "estimated_tokens", e.EstimatedTokens)
	}
	m.Logger.Debug("stage", attrs...)
}

func (m *LogMeter) OnResult(e chatrelay.ResultEvent) {
	if e.Success {
		m.Logger.Info("stream_complete",
			"request_id", e.RequestID,
			"provider", e.Provider,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"first_chunk_ms", e.FirstChunkLatency.Milliseconds(),
			"chunks", e.Chunks,
			"input_tokens", e.Usage.InputTokens,
			"output_tokens", e.Usage.OutputTokens,
			"tokens_per_second", e.TokensPerSecond,
		)
	} else {
		m.Logger.Warn("stream_failed",
			"request_id", e.RequestID,
			"provider", e.Provider,
			"model", e.Model,
			"kind", string(e.Kind),
			"duration_ms", e.Duration.Milliseconds(),
			"chunks", e.Chunks,
			"error", e.Err,
		)
	}
}
