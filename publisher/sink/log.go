package sink

import (
	"encoding/json"

	"github.com/maxpert/statusbridge/cfg"
	"github.com/maxpert/statusbridge/publisher"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	publisher.RegisterSink("log", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		return NewLogSink(log.Logger.With().Str("sink", config.Name).Logger()), nil
	})
}

// LogSink writes each record to a zerolog logger
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the record; JSON payloads are embedded, others hex encoded
func (l *LogSink) Publish(topic, key string, value []byte) error {
	ev := l.logger.Info().Str("topic", topic).Str("key", key)
	if json.Valid(value) {
		ev = ev.RawJSON("record", value)
	} else {
		ev = ev.Hex("record", value)
	}
	ev.Msg("Replication status")
	return nil
}

// Close is a no-op for LogSink
func (l *LogSink) Close() error {
	return nil
}
