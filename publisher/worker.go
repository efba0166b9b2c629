package publisher

import (
	"fmt"
	"strconv"
	"time"

	"github.com/maxpert/statusbridge/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of attempts before a record is given up for a sink
	DefaultMaxRetries = 10
	// Topic used when no prefix is configured
	DefaultTopic = "status"
)

// WorkerConfig configures publishing to one sink
type WorkerConfig struct {
	Name            string        // Sink name (for logs and metrics)
	Sink            Sink          // Destination sink
	Transformer     Transformer   // Record encoder
	Topic           string        // Topic or subject (e.g., "replication.status")
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum attempts per record
}

// Worker encodes records and publishes them to a sink with retry.
// Records are keyed by node id so partitioned sinks keep per-node order.
type Worker struct {
	config WorkerConfig
	stopCh <-chan struct{}
}

// NewWorker creates a worker; stopCh aborts in-progress retries when closed
func NewWorker(config WorkerConfig, stopCh <-chan struct{}) (*Worker, error) {
	// Validate config
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}

	// Set defaults
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	return &Worker{config: config, stopCh: stopCh}, nil
}

// Name returns the sink name
func (w *Worker) Name() string {
	return w.config.Name
}

// Process encodes and publishes a single record
func (w *Worker) Process(rec Record) error {
	data, err := w.config.Transformer.Transform(rec)
	if err != nil {
		return fmt.Errorf("failed to transform record %d: %w", rec.Seq, err)
	}

	key := strconv.FormatUint(rec.NodeID, 10)
	return w.publishWithRetry(w.config.Topic, key, data)
}

// publishWithRetry publishes data with exponential backoff retry
// Returns error if max retries exhausted or worker stopped
func (w *Worker) publishWithRetry(topic, key string, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		start := time.Now()
		err := w.config.Sink.Publish(topic, key, data)
		if err == nil {
			telemetry.PublishSeconds.Observe(time.Since(start).Seconds())
			telemetry.PublishedTotal.With(w.config.Name).Inc()
			return nil
		}

		attempts++
		telemetry.PublishFailuresTotal.With(w.config.Name).Inc()

		if attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("sink", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish status record, retrying")

		// Sleep with stop check
		if !w.sleep(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		// Exponential backoff
		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// sleep sleeps for the given duration, checking stopCh
// Returns true if sleep completed, false if stopped
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
