package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/statusbridge/bridge"
	"github.com/maxpert/statusbridge/cfg"
	"github.com/maxpert/statusbridge/status"
	"github.com/maxpert/statusbridge/telemetry"
	"github.com/rs/zerolog/log"
)

// Source is the consumer face of the status bridge
type Source interface {
	Subscribe(sink bridge.Sink) bridge.Handle
	Unsubscribe(h bridge.Handle)
}

// RegistryConfig configures the status relay
type RegistryConfig struct {
	NodeID       uint64
	Source       Source                  // Bridge to subscribe to
	BufferSize   int                     // Channel sink capacity
	TopicPrefix  string                  // Topic or subject for every sink
	FilterTokens []string                // Glob patterns over tokens
	SinkConfigs  []cfg.SinkConfiguration // From config

	// Per-sink retry policy, see WorkerConfig
	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryMultiplier float64
	MaxRetries      int
}

// Registry is the application-layer consumer of the bridge. It holds the
// bridge's single subscription and relays every event, in order, to all
// configured sinks.
//
// A Registry is started once and stopped once.
type Registry struct {
	config  RegistryConfig
	filter  Filter
	workers []*Worker
	sink    *bridge.ChannelSink
	handle  bridge.Handle
	seq     atomic.Uint64
	running atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex

	lastMu sync.RWMutex
	last   *Record
}

// NewRegistry creates a relay with one worker per sink configuration
func NewRegistry(config RegistryConfig) (*Registry, error) {
	// Validate config
	if config.Source == nil {
		return nil, fmt.Errorf("status source is required")
	}

	filter, err := NewGlobFilter(config.FilterTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	registry := &Registry{
		config:  config,
		filter:  filter,
		workers: make([]*Worker, 0, len(config.SinkConfigs)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	// Create workers for each sink configuration
	for _, sinkCfg := range config.SinkConfigs {
		if err := registry.AddSink(sinkCfg); err != nil {
			registry.closeSinks()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
	}

	log.Info().
		Int("sinks", len(registry.workers)).
		Msg("Status publisher registry initialized")

	return registry, nil
}

// AddSink creates and adds a new worker for the given sink configuration.
// Sinks must be added before Start.
func (r *Registry) AddSink(config cfg.SinkConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return fmt.Errorf("cannot add sink while running")
	}
	if r.stopped.Load() {
		return fmt.Errorf("cannot add sink after stop")
	}

	// Create sink based on config.Type
	snk, err := createSink(config)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	// Create transformer based on config.Format (stateless, no cleanup needed)
	trans, err := createTransformer(config.Format)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	worker, err := NewWorker(WorkerConfig{
		Name:            config.Name,
		Sink:            snk,
		Transformer:     trans,
		Topic:           r.config.TopicPrefix,
		RetryInitial:    r.config.RetryInitial,
		RetryMax:        r.config.RetryMax,
		RetryMultiplier: r.config.RetryMultiplier,
		MaxRetries:      r.config.MaxRetries,
	}, r.stopCh)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create worker: %w", err)
	}

	r.workers = append(r.workers, worker)

	log.Info().
		Str("sink", config.Name).
		Str("type", config.Type).
		Str("format", config.Format).
		Msg("Added status sink")

	return nil
}

// Start subscribes to the source and begins relaying
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped.Load() {
		return fmt.Errorf("registry already stopped")
	}
	if r.running.Load() {
		return fmt.Errorf("registry already running")
	}

	r.sink = bridge.NewChannelSink(r.config.BufferSize)
	r.handle = r.config.Source.Subscribe(r.sink)
	r.running.Store(true)

	log.Info().
		Int("sinks", len(r.workers)).
		Uint64("handle", uint64(r.handle)).
		Msg("Starting status publisher")

	go r.relayLoop(r.sink.Events())

	return nil
}

// Stop unsubscribes, drains buffered events and closes all sinks.
// The lock is released while the relay drains so QueueLen stays responsive.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped.Swap(true) {
		r.mu.Unlock()
		return // Already stopped
	}

	wasRunning := r.running.Swap(false)
	if wasRunning {
		log.Info().Msg("Stopping status publisher")

		// Unsubscribe closes the channel; the loop drains what is buffered
		// and pending retries give up
		close(r.stopCh)
		r.config.Source.Unsubscribe(r.handle)
		r.sink.Close()
	}
	r.mu.Unlock()

	if wasRunning {
		<-r.doneCh
	}

	r.closeSinks()

	log.Info().Msg("Status publisher stopped")
}

// QueueLen returns the number of events waiting to be relayed
func (r *Registry) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return 0
	}
	return r.sink.Len()
}

// Last returns the most recently relayed record
func (r *Registry) Last() (Record, bool) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.last == nil {
		return Record{}, false
	}
	return *r.last, true
}

func (r *Registry) relayLoop(events <-chan status.Event) {
	defer close(r.doneCh)

	for event := range events {
		r.relay(event)
	}

	select {
	case <-r.stopCh:
	default:
		// Channel closed by someone else: the bridge gave our slot to a newer subscriber
		log.Warn().Uint64("handle", uint64(r.handle)).Msg("Status subscription ended, publisher idle")
	}
}

func (r *Registry) relay(event status.Event) {
	rec := NewRecord(r.seq.Add(1), r.config.NodeID, event, time.Now())

	if !r.filter.Match(rec.Token) {
		telemetry.PublishFilteredTotal.Inc()
		return
	}

	for _, worker := range r.workers {
		if err := worker.Process(rec); err != nil {
			log.Error().
				Err(err).
				Str("sink", worker.Name()).
				Uint64("seq", rec.Seq).
				Str("token", rec.Token).
				Msg("Failed to publish status record")
		}
	}

	r.lastMu.Lock()
	r.last = &rec
	r.lastMu.Unlock()
}

func (r *Registry) closeSinks() {
	for _, worker := range r.workers {
		if err := worker.config.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", worker.Name()).Msg("Failed to close sink")
		}
	}
}

// createSink creates a sink based on the configuration
func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

// TransformerFactory is a function that creates a Transformer
type TransformerFactory func() Transformer

var (
	sinkFactories        = make(map[string]SinkFactory)
	transformerFactories = make(map[string]TransformerFactory)
	factoryMu            sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// RegisterTransformer registers a transformer factory for a format
func RegisterTransformer(format string, factory TransformerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	transformerFactories[format] = factory
}

// createTransformer creates a transformer based on the format
func createTransformer(format string) (Transformer, error) {
	factoryMu.RLock()
	factory, exists := transformerFactories[format]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown format: %s", format)
	}

	return factory(), nil
}
