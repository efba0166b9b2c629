package telemetry

import (
	"sync"
	"time"
)

// QueueDepthProvider reports how many events are waiting in a subscriber sink.
type QueueDepthProvider interface {
	QueueLen() int
}

// MetricsCollector periodically samples queue depth into a gauge
type MetricsCollector struct {
	queue    QueueDepthProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(queue QueueDepthProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		queue:    queue,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.queue == nil {
		return
	}
	BridgeSinkQueueDepth.Set(float64(mc.queue.QueueLen()))
}
