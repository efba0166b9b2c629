package publisher

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/statusbridge/bridge"
	"github.com/maxpert/statusbridge/cfg"
	"github.com/maxpert/statusbridge/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSinksMu sync.Mutex
	testSinks   = map[string]*recordingSink{}
)

func init() {
	RegisterSink("test", func(config cfg.SinkConfiguration) (Sink, error) {
		testSinksMu.Lock()
		defer testSinksMu.Unlock()
		s := &recordingSink{}
		testSinks[config.Name] = s
		return s, nil
	})
	RegisterSink("gated", func(config cfg.SinkConfiguration) (Sink, error) {
		testSinksMu.Lock()
		defer testSinksMu.Unlock()
		s := &recordingSink{gate: make(chan struct{})}
		testSinks[config.Name] = s
		return s, nil
	})
}

func testSink(name string) *recordingSink {
	testSinksMu.Lock()
	defer testSinksMu.Unlock()
	return testSinks[name]
}

func newTestRegistry(t *testing.T, b *bridge.StatusBridge, filter []string, names ...string) *Registry {
	t.Helper()

	sinks := make([]cfg.SinkConfiguration, 0, len(names))
	for _, name := range names {
		sinks = append(sinks, cfg.SinkConfiguration{Name: name, Type: "test", Format: "msgpack"})
	}

	reg, err := NewRegistry(RegistryConfig{
		NodeID:       7,
		Source:       b,
		BufferSize:   16,
		TopicPrefix:  "replication.status",
		FilterTokens: filter,
		SinkConfigs:  sinks,
		RetryInitial: time.Millisecond,
		MaxRetries:   2,
	})
	require.NoError(t, err)
	return reg
}

func decodedTokens(t *testing.T, sink *recordingSink) []string {
	t.Helper()
	var tokens []string
	for _, m := range sink.snapshot() {
		rec, err := DecodeMsgpack(m.value)
		require.NoError(t, err)
		tokens = append(tokens, rec.Token)
	}
	return tokens
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{})
	assert.Error(t, err, "source required")

	_, err = NewRegistry(RegistryConfig{
		Source:      bridge.New(),
		SinkConfigs: []cfg.SinkConfiguration{{Name: "x", Type: "carrier-pigeon", Format: "json"}},
	})
	assert.Error(t, err, "unknown sink type")

	_, err = NewRegistry(RegistryConfig{
		Source:      bridge.New(),
		SinkConfigs: []cfg.SinkConfiguration{{Name: "bad-format", Type: "test", Format: "xml"}},
	})
	assert.Error(t, err, "unknown format")
	assert.True(t, testSink("bad-format").isClosed(), "sink closed on transformer failure")

	_, err = NewRegistry(RegistryConfig{
		Source:       bridge.New(),
		FilterTokens: []string{"[oops"},
	})
	assert.Error(t, err, "invalid filter")
}

func TestRegistry_RelaysInOrder(t *testing.T) {
	b := bridge.New()
	reg := newTestRegistry(t, b, nil, "relay-a", "relay-b")
	require.NoError(t, reg.Start())
	defer reg.Stop()

	assert.True(t, b.Active())

	b.OnChange(status.Idle, nil)
	b.OnChange(status.Busy, nil)
	b.OnChange(status.Busy, status.NewReplicationError(5, "lag"))
	b.OnChange(status.Connecting, nil)

	want := []string{"IDLE", "BUSY", ErrorToken, "CONNECTING"}
	for _, name := range []string{"relay-a", "relay-b"} {
		sink := testSink(name)
		require.Eventually(t, func() bool { return len(sink.snapshot()) == len(want) }, time.Second, time.Millisecond)
		assert.Equal(t, want, decodedTokens(t, sink), name)

		msgs := sink.snapshot()
		assert.Equal(t, "replication.status", msgs[0].topic)
		assert.Equal(t, "7", msgs[0].key)

		rec, err := DecodeMsgpack(msgs[2].value)
		require.NoError(t, err)
		require.NotNil(t, rec.Error)
		assert.Equal(t, status.ErrorCategory, rec.Error.Category)
		assert.Equal(t, "lag", rec.Error.Message)
		assert.Equal(t, 5, rec.Error.Code)
	}

	require.Eventually(t, func() bool {
		last, ok := reg.Last()
		return ok && last.Seq == 4
	}, time.Second, time.Millisecond)
	last, _ := reg.Last()
	assert.Equal(t, "CONNECTING", last.Token)
}

func TestRegistry_Filter(t *testing.T) {
	b := bridge.New()
	reg := newTestRegistry(t, b, []string{"ERROR", "OFF*"}, "filtered")
	require.NoError(t, reg.Start())
	defer reg.Stop()

	b.OnChange(status.Idle, nil)
	b.OnChange(status.Offline, nil)
	b.OnChange(status.Busy, nil)
	b.OnChange(status.Busy, status.NewReplicationError(1, "boom"))

	sink := testSink("filtered")
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"OFFLINE", ErrorToken}, decodedTokens(t, sink))
}

func TestRegistry_LastEmpty(t *testing.T) {
	reg := newTestRegistry(t, bridge.New(), nil)
	_, ok := reg.Last()
	assert.False(t, ok)
	assert.Equal(t, 0, reg.QueueLen())
	reg.Stop()
}

func TestRegistry_Lifecycle(t *testing.T) {
	b := bridge.New()
	reg := newTestRegistry(t, b, nil, "lifecycle")

	require.NoError(t, reg.Start())
	assert.Error(t, reg.Start(), "double start")
	assert.Error(t, reg.AddSink(cfg.SinkConfiguration{Name: "late", Type: "test", Format: "json"}))

	reg.Stop()
	reg.Stop()

	assert.Error(t, reg.AddSink(cfg.SinkConfiguration{Name: "after-stop", Type: "test", Format: "json"}))
	assert.False(t, b.Active(), "stop unsubscribes")
	assert.True(t, testSink("lifecycle").isClosed())
	assert.Error(t, reg.Start(), "start after stop")

	// Events after stop are dropped by the bridge
	b.OnChange(status.Idle, nil)
	assert.Empty(t, testSink("lifecycle").snapshot())
}

func TestRegistry_ReplacedSubscription(t *testing.T) {
	b := bridge.New()
	reg := newTestRegistry(t, b, nil, "replaced")
	require.NoError(t, reg.Start())

	b.OnChange(status.Idle, nil)
	sink := testSink("replaced")
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)

	// Another consumer takes the slot
	events, h := b.SubscribeChan(4)
	defer b.Unsubscribe(h)

	b.OnChange(status.Busy, nil)
	select {
	case ev := <-events:
		assert.Equal(t, "BUSY", ev.Token)
	case <-time.After(time.Second):
		t.Fatal("new subscriber did not receive event")
	}

	// Stop must not detach the newer subscriber
	reg.Stop()
	assert.True(t, b.Active())
	assert.Len(t, sink.snapshot(), 1)
}

func TestRegistry_QueueLenDuringStop(t *testing.T) {
	b := bridge.New()
	reg, err := NewRegistry(RegistryConfig{
		Source:      b,
		BufferSize:  4,
		SinkConfigs: []cfg.SinkConfiguration{{Name: "slow", Type: "gated", Format: "json"}},
	})
	require.NoError(t, err)
	require.NoError(t, reg.Start())

	b.OnChange(status.Idle, nil)
	b.OnChange(status.Busy, nil)

	sink := testSink("slow")
	require.Eventually(t, func() bool { return sink.attemptCount() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		reg.Stop()
		close(stopped)
	}()

	// Stop is now draining behind the blocked publish
	require.Eventually(t, func() bool { return !b.Active() }, time.Second, time.Millisecond)

	depth := make(chan int, 1)
	go func() { depth <- reg.QueueLen() }()

	select {
	case n := <-depth:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("QueueLen blocked while Stop was draining")
	}

	close(sink.gate)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, []string{"IDLE", "BUSY"}, jsonTokens(t, sink))
	assert.True(t, sink.isClosed())
}

func jsonTokens(t *testing.T, sink *recordingSink) []string {
	t.Helper()
	var tokens []string
	for _, m := range sink.snapshot() {
		var rec Record
		require.NoError(t, json.Unmarshal(m.value, &rec))
		tokens = append(tokens, rec.Token)
	}
	return tokens
}
