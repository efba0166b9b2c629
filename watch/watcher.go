package watch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/statusbridge/status"
	"github.com/maxpert/statusbridge/telemetry"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	// Default interval between health probes while the channel is ready
	DefaultHealthInterval = 2 * time.Second
	// Default timeout of a single health probe
	DefaultHealthTimeout = time.Second
)

// Config configures a ConnWatcher
type Config struct {
	Target         string            // gRPC target of the replication peer
	HealthService  string            // Service name for grpc.health.v1 ("" = whole server)
	HealthInterval time.Duration     // Probe interval while Ready
	HealthTimeout  time.Duration     // Per-probe timeout
	DialOptions    []grpc.DialOption // Defaults to insecure transport credentials
}

// LevelFromConnectivity maps a channel state to an activity level.
// Idle has no level: the watcher asks the channel to connect instead.
func LevelFromConnectivity(state connectivity.State) (status.ActivityLevel, bool) {
	switch state {
	case connectivity.Connecting:
		return status.Connecting, true
	case connectivity.Ready:
		return status.Idle, true
	case connectivity.TransientFailure:
		return status.Offline, true
	case connectivity.Shutdown:
		return status.Stopped, true
	default:
		return 0, false
	}
}

// ConnWatcher observes a gRPC connection to an upstream replication peer and
// reports activity changes to a listener from its own goroutine.
//
// While the channel is Ready a periodic health check refines the level:
// SERVING is Idle, anything else is Busy (the peer is up but catching up).
// A failed check is reported as an error carrying the gRPC status code.
// Repeated identical levels and repeated identical error codes are reported once.
type ConnWatcher struct {
	config   Config
	listener status.ChangeListener
	conn     *grpc.ClientConn
	health   healthpb.HealthClient

	// Owned by the run goroutine, and by Stop once it has exited
	last        status.ActivityLevel
	hasLast     bool
	lastErrCode int
	erroring    bool

	cancel      context.CancelFunc
	doneCh      chan struct{}
	running     atomic.Bool
	stopped     bool // guarded by lifecycleMu
	lifecycleMu sync.Mutex
}

// NewConnWatcher creates a watcher; no connection is attempted until Start.
func NewConnWatcher(config Config, listener status.ChangeListener) (*ConnWatcher, error) {
	if config.Target == "" {
		return nil, fmt.Errorf("watch target is required")
	}
	if listener == nil {
		return nil, fmt.Errorf("change listener is required")
	}

	if config.HealthInterval <= 0 {
		config.HealthInterval = DefaultHealthInterval
	}
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = DefaultHealthTimeout
	}
	if len(config.DialOptions) == 0 {
		config.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		}
	}

	conn, err := grpc.NewClient(config.Target, config.DialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", config.Target, err)
	}

	return &ConnWatcher{
		config:   config,
		listener: listener,
		conn:     conn,
		health:   healthpb.NewHealthClient(conn),
	}, nil
}

// Start begins watching. It is a no-op if already running or stopped.
func (w *ConnWatcher) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.stopped {
		log.Warn().Str("target", w.config.Target).Msg("Upstream watcher already stopped, not restarting")
		return
	}
	if w.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.running.Store(true)

	log.Info().
		Str("target", w.config.Target).
		Str("health_service", w.config.HealthService).
		Dur("health_interval", w.config.HealthInterval).
		Msg("Starting upstream watcher")

	go w.run(ctx)
}

// Stop ends watching, closes the connection and reports Stopped.
// A stopped watcher cannot be restarted.
func (w *ConnWatcher) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Swap(false) {
		return
	}
	w.stopped = true

	w.cancel()
	<-w.doneCh

	if err := w.conn.Close(); err != nil {
		log.Warn().Err(err).Str("target", w.config.Target).Msg("Failed to close upstream connection")
	}
	w.report(status.Stopped, nil)

	log.Info().Str("target", w.config.Target).Msg("Upstream watcher stopped")
}

func (w *ConnWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	stateCh := make(chan connectivity.State)
	go w.watchState(ctx, stateCh)

	ticker := time.NewTicker(w.config.HealthInterval)
	defer ticker.Stop()

	ready := false
	for {
		select {
		case <-ctx.Done():
			return

		case state := <-stateCh:
			log.Debug().Str("target", w.config.Target).Str("state", state.String()).Msg("Upstream connectivity changed")

			ready = state == connectivity.Ready
			if state == connectivity.Idle {
				w.conn.Connect()
				continue
			}
			if level, ok := LevelFromConnectivity(state); ok {
				w.report(level, nil)
			}
			if state == connectivity.Shutdown {
				return
			}
			if ready {
				w.probe(ctx)
			}

		case <-ticker.C:
			if ready {
				w.probe(ctx)
			}
		}
	}
}

// watchState forwards every connectivity transition in order.
func (w *ConnWatcher) watchState(ctx context.Context, out chan<- connectivity.State) {
	state := w.conn.GetState()
	for {
		select {
		case out <- state:
		case <-ctx.Done():
			return
		}
		if !w.conn.WaitForStateChange(ctx, state) {
			return
		}
		state = w.conn.GetState()
	}
}

func (w *ConnWatcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.config.HealthTimeout)
	defer cancel()

	start := time.Now()
	resp, err := w.health.Check(probeCtx, &healthpb.HealthCheckRequest{Service: w.config.HealthService})
	telemetry.HealthCheckSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		st := grpcstatus.Convert(err)
		w.report(w.last, status.NewReplicationError(int(st.Code()), st.Message()))
		return
	}

	if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
		w.report(status.Idle, nil)
	} else {
		w.report(status.Busy, nil)
	}
}

func (w *ConnWatcher) report(level status.ActivityLevel, err error) {
	if err != nil {
		code := status.NewErrorNotification(err).Code
		if w.erroring && w.lastErrCode == code {
			return
		}
		w.erroring = true
		w.lastErrCode = code
		// Next successful level is reported even if unchanged
		w.hasLast = false

		telemetry.WatchErrorsTotal.Inc()
		log.Warn().Err(err).Str("target", w.config.Target).Msg("Upstream health check failed")
	} else {
		if w.hasLast && w.last == level {
			return
		}
		w.last = level
		w.hasLast = true
		w.erroring = false
		setLevelGauge(level)

		log.Debug().Str("target", w.config.Target).Stringer("level", level).Msg("Upstream activity level changed")
	}

	w.listener.Changed(status.Change{Level: level, Err: err})
}

func setLevelGauge(level status.ActivityLevel) {
	for _, l := range []status.ActivityLevel{status.Busy, status.Idle, status.Offline, status.Stopped, status.Connecting} {
		v := 0.0
		if l == level {
			v = 1
		}
		telemetry.WatchLevel.With(l.String()).Set(v)
	}
}
