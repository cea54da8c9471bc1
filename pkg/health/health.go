// Package health periodically probes every backend node and publishes
// UP/DOWN transitions on an events.Bus. The Monitor itself does not
// schedule anything; an external Loop (or any other cooperative driver)
// calls RunCheck on an interval, following the teacher's ticker+stopCh
// idiom for long-running background tasks.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/events"
)

type observed string

const (
	unknown observed = "UNKNOWN"
	up       observed = "UP"
	down     observed = "DOWN"
)

// DefaultTimeout is the bounded deadline for a single probe when the
// caller does not configure one.
const DefaultTimeout = 2 * time.Second

// Monitor tracks the last observed status of each node and emits a
// StatusEvent only when a probe's result differs from it.
type Monitor struct {
	mu         sync.Mutex
	order      []string
	executors  map[string]backend.Executor
	lastStatus map[string]observed

	timeout time.Duration
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewMonitor creates a Monitor publishing transitions on bus. timeout
// bounds each probe; probes exceeding it are treated as DOWN.
func NewMonitor(bus *events.Bus, timeout time.Duration, logger zerolog.Logger) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		executors:  make(map[string]backend.Executor),
		lastStatus: make(map[string]observed),
		timeout:    timeout,
		bus:        bus,
		logger:     logger.With().Str("component", "health").Logger(),
	}
}

// AddNode registers a node to be probed. Status starts UNKNOWN.
func (m *Monitor) AddNode(name string, executor backend.Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.executors[name]; !exists {
		m.order = append(m.order, name)
		m.lastStatus[name] = unknown
	}
	m.executors[name] = executor
}

// RunCheck probes every registered node. Probes run concurrently; the
// status update for any single node is atomic and transitions are
// published in the order their probes complete.
func (m *Monitor) RunCheck(ctx context.Context) {
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	executors := make(map[string]backend.Executor, len(names))
	for _, n := range names {
		executors[n] = m.executors[n]
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(names))
	for _, name := range names {
		go func(name string, executor backend.Executor) {
			defer wg.Done()
			m.checkOne(ctx, name, executor)
		}(name, executors[name])
	}
	wg.Wait()
}

func (m *Monitor) checkOne(ctx context.Context, name string, executor backend.Executor) {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	candidate := up
	if err := executor.Ping(cctx); err != nil {
		candidate = down
	}

	m.mu.Lock()
	prev := m.lastStatus[name]
	changed := prev != candidate
	if changed {
		m.lastStatus[name] = candidate
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	status := events.StatusDown
	if candidate == up {
		status = events.StatusUp
	}
	m.logger.Info().Str("node", name).Str("status", string(status)).Msg("node status transition")
	m.bus.Notify(events.StatusEvent{Node: name, Status: status})
}

// Loop drives RunCheck on a fixed interval until Stop is called.
type Loop struct {
	monitor  *Monitor
	interval time.Duration
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// NewLoop builds a Loop that calls monitor.RunCheck every interval.
func NewLoop(monitor *Monitor, interval time.Duration, logger zerolog.Logger) *Loop {
	return &Loop{
		monitor:  monitor,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger.With().Str("component", "health-loop").Logger(),
	}
}

// Start launches the loop's goroutine.
func (l *Loop) Start() {
	go l.run()
}

// Stop signals the loop to exit; it terminates within the current
// iteration.
func (l *Loop) Stop() {
	close(l.stopCh)
}

func (l *Loop) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info().Dur("interval", l.interval).Msg("health loop started")
	for {
		select {
		case <-ticker.C:
			l.monitor.RunCheck(context.Background())
		case <-l.stopCh:
			l.logger.Info().Msg("health loop stopped")
			return
		}
	}
}
