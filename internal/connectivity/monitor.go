package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"
	"github.com/Jem1004/pklapps-v2-sub000/internal/events"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"

	"github.com/rs/zerolog"
)

// Prober performs one reachability check and reports the round trip.
type Prober interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// Monitor classifies network quality from periodic probes. Callers
// read the cached classification; sampling happens in the background
// or on demand, never on the caller's path.
type Monitor struct {
	prober   Prober
	fast     time.Duration
	slow     time.Duration
	interval time.Duration
	bus      domain.EventPublisher
	logger   *zerolog.Logger

	mu          sync.RWMutex
	status      models.Connectivity
	lastLatency time.Duration
	sampled     bool
}

type Config struct {
	FastThreshold time.Duration
	SlowThreshold time.Duration
	Interval      time.Duration
}

func NewMonitor(prober Prober, cfg Config, bus domain.EventPublisher, logger *zerolog.Logger) *Monitor {
	if cfg.FastThreshold <= 0 {
		cfg.FastThreshold = models.DefaultFastThreshold
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = models.DefaultSlowThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = models.DefaultProbeInterval
	}
	return &Monitor{
		prober:   prober,
		fast:     cfg.FastThreshold,
		slow:     cfg.SlowThreshold,
		interval: cfg.Interval,
		bus:      bus,
		logger:   logger,
		status:   models.ConnectivityOffline,
	}
}

// Status returns the last known classification without blocking.
func (m *Monitor) Status() models.Connectivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SampleNow probes immediately and returns the fresh classification.
// Used right before a submission attempt.
func (m *Monitor) SampleNow(ctx context.Context) models.Connectivity {
	latency, err := m.prober.Probe(ctx)
	status := m.classify(latency, err)
	m.update(status, latency)
	return status
}

// Start runs the fixed-interval sampler until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.logger != nil {
		m.logger.Info().Dur("interval", m.interval).Msg("connectivity monitor started")
		defer m.logger.Info().Msg("connectivity monitor stopped")
	}

	// First sample right away so subscribers are not stuck on the
	// initial OFFLINE default for a full interval.
	m.SampleNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SampleNow(ctx)
		}
	}
}

func (m *Monitor) classify(latency time.Duration, err error) models.Connectivity {
	switch {
	case err != nil:
		return models.ConnectivityOffline
	case latency < m.fast:
		return models.ConnectivityFast
	case latency < m.slow:
		return models.ConnectivitySlow
	default:
		return models.ConnectivityOffline
	}
}

func (m *Monitor) update(status models.Connectivity, latency time.Duration) {
	m.mu.Lock()
	previous := m.status
	first := !m.sampled
	m.status = status
	m.lastLatency = latency
	m.sampled = true
	m.mu.Unlock()

	if status == previous && !first {
		return
	}

	if m.logger != nil {
		m.logger.Info().
			Str("previous", string(previous)).
			Str("current", string(status)).
			Dur("latency", latency).
			Msg("connectivity changed")
	}

	if m.bus != nil {
		_ = m.bus.PublishJSON(events.EventConnectivityChanged, events.ConnectivityEventPayload{
			Previous:  string(previous),
			Current:   string(status),
			LatencyMS: latency.Milliseconds(),
			At:        time.Now(),
		})
	}
}
