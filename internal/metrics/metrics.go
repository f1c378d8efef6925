package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"hyperfireworks/internal/session"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the playback server.
type Metrics struct {
	TicksTotal       prometheus.Counter
	EventsFiredTotal *prometheus.CounterVec // labels: type
	EventsDeferred   prometheus.Gauge
	TickDuration     prometheus.Histogram
	TickPanics       prometheus.Counter
	ClockSkews       prometheus.Counter
	Progress         prometheus.Gauge
	Speed            prometheus.Gauge

	ParticlesLive    prometheus.Gauge
	ParticlesEvicted prometheus.Counter

	AudioResyncs prometheus.Counter
	AudioLoops   prometheus.Counter

	// Transport
	WSClients     prometheus.Gauge
	FrameOverflow prometheus.Counter

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	AlertsTotal *prometheus.CounterVec // labels: sink, result

	mu   sync.Mutex
	last session.Counters
}

// NewMetrics creates all metrics and registers them on reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_ticks_total",
			Help: "Total playback ticks",
		}),
		EventsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireworks_events_fired_total",
			Help: "Events dispatched (by type)",
		}, []string{"type"}),
		EventsDeferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fireworks_events_deferred",
			Help: "Due events deferred to the next tick by the per-tick cap",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fireworks_tick_duration_seconds",
			Help:    "Time spent in one playback tick",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
		TickPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_tick_panics_total",
			Help: "Ticks that panicked and were recovered",
		}),
		ClockSkews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_clock_skews_total",
			Help: "Invalid elapsed-time inputs that forced a clock re-anchor",
		}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fireworks_progress_ratio",
			Help: "Playback position as a fraction of the log range",
		}),
		Speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fireworks_speed_multiplier",
			Help: "Current playback speed multiplier",
		}),
		ParticlesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fireworks_particles_live",
			Help: "Live particles after the last tick",
		}),
		ParticlesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_particles_evicted_total",
			Help: "Particles evicted by the live-set cap",
		}),
		AudioResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_audio_resyncs_total",
			Help: "Audio drift corrections",
		}),
		AudioLoops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_audio_loops_total",
			Help: "Times the audio track looped back to the start",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fireworks_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		FrameOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_frame_overflow_total",
			Help: "Frames dropped because the frame ring was full",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireworks_fanout_drops_total",
			Help: "Notices dropped by the FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fireworks_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fireworks_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireworks_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireworks_alerts_total",
			Help: "Major-event alerts sent (by sink and result)",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.EventsFiredTotal,
		m.EventsDeferred,
		m.TickDuration,
		m.TickPanics,
		m.ClockSkews,
		m.Progress,
		m.Speed,
		m.ParticlesLive,
		m.ParticlesEvicted,
		m.AudioResyncs,
		m.AudioLoops,
		m.WSClients,
		m.FrameOverflow,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.AlertsTotal,
	)

	return m
}

// ObserveTick folds one tick report into the metrics. Session counters are
// cumulative; only the increase since the previous report is added.
func (m *Metrics) ObserveTick(r session.TickReport) {
	m.TicksTotal.Inc()
	m.TickDuration.Observe(r.Duration.Seconds())
	for _, n := range r.Fired {
		m.EventsFiredTotal.WithLabelValues(string(n.Event.Type)).Inc()
	}
	if r.Dropped {
		m.FrameOverflow.Inc()
	}
	m.EventsDeferred.Set(float64(r.Counters.Deferred))
	m.ParticlesLive.Set(float64(r.Counters.Particles))
	m.Progress.Set(r.State.Progress)
	m.Speed.Set(r.State.Speed)

	m.mu.Lock()
	prev := m.last
	m.last = r.Counters
	m.mu.Unlock()

	addDelta(m.TickPanics, prev.Panics, r.Counters.Panics)
	addDelta(m.ClockSkews, prev.Skews, r.Counters.Skews)
	addDelta(m.ParticlesEvicted, prev.Evicted, r.Counters.Evicted)
	addDelta(m.AudioResyncs, prev.Resyncs, r.Counters.Resyncs)
	addDelta(m.AudioLoops, prev.Loops, r.Counters.Loops)
}

func addDelta(c prometheus.Counter, prev, cur int64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	EventsLoaded   int       `json:"events_loaded"`
	Playing        bool      `json:"playing"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		now:       time.Now,
	}
}

func (h *HealthStatus) SetEventsLoaded(n int) {
	h.mu.Lock()
	h.EventsLoaded = n
	h.mu.Unlock()
}

// ObserveTick records tick liveness.
func (h *HealthStatus) ObserveTick(r session.TickReport) {
	h.mu.Lock()
	h.LastTickTime = h.now()
	h.Playing = r.State.Playing
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the event database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. A stalled tick loop is unhealthy;
// an enabled but unreachable Redis or SQLite is degraded.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		overallStatus = "degraded"
	}
	tickAge := ""
	if !h.LastTickTime.IsZero() {
		age := h.now().Sub(h.LastTickTime)
		tickAge = age.Round(time.Millisecond).String()
		if age > 5*time.Second {
			overallStatus = "unhealthy"
			httpCode = http.StatusServiceUnavailable
		}
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		EventsLoaded    int     `json:"events_loaded"`
		Playing         bool    `json:"playing"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		EventsLoaded:    h.EventsLoaded,
		Playing:         h.Playing,
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
