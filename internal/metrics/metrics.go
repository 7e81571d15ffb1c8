package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the paper trader.
type Metrics struct {
	TicksTotal        prometheus.Counter
	SignalsTotal      *prometheus.CounterVec // labels: action
	OrdersTotal       *prometheus.CounterVec // labels: side
	OrdersRejected    prometheus.Counter
	FeedReconnects    prometheus.Counter
	AutoTradeTicks    prometheus.Counter
	EventDropsTotal   *prometheus.CounterVec // labels: topic
	RingBufOverflow   prometheus.Counter
	RedisBreakerTrips prometheus.Counter

	OpenPositions  prometheus.Gauge
	AccountBalance prometheus.Gauge
	AccountEquity  prometheus.Gauge
	FeedState      prometheus.Gauge // 0=disconnected, 1=connecting, 2=connected, 3=exhausted

	EvaluateDur prometheus.Histogram
	TickDur     prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_ticks_total",
			Help: "Total price ticks ingested from the feed",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_signals_total",
			Help: "Trade signals emitted (by action)",
		}, []string{"action"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_orders_total",
			Help: "Orders completed (by side)",
		}, []string{"side"}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_orders_rejected_total",
			Help: "Orders rejected by ledger validation",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_feed_reconnects_total",
			Help: "Feed reconnection attempts",
		}),
		AutoTradeTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_autotrade_ticks_total",
			Help: "Auto-trading loop ticks executed",
		}),
		EventDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_event_drops_total",
			Help: "Bus events dropped on full subscriber buffers (by topic)",
		}, []string{"topic"}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_ringbuf_overflow_total",
			Help: "Ticker ring buffer push overflows (dropped ticks)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_redis_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_open_positions",
			Help: "Number of open positions",
		}),
		AccountBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_account_balance",
			Help: "Available account balance in quote currency",
		}),
		AccountEquity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_account_equity",
			Help: "Account total value: balance plus position values",
		}),
		FeedState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_feed_state",
			Help: "Feed connection state (0=disconnected, 1=connecting, 2=connected, 3=exhausted)",
		}),

		EvaluateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_evaluate_duration_seconds",
			Help:    "Signal evaluation latency per instrument",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_autotrade_tick_duration_seconds",
			Help:    "Auto-trading loop tick latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.SignalsTotal,
		m.OrdersTotal,
		m.OrdersRejected,
		m.FeedReconnects,
		m.AutoTradeTicks,
		m.EventDropsTotal,
		m.RingBufOverflow,
		m.RedisBreakerTrips,
		m.OpenPositions,
		m.AccountBalance,
		m.AccountEquity,
		m.FeedState,
		m.EvaluateDur,
		m.TickDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	AutoTrading    bool      `json:"auto_trading"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetAutoTrading(v bool) {
	h.mu.Lock()
	h.AutoTrading = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
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

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Tick age
	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		AutoTrading     bool    `json:"auto_trading"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		AutoTrading:     h.AutoTrading,
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
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
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
