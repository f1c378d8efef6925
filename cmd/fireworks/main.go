// cmd/fireworks serves the liquidation fireworks playback: one session
// driven by a single runner goroutine, frames and notices pushed to
// WebSocket clients, notices mirrored to Redis and major events alerted.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperfireworks/config"
	"hyperfireworks/internal/bus"
	"hyperfireworks/internal/eventlog"
	"hyperfireworks/internal/gateway"
	"hyperfireworks/internal/logger"
	"hyperfireworks/internal/metrics"
	"hyperfireworks/internal/model"
	"hyperfireworks/internal/notification"
	"hyperfireworks/internal/session"
	redisstore "hyperfireworks/internal/store/redis"
	sqlitestore "hyperfireworks/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[fireworks] starting...")

	cfg := config.Load()
	slogger := logger.Init("fireworks", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Event log ──
	src, closeSrc, err := eventlog.OpenSource(cfg.EventsPath)
	if err != nil {
		log.Fatalf("[fireworks] open events: %v", err)
	}
	defer closeSrc()
	evLog, err := eventlog.Load(ctx, src, slogger)
	if err != nil {
		log.Fatalf("[fireworks] %v", err)
	}
	var sqlDB *sql.DB
	if r, ok := src.(*sqlitestore.Reader); ok {
		sqlDB = r.DB()
	}

	// ── Metrics + health ──
	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	health.SetEventsLoaded(evLog.Len())

	// ── Redis (optional) ──
	var (
		rdb      *goredis.Client
		buffered *redisstore.BufferedPublisher
	)
	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[fireworks] WARNING: redis disabled: %v", err)
		} else {
			defer pub.Close()
			rdb = pub.Client()
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				m.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					m.RedisCircuitBreakerTrips.Inc()
				}
				log.Printf("[fireworks] redis circuit %s -> %s", from, to)
			}
			// Background context: the final flush runs after ctx is cancelled.
			buffered = redisstore.NewBufferedPublisher(context.Background(), pub, cb, 10000)
			buffered.OnBuffer = m.RedisBufferedWrites.Inc
		}
	}

	// ── Alerts ──
	sinks := []notification.Sink{{Name: "log", Notifier: notification.NewLogNotifier()}}
	if cfg.AlertWebhookURL != "" {
		sinks = append(sinks, notification.Sink{Name: "webhook", Notifier: notification.NewWebhookNotifier(cfg.AlertWebhookURL)})
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notification.Sink{Name: "telegram", Notifier: notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)})
	}
	if cfg.NATSURL != "" {
		nn, err := notification.NewNATSNotifier(cfg.NATSURL)
		if err != nil {
			log.Printf("[fireworks] WARNING: nats alerts disabled: %v", err)
		} else {
			defer nn.Close()
			sinks = append(sinks, notification.Sink{Name: "nats", Notifier: nn})
		}
	}
	alerter := notification.NewAlerter(sinks...)
	alerter.MinAmount = cfg.AlertMinAmount
	alerter.OnResult = func(sink, result string) {
		m.AlertsTotal.WithLabelValues(sink, result).Inc()
	}

	// ── Notice fan-out ──
	notices := make(chan model.Notice, 1024)
	fan := bus.New(512)
	fan.OnDrop = func(name string) { m.FanoutDropsTotal.WithLabelValues(name).Inc() }
	gatewayCh := fan.Subscribe("gateway")
	alertCh := fan.Subscribe("alerts")
	var redisCh <-chan model.Notice
	if buffered != nil {
		redisCh = fan.Subscribe("redis")
	}

	// ── Session + runner ──
	sess := session.New(evLog, session.OptionsFromConfig(cfg, slogger))
	var hub *gateway.Hub
	runner := session.NewRunner(sess, session.RunnerOptions{
		FrameRate: cfg.Tuning.FrameRate,
		Notices:   notices,
		OnTick: func(r session.TickReport) {
			m.ObserveTick(r)
			health.ObserveTick(r)
			hub.TickTimes.Record(r.Duration)
		},
	})

	hub = gateway.NewHub(runner, rdb, gateway.NewControlAuth(cfg.ControlTOTPSecret))
	hub.OnClientCount = func(n int) { m.WSClients.Set(float64(n)) }

	go runner.Run(ctx)
	hub.RestorePreferences(ctx)

	go fan.Run(ctx, notices)
	go hub.Run(ctx, gatewayCh, cfg.Tuning.FrameRate)
	go hub.StartMetricsBroadcast(ctx, processStart)
	go alerter.Run(ctx, alertCh)
	if buffered != nil {
		go buffered.Run(ctx, redisCh)
		go buffered.RunStats(ctx, time.Second, runner.Latest)
	}
	go reportSaturation(ctx, fan, m)
	health.StartLivenessChecker(ctx, rdb, sqlDB, 10*time.Second)

	// ── HTTP ──
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, rdb, processStart)
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}

	go func() {
		log.Printf("[fireworks] serving %d events at http://localhost%s", evLog.Len(), cfg.GatewayAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[fireworks] server error: %v", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[fireworks] shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	cancel()
	<-runner.Done()
	if buffered != nil {
		buffered.Flush()
	}
	metricsSrv.Stop(shutdownCtx)
	log.Println("[fireworks] stopped")
}

// reportSaturation exports per-subscriber fan-out queue fill every 5 s.
func reportSaturation(ctx context.Context, fan *bus.FanOut, m *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range fan.ChannelStats() {
				if s.Cap > 0 {
					m.ChannelSaturationPct.WithLabelValues(s.Name).Set(float64(s.Len) / float64(s.Cap) * 100)
				}
			}
		}
	}
}
