package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"papertraderv1/config"
	"papertraderv1/internal/autotrader"
	"papertraderv1/internal/events"
	"papertraderv1/internal/feed"
	"papertraderv1/internal/ledger"
	"papertraderv1/internal/logger"
	"papertraderv1/internal/marketdata/rest"
	"papertraderv1/internal/metrics"
	"papertraderv1/internal/model"
	"papertraderv1/internal/notification"
	"papertraderv1/internal/ringbuf"
	sig "papertraderv1/internal/signal"
	"papertraderv1/internal/store"
	redisstore "papertraderv1/internal/store/redis"
	sqlitestore "papertraderv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[trader] starting...")

	cfg := config.Load()
	logger.Init("trader", parseLogLevel(cfg.LogLevel))
	instruments := cfg.ParseInstruments()
	log.Printf("[trader] instruments: %v", instruments)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: settings + trade journal ----
	os.MkdirAll("data", 0o755)
	sqliteStore, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[trader] sqlite init failed: %v", err)
	}
	defer sqliteStore.Close()
	settings, err := sqliteStore.LoadSettings()
	if err != nil {
		log.Printf("[trader] WARNING: settings load failed: %v (using defaults)", err)
		settings = model.DefaultFeedSettings()
	}
	log.Printf("[trader] settings: realtimeFeed=%v pollingIntervalMs=%d", settings.UseRealtimeFeed, settings.PollingIntervalMs)

	// ---- Redis: ledger aggregate store (memory fallback) ----
	var kv store.Store
	redisStore, err := redisstore.New(redisstore.Config{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: "papertrader:",
	})
	if err != nil {
		log.Printf("[trader] WARNING: redis init failed: %v (state will not survive restarts)", err)
		kv = store.NewMemory()
	} else {
		kv = redisStore
		redisStore.OnBreakerTrip(func() { prom.RedisBreakerTrips.Inc() })
		defer redisStore.Close()
	}

	if redisStore != nil {
		health.StartLivenessChecker(ctx, redisStore.Client(), sqliteStore.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqliteStore.DB(), 10*time.Second)
	}

	// ---- Core components ----
	bus := events.NewBus()

	lgr, err := ledger.New(ctx, ledger.Config{
		StartingBalance: cfg.StartingBalance,
		FeeRate:         cfg.FeeRate,
	}, kv)
	if err != nil {
		log.Fatalf("[trader] ledger init failed: %v", err)
	}
	lgr.Journal = sqliteStore
	lgr.Events = bus

	gen := sig.NewGenerator(model.DefaultTradingConfig())
	restClient := rest.NewClient(rest.Config{BaseURL: cfg.RESTBaseURL})
	priceCache := autotrader.NewPriceCache()
	feedClient := feed.NewClient(feed.DefaultConfig(cfg.FeedURL), bus)

	// ---- Tick ingestion: bus → ring → generator/cache ----
	// The ring decouples feed dispatch from indicator evaluation so a slow
	// evaluation never backpressures the read loop.
	ring := ringbuf.New(4096)
	tickerSub := bus.Subscribe(events.TopicTicker, 1024)
	go func() {
		for ev := range tickerSub.C {
			tk, ok := ev.Payload.(model.Ticker)
			if !ok {
				continue
			}
			if !ring.Push(tk) {
				prom.RingBufOverflow.Inc()
			}
		}
	}()
	go func() {
		for {
			tk, ok := ring.Pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Millisecond):
				}
				continue
			}
			prom.TicksTotal.Inc()
			health.SetLastTickTime(tk.TS)
			priceCache.SetPrice(tk.Code, tk.TradePrice)

			start := time.Now()
			gen.IngestPrice(tk.Code, tk.TradePrice, tk.TS)
			if s := gen.Evaluate(tk.Code); s != nil {
				prom.SignalsTotal.WithLabelValues(string(s.Signal)).Inc()
				bus.Publish(events.TopicSignals, *s)
			}
			prom.EvaluateDur.Observe(time.Since(start).Seconds())
		}
	}()

	// ---- Price source: push feed or REST polling ----
	if settings.UseRealtimeFeed {
		if err := feedClient.Subscribe(instruments...); err != nil {
			log.Printf("[trader] feed subscribe: %v", err)
		}
		defer feedClient.Disconnect()
	} else {
		interval := time.Duration(settings.PollingIntervalMs) * time.Millisecond
		log.Printf("[trader] REST polling every %s", interval)
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tickers, err := restClient.Tickers(ctx, instruments)
					if err != nil {
						log.Printf("[trader] REST poll failed: %v", err)
						continue
					}
					for _, tk := range tickers {
						bus.Publish(events.TopicTicker, tk)
					}
				}
			}
		}()
	}

	// ---- Feed state → health + metrics ----
	stateSub := bus.Subscribe(events.TopicFeedState, 16)
	go func() {
		for ev := range stateSub.C {
			change, ok := ev.Payload.(feed.StateChange)
			if !ok {
				continue
			}
			health.SetFeedConnected(change.State == feed.StateConnected)
			prom.FeedState.Set(feedStateValue(change.State))
			if change.State == feed.StateConnecting && change.Attempt > 0 {
				prom.FeedReconnects.Inc()
			}
		}
	}()

	// ---- Fills → order metrics ----
	fillSub := bus.Subscribe(events.TopicFills, 64)
	go func() {
		for ev := range fillSub.C {
			if trade, ok := ev.Payload.(model.Trade); ok {
				prom.OrdersTotal.WithLabelValues(string(trade.Side)).Inc()
			}
		}
	}()

	// ---- Notifications ----
	var notifier notification.Notifier
	switch {
	case cfg.WebhookURL != "":
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
	case cfg.TelegramBotToken != "" && cfg.TelegramChatID != "":
		notifier = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	default:
		notifier = notification.NewLogNotifier()
	}
	go notification.NewService(notifier).Run(ctx, bus)

	// ---- Auto-trading loop ----
	autoCfg := model.DefaultAutoTradingConfig()
	autoCfg.Instruments = instruments
	trader := autotrader.New(ctx, autoCfg, lgr, gen, priceCache, bus, kv,
		time.Duration(cfg.AutoTradeIntervalSec)*time.Second)
	trader.OnTick = func(d time.Duration) {
		prom.AutoTradeTicks.Inc()
		prom.TickDur.Observe(d.Seconds())
	}
	trader.OnReject = func() { prom.OrdersRejected.Inc() }
	if trader.Config().Enabled {
		trader.Enable(ctx)
	}
	health.SetAutoTrading(trader.Running())

	autoSub := bus.Subscribe(events.TopicAutoTrade, 32)
	go func() {
		for ev := range autoSub.C {
			if result, ok := ev.Payload.(model.AutoTradingResult); ok {
				slog.Info("auto-trade outcome",
					slog.String("code", result.Code),
					slog.String("signal", string(result.Signal)),
					slog.Float64("price", result.Price),
					slog.String("reason", result.Reason))
			}
		}
	}()

	// ---- Account gauges & drop counters ----
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		lastDrops := map[string]uint64{}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				acct := lgr.Account()
				prom.AccountBalance.Set(acct.Balance)
				prom.AccountEquity.Set(acct.TotalValue)
				prom.OpenPositions.Set(float64(lgr.OpenPositionCount()))
				health.SetAutoTrading(trader.Running())
				for _, topic := range []string{events.TopicTicker, events.TopicFills, events.TopicSignals} {
					total := bus.Dropped(topic)
					if delta := total - lastDrops[topic]; delta > 0 {
						prom.EventDropsTotal.WithLabelValues(topic).Add(float64(delta))
						lastDrops[topic] = total
					}
				}
			}
		}
	}()

	log.Println("[trader] pipeline ready")

	// ---- Wait for shutdown ----
	<-sigCh
	log.Println("[trader] shutting down...")

	trader.Disable(context.Background())
	feedClient.Disconnect()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[trader] stopped")
}

func feedStateValue(s feed.State) float64 {
	switch s {
	case feed.StateConnecting:
		return 1
	case feed.StateConnected:
		return 2
	case feed.StateExhausted:
		return 3
	default:
		return 0
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
