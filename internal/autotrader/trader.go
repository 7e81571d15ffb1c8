// Package autotrader runs the periodic auto-trading loop: stop-loss and
// take-profit supervision of open positions, then signal-driven entries and
// exits, subject to the configured capital and position-count limits.
package autotrader

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"papertraderv1/internal/events"
	"papertraderv1/internal/ledger"
	"papertraderv1/internal/model"
	"papertraderv1/internal/store"
)

const defaultInterval = 30 * time.Second

// SignalEvaluator produces trade signals per instrument. *signal.Generator
// satisfies it.
type SignalEvaluator interface {
	Evaluate(code string) *model.TradingSignal
	Config() model.TradingConfig
	UpdateConfig(cfg model.TradingConfig)
}

// Trader owns the auto-trading loop. The loop goroutine exists only while
// trading is enabled; Disable cancels it.
type Trader struct {
	ledger *ledger.Ledger
	gen    SignalEvaluator
	prices PriceSource
	bus    *events.Bus
	st     store.Store

	interval time.Duration

	// OnTick, when set, observes the duration of each completed loop pass.
	// Set before Enable; not synchronized afterwards.
	OnTick func(d time.Duration)

	// OnReject, when set, is called once per order the ledger rejected on
	// validation during a tick. Set before Enable; not synchronized afterwards.
	OnReject func()

	mu      sync.Mutex
	cfg     model.AutoTradingConfig
	cancel  context.CancelFunc
	loopGen uint64
}

// New creates a Trader. A previously persisted config is restored from st;
// otherwise cfg is used. The loop starts only on Enable.
func New(ctx context.Context, cfg model.AutoTradingConfig, lgr *ledger.Ledger, gen SignalEvaluator, prices PriceSource, bus *events.Bus, st store.Store, interval time.Duration) *Trader {
	if interval <= 0 {
		interval = defaultInterval
	}
	t := &Trader{
		ledger:   lgr,
		gen:      gen,
		prices:   prices,
		bus:      bus,
		st:       st,
		interval: interval,
		cfg:      cfg,
	}

	if st != nil {
		if data, err := st.Get(ctx, store.KeyAutoTradingConfig); err == nil {
			var stored model.AutoTradingConfig
			if json.Unmarshal(data, &stored) == nil && stored.Version == model.SchemaVersion {
				// Restored state never auto-starts trading.
				stored.Enabled = false
				t.cfg = stored
			}
		}
	}
	return t
}

// Config returns the current auto-trading config.
func (t *Trader) Config() model.AutoTradingConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Running reports whether the loop goroutine is active.
func (t *Trader) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// SetConfig replaces the auto-trading config and persists it. Changes take
// effect on the next tick; toggling Enabled starts or stops the loop.
func (t *Trader) SetConfig(ctx context.Context, cfg model.AutoTradingConfig) {
	cfg.Version = model.SchemaVersion

	t.mu.Lock()
	prevAlgo := t.cfg.Algorithm
	t.cfg = cfg
	t.mu.Unlock()

	if cfg.Algorithm != prevAlgo {
		gc := t.gen.Config()
		gc.Algorithm = cfg.Algorithm
		t.gen.UpdateConfig(gc)
	}
	t.persist(ctx)

	if cfg.Enabled {
		t.Enable(ctx)
	} else {
		t.Disable(ctx)
	}
}

// Enable marks trading enabled and starts the loop. A no-op while running.
// The loop stops when ctx is cancelled or Disable is called.
func (t *Trader) Enable(ctx context.Context) {
	t.mu.Lock()
	t.cfg.Enabled = true
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.loopGen++
	gen := t.loopGen
	t.mu.Unlock()

	t.persist(ctx)
	log.Printf("[autotrader] enabled, interval=%s", t.interval)
	go t.loop(loopCtx, gen)
}

// Disable stops the loop and marks trading disabled. Idempotent.
func (t *Trader) Disable(ctx context.Context) {
	t.mu.Lock()
	t.cfg.Enabled = false
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	t.persist(ctx)
	if cancel != nil {
		cancel()
		log.Printf("[autotrader] disabled")
	}
}

func (t *Trader) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			if t.loopGen == gen {
				t.cancel = nil
			}
			t.mu.Unlock()
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick runs one pass over the configured instruments. A failure on one
// instrument is logged and does not abort the others.
func (t *Trader) tick(ctx context.Context) {
	cfg := t.Config()
	if !cfg.Enabled || len(cfg.Instruments) == 0 {
		return
	}
	if t.OnTick != nil {
		start := time.Now()
		defer func() { t.OnTick(time.Since(start)) }()
	}

	prices, err := t.prices.PriceMap(ctx, cfg.Instruments)
	if err != nil {
		log.Printf("[autotrader] price fetch failed: %v", err)
		return
	}

	// Unrealized P&L must be current before any stop-loss/take-profit call.
	t.ledger.UpdatePositionValues(ctx, prices)

	for _, code := range cfg.Instruments {
		if err := t.evaluateInstrument(ctx, cfg, code, prices); err != nil {
			log.Printf("[autotrader] %s: %v", code, err)
			if isRejection(err) && t.OnReject != nil {
				t.OnReject()
			}
		}
	}
}

// isRejection distinguishes ledger validation failures from infrastructure
// errors.
func isRejection(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, ledger.ErrInsufficientPosition) ||
		errors.Is(err, ledger.ErrInvalidQuantity) ||
		errors.Is(err, ledger.ErrInvalidPrice)
}

func (t *Trader) evaluateInstrument(ctx context.Context, cfg model.AutoTradingConfig, code string, prices map[string]float64) error {
	price, ok := prices[code]
	if !ok {
		return nil
	}

	if pos, held := t.ledger.Position(code); held {
		if pos.ProfitLossRate <= -cfg.StopLossPct {
			return t.fullSell(ctx, code, price, pos.Quantity, 1, "stop loss")
		}
		if pos.ProfitLossRate >= cfg.TakeProfitPct {
			return t.fullSell(ctx, code, price, pos.Quantity, 1, "take profit")
		}

		sig := t.gen.Evaluate(code)
		if sig != nil && sig.Signal == model.SignalSell {
			return t.fullSell(ctx, code, price, pos.Quantity, sig.Confidence, sig.Reason)
		}
		return nil
	}

	// New entries only while under the position and capital limits.
	if t.ledger.OpenPositionCount() >= cfg.MaxPositions {
		return nil
	}
	if t.ledger.Account().Balance < cfg.InvestmentAmount {
		return nil
	}

	sig := t.gen.Evaluate(code)
	if sig == nil || sig.Signal != model.SignalBuy {
		return nil
	}

	quantity := cfg.InvestmentAmount / price
	if _, err := t.ledger.PlaceBuyOrder(ctx, code, price, quantity); err != nil {
		return err
	}
	t.record(ctx, code, model.SignalBuy, sig.Confidence, price, sig.Reason)
	return nil
}

func (t *Trader) fullSell(ctx context.Context, code string, price, quantity, confidence float64, reason string) error {
	if _, err := t.ledger.PlaceSellOrder(ctx, code, price, quantity); err != nil {
		return err
	}
	log.Printf("[autotrader] sold %s qty=%.8f price=%.0f (%s)", code, quantity, price, reason)
	t.record(ctx, code, model.SignalSell, confidence, price, reason)
	return nil
}

func (t *Trader) record(ctx context.Context, code string, action model.SignalAction, confidence, price float64, reason string) {
	result := model.AutoTradingResult{
		Code:       code,
		Signal:     action,
		Confidence: confidence,
		Price:      price,
		Timestamp:  time.Now().UTC(),
		Reason:     reason,
	}
	t.ledger.RecordAutoTradingResult(ctx, result)
	if t.bus != nil {
		t.bus.Publish(events.TopicAutoTrade, result)
	}
}

func (t *Trader) persist(ctx context.Context) {
	if t.st == nil {
		return
	}
	t.mu.Lock()
	data, err := json.Marshal(t.cfg)
	t.mu.Unlock()
	if err != nil {
		return
	}
	if err := t.st.Set(ctx, store.KeyAutoTradingConfig, data); err != nil {
		log.Printf("[autotrader] persist config: %v", err)
	}
}
