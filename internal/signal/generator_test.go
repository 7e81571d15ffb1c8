package signal

import (
	"math"
	"testing"
	"time"

	"papertraderv1/internal/indicator"
	"papertraderv1/internal/model"
)

// tinyConfig uses single-digit windows so tests can hand-construct series.
func tinyConfig() model.TradingConfig {
	cfg := model.DefaultTradingConfig()
	cfg.ShortPeriod = 1
	cfg.LongPeriod = 2
	cfg.RSIPeriod = 2
	cfg.BollingerPeriod = 3
	cfg.StochKPeriod = 2
	cfg.StochDPeriod = 1
	cfg.MinConfidence = 0.1
	return cfg
}

func ingest(g *Generator, code string, prices ...float64) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range prices {
		g.IngestPrice(code, p, ts.Add(time.Duration(i)*time.Second))
	}
}

func TestIngestPrice_EvictsBeyondCap(t *testing.T) {
	g := NewGenerator(model.DefaultTradingConfig())
	for i := 0; i < priceHistoryCap+25; i++ {
		g.IngestPrice("KRW-BTC", float64(i), time.Now())
	}

	h := g.History("KRW-BTC")
	if len(h) != priceHistoryCap {
		t.Fatalf("history length = %d, want %d", len(h), priceHistoryCap)
	}
	if h[0].Price != 25 {
		t.Errorf("oldest retained price = %v, want 25 (oldest evicted first)", h[0].Price)
	}
}

func TestEvaluate_InsufficientHistoryIsNeutral(t *testing.T) {
	g := NewGenerator(model.DefaultTradingConfig())
	ingest(g, "KRW-BTC", 100, 101, 102)

	if sig := g.Evaluate("KRW-BTC"); sig != nil {
		t.Fatalf("want nil signal on short history, got %+v", sig)
	}
	if n := len(g.Signals("KRW-BTC")); n != 0 {
		t.Errorf("signal log length = %d, want 0 (no-op evaluation)", n)
	}
}

func TestEvaluate_MARSI_DisagreementDiscountsMA(t *testing.T) {
	// 10,9,8,10: short EMA crosses above long (buy, strength 1 after the
	// floor), while RSI(2) lands at 66.7 (sell). MA wins discounted x0.7.
	g := NewGenerator(tinyConfig())
	ingest(g, "KRW-BTC", 10, 9, 8, 10)

	sig := g.Evaluate("KRW-BTC")
	if sig == nil {
		t.Fatal("want a signal, got nil")
	}
	if sig.Signal != model.SignalBuy {
		t.Fatalf("signal = %s, want buy", sig.Signal)
	}

	ma := indicator.MACrossoverSignal([]float64{10, 9, 8, 10}, 1, 2)
	want := ma.Strength * 0.7
	if math.Abs(sig.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %.6f, want ma.Strength*0.7 = %.6f", sig.Confidence, want)
	}
}

func TestEvaluate_MARSI_AgreementAveragesStrengths(t *testing.T) {
	// 10,9,8,8.5: MA crosses up (buy) and RSI(2)=33.3 <= 35 (buy).
	prices := []float64{10, 9, 8, 8.5}
	g := NewGenerator(tinyConfig())
	ingest(g, "KRW-BTC", prices...)

	sig := g.Evaluate("KRW-BTC")
	if sig == nil {
		t.Fatal("want a signal, got nil")
	}
	if sig.Signal != model.SignalBuy {
		t.Fatalf("signal = %s, want buy", sig.Signal)
	}

	ma := indicator.MACrossoverSignal(prices, 1, 2)
	rsi := indicator.RSISignal(prices, 2, 35, 65)
	want := (ma.Strength + rsi.Strength) / 2
	if math.Abs(sig.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %.6f, want strength average %.6f", sig.Confidence, want)
	}
}

func TestEvaluate_MinConfidenceGateIsNoOp(t *testing.T) {
	cfg := tinyConfig()
	cfg.MinConfidence = 0.99
	g := NewGenerator(cfg)
	ingest(g, "KRW-BTC", 10, 9, 8, 8.5)

	if sig := g.Evaluate("KRW-BTC"); sig != nil {
		t.Fatalf("want nil below confidence gate, got %+v", sig)
	}
	if n := len(g.Signals("KRW-BTC")); n != 0 {
		t.Errorf("gated evaluation appended %d signals, want 0", n)
	}
}

func TestEvaluate_SignalLogBounded(t *testing.T) {
	g := NewGenerator(tinyConfig())
	ingest(g, "KRW-BTC", 10, 9, 8, 10)

	for i := 0; i < signalHistoryCap+10; i++ {
		g.Evaluate("KRW-BTC")
	}
	if n := len(g.Signals("KRW-BTC")); n != signalHistoryCap {
		t.Errorf("signal log length = %d, want cap %d", n, signalHistoryCap)
	}
}

func TestUpdateConfig_PreservesHistory(t *testing.T) {
	g := NewGenerator(model.DefaultTradingConfig())
	ingest(g, "KRW-BTC", 10, 9, 8, 10)

	g.UpdateConfig(tinyConfig())

	if n := len(g.History("KRW-BTC")); n != 4 {
		t.Fatalf("history length after reconfigure = %d, want 4", n)
	}
	// Smaller windows make the same history immediately evaluable.
	if sig := g.Evaluate("KRW-BTC"); sig == nil {
		t.Error("want a signal after shrinking windows, got nil")
	}
}

func TestEvaluateAll_FollowsInputOrderIndependently(t *testing.T) {
	g := NewGenerator(tinyConfig())
	ingest(g, "KRW-BTC", 10, 9, 8, 10)
	ingest(g, "KRW-ETH", 10, 9, 8, 10)
	// KRW-XRP has no history at all.

	sigs := g.EvaluateAll([]string{"KRW-BTC", "KRW-XRP", "KRW-ETH"})
	if len(sigs) != 2 {
		t.Fatalf("got %d signals, want 2", len(sigs))
	}
	if sigs[0].Code != "KRW-BTC" || sigs[1].Code != "KRW-ETH" {
		t.Errorf("result order = [%s, %s], want input order", sigs[0].Code, sigs[1].Code)
	}
}

func TestEvaluate_BollingerAlgorithm(t *testing.T) {
	cfg := tinyConfig()
	cfg.Algorithm = model.AlgoBollinger
	// Tight multiplier so the last-point drop pierces the lower band even
	// though that same drop widens the window's deviation.
	cfg.BollingerMult = 1
	g := NewGenerator(cfg)
	ingest(g, "KRW-BTC", 100, 100, 100, 100, 60)

	sig := g.Evaluate("KRW-BTC")
	if sig == nil {
		t.Fatal("want a bollinger buy signal, got nil")
	}
	if sig.Signal != model.SignalBuy {
		t.Errorf("signal = %s, want buy", sig.Signal)
	}
}
