package model

import "time"

// Trading algorithms selectable in TradingConfig and AutoTradingConfig.
const (
	AlgoMARSI      = "ma_rsi"
	AlgoBollinger  = "bollinger"
	AlgoStochastic = "stochastic"
)

// TradingConfig selects the signal algorithm and its numeric parameters.
// A generator holds an immutable snapshot; replacing it changes future
// evaluations without discarding accumulated price history.
type TradingConfig struct {
	Algorithm string `json:"algorithm"`

	ShortPeriod int `json:"short_period"` // MA crossover fast EMA
	LongPeriod  int `json:"long_period"`  // MA crossover slow EMA

	RSIPeriod int `json:"rsi_period"`
	// The 35/65 thresholds are looser than the canonical 30/70 on purpose;
	// they are defaults, not a fixed domain requirement.
	RSIBuyThreshold  float64 `json:"rsi_buy_threshold"`
	RSISellThreshold float64 `json:"rsi_sell_threshold"`

	BollingerPeriod int     `json:"bollinger_period"`
	BollingerMult   float64 `json:"bollinger_mult"`

	StochKPeriod int `json:"stoch_k_period"`
	StochDPeriod int `json:"stoch_d_period"`

	MinConfidence float64 `json:"min_confidence"` // gate: no signal below this
}

// DefaultTradingConfig returns the standard parameter set.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Algorithm:        AlgoMARSI,
		ShortPeriod:      5,
		LongPeriod:       20,
		RSIPeriod:        14,
		RSIBuyThreshold:  35,
		RSISellThreshold: 65,
		BollingerPeriod:  20,
		BollingerMult:    2.0,
		StochKPeriod:     14,
		StochDPeriod:     3,
		MinConfidence:    0.3,
	}
}

// MaxPeriod returns the longest window any configured indicator needs.
// Evaluation requires at least this much price history.
func (c TradingConfig) MaxPeriod() int {
	max := c.LongPeriod
	for _, p := range []int{c.RSIPeriod + 1, c.BollingerPeriod, c.StochKPeriod + c.StochDPeriod} {
		if p > max {
			max = p
		}
	}
	return max
}

// AutoTradingConfig controls the auto-trading loop. Mutable; changes take
// effect on the next tick.
type AutoTradingConfig struct {
	Version          int      `json:"version"`
	Enabled          bool     `json:"enabled"`
	Algorithm        string   `json:"algorithm"`
	Instruments      []string `json:"instruments"`
	InvestmentAmount float64  `json:"investment_amount"` // quote currency per entry
	MaxPositions     int      `json:"max_positions"`
	StopLossPct      float64  `json:"stop_loss_pct"`   // positive percent
	TakeProfitPct    float64  `json:"take_profit_pct"` // positive percent
}

// DefaultAutoTradingConfig returns a disabled config with conservative limits.
func DefaultAutoTradingConfig() AutoTradingConfig {
	return AutoTradingConfig{
		Version:          SchemaVersion,
		Enabled:          false,
		Algorithm:        AlgoMARSI,
		Instruments:      []string{"KRW-BTC", "KRW-ETH"},
		InvestmentAmount: 100000,
		MaxPositions:     3,
		StopLossPct:      5.0,
		TakeProfitPct:    10.0,
	}
}

// AutoTradingResult records one non-hold outcome of a loop tick.
type AutoTradingResult struct {
	Code       string       `json:"code"`
	Signal     SignalAction `json:"signal"`
	Confidence float64      `json:"confidence"`
	Price      float64      `json:"price"`
	Timestamp  time.Time    `json:"timestamp"`
	Reason     string       `json:"reason"`
}

// FeedSettings is the single settings record controlling the data path:
// push feed when UseRealtimeFeed, REST polling at PollingIntervalMs otherwise.
type FeedSettings struct {
	UseRealtimeFeed   bool `json:"use_realtime_feed"`
	PollingIntervalMs int  `json:"polling_interval_ms"`
}

// DefaultFeedSettings returns the realtime-feed-on default.
func DefaultFeedSettings() FeedSettings {
	return FeedSettings{UseRealtimeFeed: true, PollingIntervalMs: 5000}
}
