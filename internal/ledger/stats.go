package ledger

import "papertraderv1/internal/model"

// Stats summarizes realized trading performance. Derived on demand from the
// trade log by replaying fills through FIFO lot matching; nothing here is
// stored. FIFO replaces the older approximation of pairing buys and sells
// by list index, which miscounts once entries interleave across lots.
type Stats struct {
	TotalTrades    int     `json:"total_trades"`
	BuyTrades      int     `json:"buy_trades"`
	SellTrades     int     `json:"sell_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"` // percent of closed sells
	RealizedProfit float64 `json:"realized_profit"`
	TotalFees      float64 `json:"total_fees"`
}

// lot is an open buy parcel awaiting FIFO consumption by later sells.
type lot struct {
	quantity float64
	price    float64
}

// TradingStats replays the trade log chronologically per instrument,
// consuming buy lots first-in-first-out against each sell. Each sell counts
// as one closed round trip: a win when its realized P&L (net of both legs'
// proportional fees) is positive.
func (l *Ledger) TradingStats() Stats {
	l.mu.Lock()
	trades := make([]model.Trade, len(l.trades))
	copy(trades, l.trades)
	l.mu.Unlock()

	var s Stats
	lots := make(map[string][]lot)
	feePerUnit := make(map[string][]float64) // parallel to lots: buy fee per unit

	for _, t := range trades {
		s.TotalTrades++
		s.TotalFees += t.Fee

		if t.Side == model.SideBuy {
			s.BuyTrades++
			lots[t.Code] = append(lots[t.Code], lot{quantity: t.Quantity, price: t.Price})
			feePerUnit[t.Code] = append(feePerUnit[t.Code], t.Fee/t.Quantity)
			continue
		}

		s.SellTrades++
		remaining := t.Quantity
		realized := -t.Fee

		queue := lots[t.Code]
		fees := feePerUnit[t.Code]
		for remaining > quantityEpsilon && len(queue) > 0 {
			head := &queue[0]
			matched := head.quantity
			if matched > remaining {
				matched = remaining
			}
			realized += (t.Price-head.price)*matched - fees[0]*matched
			head.quantity -= matched
			remaining -= matched
			if head.quantity <= quantityEpsilon {
				queue = queue[1:]
				fees = fees[1:]
			}
		}
		lots[t.Code] = queue
		feePerUnit[t.Code] = fees

		s.RealizedProfit += realized
		if realized > 0 {
			s.WinningTrades++
		} else {
			s.LosingTrades++
		}
	}

	if s.SellTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.SellTrades) * 100
	}
	return s
}
