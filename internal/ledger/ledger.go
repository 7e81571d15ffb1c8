// Package ledger implements the paper-trading account: balance, open
// positions, order history, and the append-only trade log.
//
// All mutations run under a single mutex (single-writer discipline), so the
// non-negativity and derived-total invariants hold across concurrent buy and
// sell calls. Durable state lives behind the injected store.Store; the
// in-memory ledger stays authoritative when a persistence write fails.
package ledger

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"papertraderv1/internal/model"
	"papertraderv1/internal/store"

	"github.com/google/uuid"
)

// autoResultsCap bounds the auto-trading result log.
const autoResultsCap = 100

// quantityEpsilon absorbs float residue when a sell empties a position.
const quantityEpsilon = 1e-9

// Config holds ledger parameters.
type Config struct {
	StartingBalance float64
	FeeRate         float64 // e.g. 0.0005
}

// DefaultConfig returns the standard paper account parameters.
func DefaultConfig() Config {
	return Config{StartingBalance: 10_000_000, FeeRate: 0.0005}
}

// TradeJournal receives every completed fill for durable append-only storage.
type TradeJournal interface {
	JournalTrade(t model.Trade) error
}

// Publisher receives fill events for fan-out to presentation listeners.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Ledger owns the paper account state.
type Ledger struct {
	mu  sync.Mutex
	cfg Config
	st  store.Store

	account   model.Account
	positions map[string]*model.Position
	orders    []model.Order
	trades    []model.Trade
	results   []model.AutoTradingResult

	// Optional hooks, set before first use.
	Journal TradeJournal
	Events  Publisher
}

// New creates a Ledger, restoring persisted aggregates from st or
// initializing a fresh account at the configured starting balance.
func New(ctx context.Context, cfg Config, st store.Store) (*Ledger, error) {
	l := &Ledger{
		cfg:       cfg,
		st:        st,
		positions: make(map[string]*model.Position),
	}

	if err := l.restore(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) restore(ctx context.Context) error {
	if data, err := l.st.Get(ctx, store.KeyAccount); err == nil {
		if err := json.Unmarshal(data, &l.account); err == nil && l.account.ID != "" {
			l.restoreAggregates(ctx)
			log.Printf("[ledger] restored account %s balance=%.0f", l.account.ID, l.account.Balance)
			return nil
		}
	}

	now := time.Now().UTC()
	l.account = model.Account{
		Version:    model.SchemaVersion,
		ID:         uuid.NewString(),
		Balance:    l.cfg.StartingBalance,
		TotalValue: l.cfg.StartingBalance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.persistAll(ctx)
	log.Printf("[ledger] initialized account %s balance=%.0f", l.account.ID, l.account.Balance)
	return nil
}

func (l *Ledger) restoreAggregates(ctx context.Context) {
	var positions struct {
		Version   int              `json:"version"`
		Positions []model.Position `json:"positions"`
	}
	if data, err := l.st.Get(ctx, store.KeyPositions); err == nil {
		if json.Unmarshal(data, &positions) == nil {
			for i := range positions.Positions {
				p := positions.Positions[i]
				l.positions[p.Code] = &p
			}
		}
	}

	var orders struct {
		Version int           `json:"version"`
		Orders  []model.Order `json:"orders"`
	}
	if data, err := l.st.Get(ctx, store.KeyOrders); err == nil {
		if json.Unmarshal(data, &orders) == nil {
			l.orders = orders.Orders
		}
	}

	var trades struct {
		Version int           `json:"version"`
		Trades  []model.Trade `json:"trades"`
	}
	if data, err := l.st.Get(ctx, store.KeyTrades); err == nil {
		if json.Unmarshal(data, &trades) == nil {
			l.trades = trades.Trades
		}
	}

	var results struct {
		Version int                       `json:"version"`
		Results []model.AutoTradingResult `json:"results"`
	}
	if data, err := l.st.Get(ctx, store.KeyAutoTradingResults); err == nil {
		if json.Unmarshal(data, &results) == nil {
			l.results = results.Results
		}
	}
}

// PlaceBuyOrder validates funds, creates a pending order, executes the
// simulated fill immediately, and marks the order completed. The fill debits
// totalAmount plus fee and upserts the position at the weighted-average price.
func (l *Ledger) PlaceBuyOrder(ctx context.Context, code string, price, quantity float64) (*model.Order, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	totalAmount := price * quantity
	fee := totalAmount * l.cfg.FeeRate
	if l.account.Balance < totalAmount+fee {
		return nil, ErrInsufficientBalance
	}

	now := time.Now().UTC()
	order := model.Order{
		ID:          uuid.NewString(),
		Code:        code,
		Side:        model.SideBuy,
		Price:       price,
		Quantity:    quantity,
		TotalAmount: totalAmount,
		Status:      model.OrderPending,
		CreatedAt:   now,
	}

	// Simulated fill: debit, upsert position at weighted-average price.
	l.account.Balance -= totalAmount + fee
	l.account.UpdatedAt = now

	pos, ok := l.positions[code]
	if !ok {
		pos = &model.Position{Code: code}
		l.positions[code] = pos
	}
	pos.TotalInvested += totalAmount
	pos.Quantity += quantity
	pos.AvgPrice = pos.TotalInvested / pos.Quantity
	pos.UpdatedAt = now

	order.Status = model.OrderCompleted
	order.CompletedAt = &now
	l.orders = append(l.orders, order)

	trade := l.appendTrade(order, fee, now)
	l.recomputeTotalValue()
	l.persistAll(ctx)
	l.emitFill(trade)

	return &order, nil
}

// PlaceSellOrder validates the held quantity, executes the simulated fill
// (credit totalAmount minus fee), and deletes the position when it empties.
func (l *Ledger) PlaceSellOrder(ctx context.Context, code string, price, quantity float64) (*model.Order, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[code]
	if !ok || pos.Quantity < quantity-quantityEpsilon {
		return nil, ErrInsufficientPosition
	}

	now := time.Now().UTC()
	totalAmount := price * quantity
	fee := totalAmount * l.cfg.FeeRate

	order := model.Order{
		ID:          uuid.NewString(),
		Code:        code,
		Side:        model.SideSell,
		Price:       price,
		Quantity:    quantity,
		TotalAmount: totalAmount,
		Status:      model.OrderPending,
		CreatedAt:   now,
	}

	l.account.Balance += totalAmount - fee
	l.account.UpdatedAt = now

	pos.TotalInvested -= pos.AvgPrice * quantity
	pos.Quantity -= quantity
	pos.UpdatedAt = now
	if pos.Quantity <= quantityEpsilon {
		delete(l.positions, code)
	}

	order.Status = model.OrderCompleted
	order.CompletedAt = &now
	l.orders = append(l.orders, order)

	trade := l.appendTrade(order, fee, now)
	l.recomputeTotalValue()
	l.persistAll(ctx)
	l.emitFill(trade)

	return &order, nil
}

func (l *Ledger) appendTrade(order model.Order, fee float64, now time.Time) model.Trade {
	trade := model.Trade{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Code:        order.Code,
		Side:        order.Side,
		Price:       order.Price,
		Quantity:    order.Quantity,
		TotalAmount: order.TotalAmount,
		Fee:         fee,
		Timestamp:   now,
	}
	l.trades = append(l.trades, trade)

	if l.Journal != nil {
		if err := l.Journal.JournalTrade(trade); err != nil {
			log.Printf("[ledger] journal write failed for trade %s: %v", trade.ID, err)
		}
	}
	return trade
}

func (l *Ledger) emitFill(trade model.Trade) {
	if l.Events != nil {
		l.Events.Publish("fills", trade)
	}
}

// UpdatePositionValues refreshes unrealized P&L for every position with a
// known current price and recomputes the account's derived total value.
// This is the only path that refreshes unrealized P&L; callers must invoke
// it before any stop-loss/take-profit decision.
func (l *Ledger) UpdatePositionValues(ctx context.Context, prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	for code, pos := range l.positions {
		price, ok := prices[code]
		if !ok {
			continue
		}
		pos.CurrentValue = pos.Quantity * price
		pos.ProfitLoss = pos.CurrentValue - pos.TotalInvested
		if pos.TotalInvested > 0 {
			pos.ProfitLossRate = pos.ProfitLoss / pos.TotalInvested * 100
		}
		pos.UpdatedAt = now
	}

	l.recomputeTotalValue()
	l.account.UpdatedAt = now
	l.persist(ctx, store.KeyAccount)
	l.persist(ctx, store.KeyPositions)
}

// recomputeTotalValue derives totalValue = balance + sum of position values.
// Callers hold the mutex.
func (l *Ledger) recomputeTotalValue() {
	total := l.account.Balance
	for _, pos := range l.positions {
		total += pos.CurrentValue
	}
	l.account.TotalValue = total
}

// UpdateBalance is a manual override for corrective administration. It
// bypasses order semantics but still rejects negative balances and
// recomputes derived totals immediately.
func (l *Ledger) UpdateBalance(ctx context.Context, balance float64) error {
	if balance < 0 {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.account.Balance = balance
	l.account.UpdatedAt = time.Now().UTC()
	l.recomputeTotalValue()
	l.persist(ctx, store.KeyAccount)
	return nil
}

// UpdatePositionQuantity is a manual override adjusting a position's
// quantity. Zero deletes the position; the invested amount scales with the
// unchanged average price.
func (l *Ledger) UpdatePositionQuantity(ctx context.Context, code string, quantity float64) error {
	if quantity < 0 {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[code]
	if !ok {
		return ErrInsufficientPosition
	}

	if quantity <= quantityEpsilon {
		delete(l.positions, code)
	} else {
		perUnit := 0.0
		if pos.Quantity > 0 {
			perUnit = pos.CurrentValue / pos.Quantity
		}
		pos.Quantity = quantity
		pos.TotalInvested = pos.AvgPrice * quantity
		pos.CurrentValue = perUnit * quantity
		pos.ProfitLoss = pos.CurrentValue - pos.TotalInvested
		if pos.TotalInvested > 0 {
			pos.ProfitLossRate = pos.ProfitLoss / pos.TotalInvested * 100
		}
		pos.UpdatedAt = time.Now().UTC()
	}

	l.recomputeTotalValue()
	l.persist(ctx, store.KeyAccount)
	l.persist(ctx, store.KeyPositions)
	return nil
}

// RecordAutoTradingResult appends a loop outcome to the bounded result log.
func (l *Ledger) RecordAutoTradingResult(ctx context.Context, r model.AutoTradingResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.results = append(l.results, r)
	if len(l.results) > autoResultsCap {
		l.results = l.results[len(l.results)-autoResultsCap:]
	}
	l.persist(ctx, store.KeyAutoTradingResults)
}

// ResetAccount wipes all state back to the starting balance. Not an undo:
// positions, orders, trades, and auto-trading results are all cleared.
func (l *Ledger) ResetAccount(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	l.account = model.Account{
		Version:    model.SchemaVersion,
		ID:         uuid.NewString(),
		Balance:    l.cfg.StartingBalance,
		TotalValue: l.cfg.StartingBalance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.positions = make(map[string]*model.Position)
	l.orders = nil
	l.trades = nil
	l.results = nil
	l.persistAll(ctx)

	log.Printf("[ledger] account reset, balance=%.0f", l.account.Balance)
}

// ─── Read accessors (copies) ───

// Account returns a snapshot of the account.
func (l *Ledger) Account() model.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account
}

// Positions returns a snapshot of all open positions.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}

// Position returns one position snapshot; ok is false when none is open.
func (l *Ledger) Position(code string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[code]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// OpenPositionCount returns the number of open positions.
func (l *Ledger) OpenPositionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Orders returns a snapshot of the order history.
func (l *Ledger) Orders() []model.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]model.Order, len(l.orders))
	copy(cp, l.orders)
	return cp
}

// Trades returns a snapshot of the trade log.
func (l *Ledger) Trades() []model.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// AutoTradingResults returns a snapshot of the bounded result log.
func (l *Ledger) AutoTradingResults() []model.AutoTradingResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]model.AutoTradingResult, len(l.results))
	copy(cp, l.results)
	return cp
}

// ─── Persistence ───

func (l *Ledger) persistAll(ctx context.Context) {
	l.persist(ctx, store.KeyAccount)
	l.persist(ctx, store.KeyPositions)
	l.persist(ctx, store.KeyOrders)
	l.persist(ctx, store.KeyTrades)
	l.persist(ctx, store.KeyAutoTradingResults)
}

// persist serializes one aggregate. Callers hold the mutex. A failed write
// is logged and skipped: in-memory state is authoritative.
func (l *Ledger) persist(ctx context.Context, key string) {
	var payload interface{}
	switch key {
	case store.KeyAccount:
		payload = l.account
	case store.KeyPositions:
		positions := make([]model.Position, 0, len(l.positions))
		for _, p := range l.positions {
			positions = append(positions, *p)
		}
		payload = struct {
			Version   int              `json:"version"`
			Positions []model.Position `json:"positions"`
		}{model.SchemaVersion, positions}
	case store.KeyOrders:
		payload = struct {
			Version int           `json:"version"`
			Orders  []model.Order `json:"orders"`
		}{model.SchemaVersion, l.orders}
	case store.KeyTrades:
		payload = struct {
			Version int           `json:"version"`
			Trades  []model.Trade `json:"trades"`
		}{model.SchemaVersion, l.trades}
	case store.KeyAutoTradingResults:
		payload = struct {
			Version int                       `json:"version"`
			Results []model.AutoTradingResult `json:"results"`
		}{model.SchemaVersion, l.results}
	default:
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[ledger] marshal %s: %v", key, err)
		return
	}
	if err := l.st.Set(ctx, key, data); err != nil {
		log.Printf("[ledger] persist %s: %v", key, err)
	}
}
