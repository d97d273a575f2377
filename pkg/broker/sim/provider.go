package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"riskwatch/pkg/broker"
)

// Provider is a paper-trading broker implementation that keeps positions and
// realized PnL in-memory. It backs dry-run mode and the risk engine tests.
type Provider struct {
	mu sync.Mutex

	positions   map[string]*positionState
	realizedPnl float64

	killSwitchActive bool
	pendingOrders    int

	clock func() time.Time

	// Failure injection for tests; when non-nil the matching call fails.
	FetchErr      error
	CloseErr      error
	CancelErr     error
	KillSwitchErr error
}

type positionState struct {
	ID     string
	Symbol string
	Qty    float64 // positive long, negative short
	Entry  float64 // average entry price
	Mark   float64 // latest mark price
}

// New constructs an empty simulated broker.
func New() *Provider {
	return &Provider{
		positions: make(map[string]*positionState),
		clock:     time.Now,
	}
}

// WithClock overrides the time source used for snapshot timestamps.
func (p *Provider) WithClock(clock func() time.Time) *Provider {
	if clock != nil {
		p.clock = clock
	}
	return p
}

func init() {
	broker.RegisterProvider("sim", func(name string, cfg *broker.ProviderConfig) (broker.Provider, error) {
		return New(), nil
	})
}

// OpenPosition seeds an open position at the given entry price.
func (p *Provider) OpenPosition(id, symbol string, qty, entryPrice float64) error {
	if qty == 0 {
		return fmt.Errorf("sim: position quantity must be non-zero")
	}
	if entryPrice <= 0 {
		return fmt.Errorf("sim: entry price must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[id] = &positionState{ID: id, Symbol: symbol, Qty: qty, Entry: entryPrice, Mark: entryPrice}
	return nil
}

// SetMarkPrice updates the reference price used for unrealised PnL.
func (p *Provider) SetMarkPrice(id string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("sim: mark price must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[id]
	if !ok {
		return fmt.Errorf("sim: unknown position %q", id)
	}
	pos.Mark = price
	return nil
}

// SetRealizedPnl overrides the accumulated realized PnL (test seeding).
func (p *Provider) SetRealizedPnl(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realizedPnl = v
}

// AddPendingOrders seeds resting orders so cancellation paths can be exercised.
func (p *Provider) AddPendingOrders(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingOrders += n
}

// KillSwitchActive reports whether the kill switch has been invoked.
func (p *Provider) KillSwitchActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killSwitchActive
}

// FetchAccountSnapshot aggregates realized and unrealised PnL.
func (p *Provider) FetchAccountSnapshot(ctx context.Context) (*broker.AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FetchErr != nil {
		return nil, p.FetchErr
	}
	snap := &broker.AccountSnapshot{
		Timestamp:   p.clock(),
		RealizedPnl: p.realizedPnl,
	}
	for _, pos := range p.positions {
		snap.UnrealizedPnl += pos.unrealized()
	}
	snap.TotalPnl = snap.RealizedPnl + snap.UnrealizedPnl
	return snap, nil
}

// FetchPositionSnapshots returns the open positions in stable ID order.
func (p *Provider) FetchPositionSnapshots(ctx context.Context) ([]broker.PositionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FetchErr != nil {
		return nil, p.FetchErr
	}
	out := make([]broker.PositionSnapshot, 0, len(p.positions))
	for _, pos := range p.positions {
		entryValue := pos.Entry * math.Abs(pos.Qty)
		unreal := pos.unrealized()
		out = append(out, broker.PositionSnapshot{
			ID:            pos.ID,
			Symbol:        pos.Symbol,
			Quantity:      pos.Qty,
			EntryValue:    entryValue,
			CurrentValue:  entryValue + unreal,
			UnrealizedPnl: unreal,
			PnlPercent:    broker.PnlPercentOf(unreal, entryValue),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ClosePosition flattens a position at its current mark, realizing its PnL.
func (p *Provider) ClosePosition(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CloseErr != nil {
		return p.CloseErr
	}
	pos, ok := p.positions[id]
	if !ok {
		return fmt.Errorf("sim: unknown position %q", id)
	}
	p.realizedPnl += pos.unrealized()
	delete(p.positions, id)
	return nil
}

// CancelPendingOrders drops all resting orders.
func (p *Provider) CancelPendingOrders(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CancelErr != nil {
		return p.CancelErr
	}
	p.pendingOrders = 0
	return nil
}

// InvokeKillSwitch marks trading as disabled for the day.
func (p *Provider) InvokeKillSwitch(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.KillSwitchErr != nil {
		return p.KillSwitchErr
	}
	p.killSwitchActive = true
	return nil
}

func (s *positionState) unrealized() float64 {
	return (s.Mark - s.Entry) * s.Qty
}

var _ broker.Provider = (*Provider)(nil)
