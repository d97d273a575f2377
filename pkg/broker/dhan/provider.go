package dhan

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"

	"riskwatch/pkg/broker"
)

// Provider wraps Client to satisfy the broker.Provider interface. It keeps the
// last raw positions response around so a ClosePosition call can rebuild the
// square-off order (segment, product type, net quantity) without refetching.
type Provider struct {
	client *Client

	mu       sync.Mutex
	lastRaw  map[string]Position // security id -> raw position
	clientID string
}

// NewProvider constructs a Dhan broker provider.
func NewProvider(accessToken string, opts ...ClientOption) (*Provider, error) {
	client, err := NewClient(accessToken, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, lastRaw: make(map[string]Position)}, nil
}

func init() {
	broker.RegisterProvider("dhan", func(name string, cfg *broker.ProviderConfig) (broker.Provider, error) {
		opts := []ClientOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		p, err := NewProvider(cfg.AccessToken, opts...)
		if err != nil {
			return nil, err
		}
		p.clientID = cfg.ClientID
		return p, nil
	})
}

// FetchAccountSnapshot totals realized and unrealized PnL across positions.
// An empty positions list is a valid flat account, not an error.
func (p *Provider) FetchAccountSnapshot(ctx context.Context) (*broker.AccountSnapshot, error) {
	raw, err := p.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	p.remember(raw)

	snap := &broker.AccountSnapshot{Timestamp: p.client.clock()}
	for _, pos := range raw {
		snap.RealizedPnl += pos.RealizedProfit
		snap.UnrealizedPnl += pos.UnrealizedProfit
	}
	snap.TotalPnl = snap.RealizedPnl + snap.UnrealizedPnl
	return snap, nil
}

// FetchPositionSnapshots returns normalised views of the open positions.
// Rows with zero net quantity are already closed and excluded.
func (p *Provider) FetchPositionSnapshots(ctx context.Context) ([]broker.PositionSnapshot, error) {
	raw, err := p.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	p.remember(raw)

	out := make([]broker.PositionSnapshot, 0, len(raw))
	for _, pos := range raw {
		if pos.NetQty == 0 {
			continue
		}
		entry := pos.CostPrice
		if entry == 0 {
			entry = pos.BuyAvg
		}
		entryValue := entry * math.Abs(float64(pos.NetQty))
		out = append(out, broker.PositionSnapshot{
			ID:            pos.SecurityID,
			Symbol:        pos.TradingSymbol,
			Quantity:      float64(pos.NetQty),
			EntryValue:    entryValue,
			CurrentValue:  entryValue + pos.UnrealizedProfit,
			UnrealizedPnl: pos.UnrealizedProfit,
			PnlPercent:    broker.PnlPercentOf(pos.UnrealizedProfit, entryValue),
		})
	}
	return out, nil
}

// ClosePosition squares off one position with an opposite-side market order.
func (p *Provider) ClosePosition(ctx context.Context, id string) error {
	pos, ok := p.recall(id)
	if !ok {
		// Position not in the last fetch; refresh once before giving up.
		raw, err := p.client.GetPositions(ctx)
		if err != nil {
			return fmt.Errorf("dhan: close position %s: %w", id, err)
		}
		p.remember(raw)
		if pos, ok = p.recall(id); !ok {
			return fmt.Errorf("dhan: close position %s: unknown position", id)
		}
	}
	if pos.NetQty == 0 {
		return nil
	}

	side := "SELL"
	if pos.NetQty < 0 {
		side = "BUY"
	}
	clientID := p.clientID
	if clientID == "" {
		clientID = pos.DhanClientID
	}
	order := OrderRequest{
		DhanClientID:    clientID,
		TransactionType: side,
		ExchangeSegment: pos.ExchangeSegment,
		ProductType:     pos.ProductType,
		OrderType:       "MARKET",
		Validity:        "DAY",
		SecurityID:      pos.SecurityID,
		Quantity:        strconv.FormatInt(absQty(pos.NetQty), 10),
	}
	resp, err := p.client.PlaceOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("dhan: square off %s: %w", pos.TradingSymbol, err)
	}
	p.client.logf("dhan: squared off %s qty=%d side=%s order=%s", pos.TradingSymbol, absQty(pos.NetQty), side, resp.OrderID)
	return nil
}

// CancelPendingOrders cancels every order still in a cancellable state.
// Returns an error if any individual cancellation failed so the caller can
// retry next tick.
func (p *Provider) CancelPendingOrders(ctx context.Context) error {
	orders, err := p.client.GetOrders(ctx)
	if err != nil {
		return fmt.Errorf("dhan: list orders: %w", err)
	}
	var failed int
	for _, order := range orders {
		if !order.pending() {
			continue
		}
		if err := p.client.CancelOrder(ctx, order.OrderID); err != nil {
			p.client.logf("dhan: cancel order %s (%s) failed: %v", order.OrderID, order.TradingSymbol, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("dhan: %d pending order cancellations failed", failed)
	}
	return nil
}

// InvokeKillSwitch disables trading on the account for the rest of the day.
func (p *Provider) InvokeKillSwitch(ctx context.Context) error {
	resp, err := p.client.ActivateKillSwitch(ctx)
	if err != nil {
		return err
	}
	p.client.logf("dhan: kill switch activated for client %s", resp.DhanClientID)
	return nil
}

func (p *Provider) remember(raw []Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRaw = make(map[string]Position, len(raw))
	for _, pos := range raw {
		p.lastRaw[pos.SecurityID] = pos
		if p.clientID == "" {
			p.clientID = pos.DhanClientID
		}
	}
}

func (p *Provider) recall(id string) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.lastRaw[id]
	return pos, ok
}

func absQty(q int64) int64 {
	if q < 0 {
		return -q
	}
	return q
}
