package dhan

// Raw DhanHQ REST payloads. Field names mirror the upstream API so decoding
// stays a straight json.Unmarshal; normalisation into broker types happens in
// the provider layer.

// Position is one row of the GET /positions response.
type Position struct {
	DhanClientID     string  `json:"dhanClientId"`
	TradingSymbol    string  `json:"tradingSymbol"`
	SecurityID       string  `json:"securityId"`
	ExchangeSegment  string  `json:"exchangeSegment"`
	ProductType      string  `json:"productType"`
	NetQty           int64   `json:"netQty"`
	BuyAvg           float64 `json:"buyAvg"`
	CostPrice        float64 `json:"costPrice"`
	RealizedProfit   float64 `json:"realizedProfit"`
	UnrealizedProfit float64 `json:"unrealizedProfit"`
}

// OrderRequest is the POST /orders payload. Quantity and price fields are
// strings upstream.
type OrderRequest struct {
	DhanClientID      string `json:"dhanClientId"`
	TransactionType   string `json:"transactionType"` // "BUY" or "SELL"
	ExchangeSegment   string `json:"exchangeSegment"`
	ProductType       string `json:"productType"`
	OrderType         string `json:"orderType"` // "MARKET" for square-off
	Validity          string `json:"validity"`  // "DAY"
	SecurityID        string `json:"securityId"`
	Quantity          string `json:"quantity"`
	DisclosedQuantity string `json:"disclosedQuantity"`
	Price             string `json:"price"`
	TriggerPrice      string `json:"triggerPrice"`
	AfterMarketOrder  bool   `json:"afterMarketOrder"`
}

// OrderResponse acknowledges an order submission.
type OrderResponse struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

// OrderStatus is one row of the GET /orders response.
type OrderStatus struct {
	OrderID       string `json:"orderId"`
	TradingSymbol string `json:"tradingSymbol"`
	OrderStatus   string `json:"orderStatus"`
}

// KillSwitchResponse acknowledges a kill switch activation request.
type KillSwitchResponse struct {
	DhanClientID     string `json:"dhanClientId"`
	KillSwitchStatus string `json:"killSwitchStatus"`
}

const killSwitchActivated = "ACTIVATED"

// pendingOrder reports whether an order is still cancellable.
func (o OrderStatus) pending() bool {
	switch o.OrderStatus {
	case "PENDING", "TRANSIT":
		return true
	default:
		return false
	}
}
