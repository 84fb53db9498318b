package models

import "github.com/shopspring/decimal"

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	OrdersInBook  int64  `json:"orders_in_book"`
}

type MetricsResponse struct {
	OrdersPlaced           int64   `json:"orders_placed"`
	OrdersRejected         int64   `json:"orders_rejected"`
	OrdersCanceled         int64   `json:"orders_canceled"`
	TradesExecuted         int64   `json:"trades_executed"`
	OrdersInBook           int64   `json:"orders_in_book"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}

type PriceLevelInfo struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type OrderBookResponse struct {
	Symbol    string           `json:"symbol"`
	Timestamp int64            `json:"timestamp"` // unix seconds
	Bids      []PriceLevelInfo `json:"bids"`      // best (highest) first
	Asks      []PriceLevelInfo `json:"asks"`      // best (lowest) first
}

type ExecutionInfo struct {
	Shares decimal.Decimal `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Time   int64           `json:"time"`
}

type CanceledInfo struct {
	Shares decimal.Decimal `json:"shares"`
	Time   int64           `json:"time"`
}

type OrderStatusResponse struct {
	OrderID    int64           `json:"order_id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Limit      decimal.Decimal `json:"limit"`
	Original   decimal.Decimal `json:"original_amount"`
	Open       decimal.Decimal `json:"open_shares"`
	Executions []ExecutionInfo `json:"executions"`
	Canceled   *CanceledInfo   `json:"canceled,omitempty"`
}

type AccountResponse struct {
	ID        string                     `json:"id"`
	Balance   decimal.Decimal            `json:"balance"`
	Positions map[string]decimal.Decimal `json:"positions"`
}
