// Package broker defines the trading gateway contract the workers talk to.
// The wire protocol behind it (TWS, FIX, vendor SDK) is deliberately out of
// scope; everything in this repository depends only on the Gateway interface.
package broker

import "context"

// ContractSpec describes an instrument query sent to the gateway. A zero ConID
// means "look it up"; a non-zero ConID pins an exact contract for qualification.
type ContractSpec struct {
	ConID          int64
	Symbol         string
	SecType        string // STK, FUT, OPT, FOP, IND
	Exchange       string
	Currency       string
	LocalSymbol    string
	TradingClass   string
	ContractMonth  string // compact YYYYMM, as the gateway expects
	ContractExpiry string // raw YYYYMMDD or YYYYMM
	Multiplier     string
	Strike         float64
	Right          string // C or P
}

// Contract is a fully identified instrument returned by the gateway.
type Contract struct {
	ConID           int64
	Symbol          string
	SecType         string
	Exchange        string
	PrimaryExchange string
	Currency        string
	LocalSymbol     string
	TradingClass    string
	ContractExpiry  string // raw lastTradeDateOrContractMonth
	Multiplier      string
	Strike          float64
	Right           string
}

// PositionItem is one holding reported by the gateway.
type PositionItem struct {
	Account  string
	Contract Contract
	Position float64
	AvgCost  float64
}

// MarketOrder is the only order shape this desk submits.
type MarketOrder struct {
	Account  string
	Side     string // BUY or SELL
	Quantity int
	TIF      string // DAY, GTC
}

// OrderSnapshot is the gateway's view of a working order at one poll.
type OrderSnapshot struct {
	BrokerOrderID int64
	BrokerPermID  int64
	Status        string // raw broker status string, e.g. "PreSubmitted"
	Filled        float64
	Remaining     float64
	AvgFillPrice  float64
	Done          bool
	AdvancedError string
}

// WhatIfResult carries the hypothetical margin impact of an unsubmitted order.
type WhatIfResult struct {
	InitMarginBefore  *float64
	InitMarginAfter   *float64
	MaintMarginBefore *float64
	MaintMarginAfter  *float64
	Commission        *float64
	WarningText       string
}

// TickerSnapshot is a point-in-time quote for one contract.
type TickerSnapshot struct {
	Bid   float64
	Ask   float64
	Last  float64
	Close float64
}

// Mid returns the bid/ask midpoint, or 0 when either side is missing.
func (t TickerSnapshot) Mid() float64 {
	if t.Bid > 0 && t.Ask > 0 {
		return (t.Bid + t.Ask) / 2
	}
	return 0
}

// OptionChain is the gateway's option-chain metadata for one underlying,
// used for FOP selection where identity hangs off the underlying chain.
type OptionChain struct {
	Exchange        string
	UnderlyingConID int64
	TradingClass    string
	Multiplier      string
	Expirations     []string
	Strikes         []float64
}

// Gateway is the broker connection used by the workers. Implementations are
// synchronous-with-polling: PlaceMarketOrder returns a broker order id and
// OrderSnapshot is polled until the order is done or the caller gives up.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	ManagedAccounts(ctx context.Context) ([]string, error)
	Positions(ctx context.Context) ([]PositionItem, error)

	ContractDetails(ctx context.Context, spec ContractSpec) ([]Contract, error)
	QualifyContract(ctx context.Context, spec ContractSpec) (*Contract, error)
	OptionChains(ctx context.Context, underlying Contract) ([]OptionChain, error)

	PlaceMarketOrder(ctx context.Context, contract Contract, order MarketOrder) (int64, error)
	OrderSnapshot(ctx context.Context, brokerOrderID int64) (*OrderSnapshot, error)
	CancelOrder(ctx context.Context, brokerOrderID int64) error

	WhatIfOrder(ctx context.Context, contract Contract, order MarketOrder) (*WhatIfResult, error)
	Snapshot(ctx context.Context, contract Contract) (*TickerSnapshot, error)
}
