package broker

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is a scriptable in-memory Gateway used by tests and the
// simulation binary. Script the responses you need; anything unscripted
// returns a descriptive error so tests fail loudly.
type MockGateway struct {
	mu sync.Mutex

	ConnectErr error
	connected  bool

	Accounts     []string
	PositionList []PositionItem

	// Details keyed by "SYMBOL/SECTYPE"; QualifyResults keyed by con id.
	Details        map[string][]Contract
	QualifyResults map[int64]*Contract
	QualifyErr     error
	Chains         []OptionChain

	// Snapshots per broker order id, consumed in order; the last entry
	// repeats once the script is exhausted.
	PlaceErr       error
	nextOrderID    int64
	OrderSnapshots map[int64][]OrderSnapshot
	snapshotCursor map[int64]int

	WhatIf     *WhatIfResult
	WhatIfErr  error
	Ticker     *TickerSnapshot
	TickerErr  error
	PlacedWith []MarketOrder
}

// NewMockGateway returns an empty mock ready for scripting.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Details:        make(map[string][]Contract),
		QualifyResults: make(map[int64]*Contract),
		OrderSnapshots: make(map[int64][]OrderSnapshot),
		snapshotCursor: make(map[int64]int),
		nextOrderID:    1000,
	}
}

// DetailsKey builds the lookup key used by ContractDetails scripting.
func DetailsKey(symbol, secType string) string {
	return symbol + "/" + secType
}

func (m *MockGateway) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

func (m *MockGateway) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockGateway) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockGateway) ManagedAccounts(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Accounts...), nil
}

func (m *MockGateway) Positions(_ context.Context) ([]PositionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PositionItem(nil), m.PositionList...), nil
}

func (m *MockGateway) ContractDetails(_ context.Context, spec ContractSpec) ([]Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contracts, ok := m.Details[DetailsKey(spec.Symbol, spec.SecType)]
	if !ok {
		return nil, nil
	}
	return append([]Contract(nil), contracts...), nil
}

func (m *MockGateway) QualifyContract(_ context.Context, spec ContractSpec) (*Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QualifyErr != nil {
		return nil, m.QualifyErr
	}
	if contract, ok := m.QualifyResults[spec.ConID]; ok {
		copied := *contract
		return &copied, nil
	}
	return nil, fmt.Errorf("mock gateway: no qualify result scripted for con_id=%d", spec.ConID)
}

func (m *MockGateway) OptionChains(_ context.Context, _ Contract) ([]OptionChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OptionChain(nil), m.Chains...), nil
}

func (m *MockGateway) PlaceMarketOrder(_ context.Context, _ Contract, order MarketOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlaceErr != nil {
		return 0, m.PlaceErr
	}
	m.nextOrderID++
	m.PlacedWith = append(m.PlacedWith, order)
	return m.nextOrderID, nil
}

// ScriptOrder registers the snapshot sequence the next placed order walks
// through and returns its broker order id.
func (m *MockGateway) ScriptOrder(snapshots ...OrderSnapshot) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextOrderID + 1
	m.OrderSnapshots[id] = snapshots
	return id
}

func (m *MockGateway) OrderSnapshot(_ context.Context, brokerOrderID int64) (*OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	script, ok := m.OrderSnapshots[brokerOrderID]
	if !ok || len(script) == 0 {
		return nil, fmt.Errorf("mock gateway: no snapshots scripted for broker_order_id=%d", brokerOrderID)
	}
	cursor := m.snapshotCursor[brokerOrderID]
	if cursor >= len(script) {
		cursor = len(script) - 1
	} else {
		m.snapshotCursor[brokerOrderID] = cursor + 1
	}
	snapshot := script[cursor]
	snapshot.BrokerOrderID = brokerOrderID
	return &snapshot, nil
}

func (m *MockGateway) CancelOrder(_ context.Context, _ int64) error {
	return nil
}

func (m *MockGateway) WhatIfOrder(_ context.Context, _ Contract, _ MarketOrder) (*WhatIfResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WhatIfErr != nil {
		return nil, m.WhatIfErr
	}
	if m.WhatIf == nil {
		return nil, fmt.Errorf("mock gateway: no what-if result scripted")
	}
	copied := *m.WhatIf
	return &copied, nil
}

func (m *MockGateway) Snapshot(_ context.Context, _ Contract) (*TickerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TickerErr != nil {
		return nil, m.TickerErr
	}
	if m.Ticker == nil {
		return nil, fmt.Errorf("mock gateway: no ticker scripted")
	}
	copied := *m.Ticker
	return &copied, nil
}

var _ Gateway = (*MockGateway)(nil)
