// Package tradebot exposes the desk operations as typed tool calls: the
// request/response contracts a conversational front end invokes. There is no
// language understanding here; callers arrive with structured arguments.
package tradebot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/internal/orders"
	"github.com/ksred/desk-api/internal/positions"
)

// Tools bundles the stores the tool calls delegate to.
type Tools struct {
	contracts *contracts.Database
	resolver  *contracts.Resolver
	accounts  *accounts.Database
	positions *positions.Database
	orders    *orders.Database
	jobs      *jobs.Queue
	logger    zerolog.Logger
}

func NewTools(contractDB *contracts.Database, resolver *contracts.Resolver, accountDB *accounts.Database, positionDB *positions.Database, orderDB *orders.Database, jobQueue *jobs.Queue, logger zerolog.Logger) *Tools {
	return &Tools{
		contracts: contractDB,
		resolver:  resolver,
		accounts:  accountDB,
		positions: positionDB,
		orders:    orderDB,
		jobs:      jobQueue,
		logger:    logger.With().Str("component", "tradebot").Logger(),
	}
}

// PreviewOrderRequest describes the order a user is about to confirm. Month
// and right accept the human spellings NormalizeMonth and NormalizeRight
// understand.
type PreviewOrderRequest struct {
	Symbol        string   `json:"symbol"`
	SecType       string   `json:"sec_type"`
	Side          string   `json:"side"`
	Quantity      int      `json:"quantity"`
	Account       string   `json:"account"`
	ContractMonth string   `json:"contract_month,omitempty"`
	Strike        *float64 `json:"strike,omitempty"`
	Right         string   `json:"right,omitempty"`
}

// PreviewOrderResult tells the user exactly which contract and account a
// queued order would use, including whether the requested month was
// substituted.
type PreviewOrderResult struct {
	ConID                   int64    `json:"con_id"`
	DisplayName             string   `json:"display_name"`
	LocalSymbol             string   `json:"local_symbol,omitempty"`
	ContractMonth           string   `json:"contract_month,omitempty"`
	ContractExpiry          string   `json:"contract_expiry,omitempty"`
	DaysToExpiry            *int     `json:"days_to_expiry,omitempty"`
	RequestedContractMonth  string   `json:"requested_contract_month,omitempty"`
	RequestedAvailable      bool     `json:"requested_available"`
	AvailableContractMonths []string `json:"available_contract_months,omitempty"`
	MonthFallbackNote       string   `json:"month_fallback_note,omitempty"`
	Account                 string   `json:"account"`
	AccountID               uint     `json:"account_id"`
	Side                    string   `json:"side"`
	Quantity                int      `json:"quantity"`
}

// PreviewOrder resolves the contract and account a queue call would use
// without writing anything.
func (t *Tools) PreviewOrder(_ context.Context, req PreviewOrderRequest) (*PreviewOrderResult, error) {
	side := strings.ToUpper(strings.TrimSpace(req.Side))
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("side must be BUY or SELL, got %q", req.Side)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be >= 1, got %d", req.Quantity)
	}
	account, err := t.accounts.GetByIdentifier(strings.TrimSpace(req.Account))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %q not found", req.Account)
	}

	month := ""
	if req.ContractMonth != "" {
		normalized, err := contracts.NormalizeMonth(req.ContractMonth)
		if err != nil {
			return nil, err
		}
		month = normalized
	}

	resolved, err := t.resolver.Resolve(contracts.ResolveRequest{
		Symbol:        strings.ToUpper(strings.TrimSpace(req.Symbol)),
		SecType:       strings.ToUpper(strings.TrimSpace(req.SecType)),
		ContractMonth: month,
		Strike:        req.Strike,
		Right:         req.Right,
	})
	if err != nil {
		return nil, err
	}

	result := &PreviewOrderResult{
		ConID:                   resolved.ConID,
		DisplayName:             contracts.DisplayName(resolved.ContractRef, contracts.DisplayOptions{}),
		LocalSymbol:             resolved.LocalSymbol,
		ContractMonth:           resolved.ContractMonth,
		ContractExpiry:          resolved.ContractExpiry,
		DaysToExpiry:            resolved.DaysToExpiry,
		RequestedContractMonth:  resolved.RequestedContractMonth,
		RequestedAvailable:      resolved.RequestedAvailable,
		AvailableContractMonths: resolved.AvailableContractMonths,
		Account:                 account.Account,
		AccountID:               account.ID,
		Side:                    side,
		Quantity:                req.Quantity,
	}
	if resolved.RequestedContractMonth != "" && !resolved.RequestedAvailable {
		result.MonthFallbackNote = fmt.Sprintf("%s is not available; using %s instead",
			contracts.DisplayMonth(resolved.RequestedContractMonth),
			contracts.DisplayMonth(resolved.ContractMonth))
	}
	return result, nil
}

// QueueOrderRequest queues the previewed order. ConID pins the previewed
// contract so the worker requalifies exactly what the user confirmed.
type QueueOrderRequest struct {
	Symbol      string `json:"symbol"`
	SecType     string `json:"sec_type"`
	Side        string `json:"side"`
	Quantity    int    `json:"quantity"`
	Account     string `json:"account"`
	ConID       int64  `json:"con_id,omitempty"`
	RequestText string `json:"request_text,omitempty"`
}

// QueueOrder creates a queued order for the worker to pick up.
func (t *Tools) QueueOrder(_ context.Context, req QueueOrderRequest) (*orders.Order, error) {
	account, err := t.accounts.GetByIdentifier(strings.TrimSpace(req.Account))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %q not found", req.Account)
	}

	order, err := t.orders.Create(orders.CreateRequest{
		AccountID:   account.ID,
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		SecType:     strings.ToUpper(strings.TrimSpace(req.SecType)),
		Side:        strings.ToUpper(strings.TrimSpace(req.Side)),
		Quantity:    req.Quantity,
		Source:      "tradebot",
		RequestText: req.RequestText,
		ConID:       req.ConID,
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info().Uint("order_id", order.ID).Str("symbol", order.Symbol).Msg("Order queued from tradebot")
	return order, nil
}

// ListPositions returns the stored book for one account identifier.
func (t *Tools) ListPositions(account string) ([]positions.Position, error) {
	acct, err := t.accounts.GetByIdentifier(strings.TrimSpace(account))
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %q not found", account)
	}
	return t.positions.List(acct.ID)
}

// ListOrders returns recent orders.
func (t *Tools) ListOrders(limit int) ([]orders.Order, error) {
	return t.orders.List(limit)
}

// ListJobs returns recent jobs.
func (t *Tools) ListJobs(limit int) ([]jobs.Job, error) {
	return t.jobs.List(false, limit)
}

// ListContracts returns active catalog rows for a symbol.
func (t *Tools) ListContracts(symbol string, limit int) ([]contracts.ContractRef, error) {
	return t.contracts.List(strings.ToUpper(strings.TrimSpace(symbol)), true, limit)
}
