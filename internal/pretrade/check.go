// Package pretrade runs the what-if margin and notional estimate the desk
// requires before a human signs off on a queued order.
package pretrade

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/broker"
	"github.com/ksred/desk-api/internal/contracts"
)

// Request identifies the hypothetical order to evaluate. The contract must
// already be in the local catalog; the check never resolves symbols itself.
type Request struct {
	ConID     int64  `json:"con_id"`
	Side      string `json:"side"`
	Quantity  int    `json:"quantity"`
	AccountID uint   `json:"account_id"`
}

// Report is the persisted result of one pre-trade check.
type Report struct {
	ConID             int64    `json:"con_id"`
	Symbol            string   `json:"symbol"`
	LocalSymbol       string   `json:"local_symbol,omitempty"`
	DisplayName       string   `json:"display_name"`
	Account           string   `json:"account"`
	Side              string   `json:"side"`
	Quantity          int      `json:"quantity"`
	ReferencePrice    *float64 `json:"reference_price,omitempty"`
	ReferenceSource   string   `json:"reference_source,omitempty"` // mid, last or close
	Multiplier        float64  `json:"multiplier"`
	EstimatedNotional *float64 `json:"estimated_notional,omitempty"`
	InitMarginBefore  *float64 `json:"init_margin_before,omitempty"`
	InitMarginAfter   *float64 `json:"init_margin_after,omitempty"`
	MaintMarginBefore *float64 `json:"maint_margin_before,omitempty"`
	MaintMarginAfter  *float64 `json:"maint_margin_after,omitempty"`
	Commission        *float64 `json:"commission,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Checker wires the catalog, the account book and the gateway together.
type Checker struct {
	contracts *contracts.Database
	accounts  *accounts.Database
	gateway   broker.Gateway
	logger    zerolog.Logger
}

func NewChecker(contractDB *contracts.Database, accountDB *accounts.Database, gw broker.Gateway, logger zerolog.Logger) *Checker {
	return &Checker{
		contracts: contractDB,
		accounts:  accountDB,
		gateway:   gw,
		logger:    logger.With().Str("component", "pretrade").Logger(),
	}
}

// Run evaluates the request: qualify the contract, ask the gateway for the
// what-if margin impact, and estimate notional from a live quote. Quote
// failures degrade the report (no notional) instead of failing the check;
// margin failures fail it.
func (c *Checker) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be >= 1, got %d", req.Quantity)
	}
	side := strings.ToUpper(strings.TrimSpace(req.Side))
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("side must be BUY or SELL, got %q", req.Side)
	}

	ref, err := c.contracts.ByConID(req.ConID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("con_id %d is not in the contract catalog", req.ConID)
	}
	account, err := c.accounts.GetByID(req.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %d not found", req.AccountID)
	}

	spec := broker.ContractSpec{ConID: ref.ConID, Exchange: ref.Exchange, Currency: ref.Currency}
	qualified, err := c.gateway.QualifyContract(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("contract qualification failed: %w", err)
	}

	report := &Report{
		ConID:       ref.ConID,
		Symbol:      ref.Symbol,
		LocalSymbol: ref.LocalSymbol,
		DisplayName: contracts.DisplayName(*ref, contracts.DisplayOptions{}),
		Account:     account.Account,
		Side:        side,
		Quantity:    req.Quantity,
		Multiplier:  parseMultiplier(qualified.Multiplier),
	}

	whatIf, err := c.gateway.WhatIfOrder(ctx, *qualified, broker.MarketOrder{
		Account:  account.Account,
		Side:     side,
		Quantity: req.Quantity,
		TIF:      "DAY",
	})
	if err != nil {
		return nil, fmt.Errorf("what-if check failed: %w", err)
	}
	report.InitMarginBefore = whatIf.InitMarginBefore
	report.InitMarginAfter = whatIf.InitMarginAfter
	report.MaintMarginBefore = whatIf.MaintMarginBefore
	report.MaintMarginAfter = whatIf.MaintMarginAfter
	report.Commission = whatIf.Commission
	if whatIf.WarningText != "" {
		report.Warnings = append(report.Warnings, whatIf.WarningText)
	}

	ticker, err := c.gateway.Snapshot(ctx, *qualified)
	if err != nil {
		c.logger.Warn().Err(err).Int64("con_id", ref.ConID).Msg("Quote snapshot failed, skipping notional estimate")
		report.Warnings = append(report.Warnings, fmt.Sprintf("no quote available: %v", err))
		return report, nil
	}
	price, source := referencePrice(ticker)
	if price > 0 {
		report.ReferencePrice = &price
		report.ReferenceSource = source
		notional := float64(req.Quantity) * price * report.Multiplier
		report.EstimatedNotional = &notional
	} else {
		report.Warnings = append(report.Warnings, "quote had no usable price")
	}
	return report, nil
}

// referencePrice picks the first positive price in mid, last, close order.
func referencePrice(t *broker.TickerSnapshot) (float64, string) {
	if t == nil {
		return 0, ""
	}
	if mid := t.Mid(); mid > 0 {
		return mid, "mid"
	}
	if t.Last > 0 {
		return t.Last, "last"
	}
	if t.Close > 0 {
		return t.Close, "close"
	}
	return 0, ""
}

// parseMultiplier tolerates the broker's stringly multipliers; a missing or
// malformed value falls back to 1 so notional is at worst an underestimate.
func parseMultiplier(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}
