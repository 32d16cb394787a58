package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ksred/desk-api/internal/contracts"
)

// Payload is the closed union of per-type job payloads. Each job type owns
// one payload shape, decoded and validated once at claim time rather than
// picked apart ad hoc inside handlers.
type Payload interface {
	jobPayload()
}

// PositionsSyncPayload has no parameters; the sync covers every account the
// gateway reports.
type PositionsSyncPayload struct{}

func (PositionsSyncPayload) jobPayload() {}

// ContractsSyncPayload lists the instrument specs to refresh. An empty list
// defaults to the desk's staple, CL futures on NYMEX.
type ContractsSyncPayload struct {
	Specs []contracts.InstrumentSpec `json:"specs,omitempty"`
}

func (ContractsSyncPayload) jobPayload() {}

// PretradeCheckPayload identifies the hypothetical order to margin-check.
type PretradeCheckPayload struct {
	ConID     int64  `json:"con_id"`
	Side      string `json:"side"`
	Quantity  int    `json:"quantity"`
	AccountID uint   `json:"account_id"`
}

func (PretradeCheckPayload) jobPayload() {}

// WatchlistQuotesPayload names the watch list whose quotes to refresh.
type WatchlistQuotesPayload struct {
	WatchListID uint `json:"watch_list_id"`
}

func (WatchlistQuotesPayload) jobPayload() {}

// DefaultContractsSyncSpecs is used when a contracts.sync payload names none.
func DefaultContractsSyncSpecs() []contracts.InstrumentSpec {
	return []contracts.InstrumentSpec{
		{Symbol: "CL", SecType: "FUT", Exchange: "NYMEX", Currency: "USD"},
	}
}

// DecodePayload decodes and validates the payload for a claimed job. A
// malformed payload is a job failure, never a worker failure.
func DecodePayload(jobType string, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch jobType {
	case TypePositionsSync:
		var p PositionsSyncPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", jobType, err)
		}
		return p, nil

	case TypeContractsSync:
		var p ContractsSyncPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", jobType, err)
		}
		if len(p.Specs) == 0 {
			p.Specs = DefaultContractsSyncSpecs()
		}
		for _, spec := range p.Specs {
			if strings.TrimSpace(spec.Symbol) == "" {
				return nil, fmt.Errorf("%s payload: every spec needs a symbol", jobType)
			}
			secType := strings.ToUpper(strings.TrimSpace(spec.SecType))
			if secType != "STK" && secType != "OPT" && strings.TrimSpace(spec.Exchange) == "" {
				return nil, fmt.Errorf("%s payload: no exchange specified for %s %s; the payload must include an exchange",
					jobType, spec.Symbol, spec.SecType)
			}
		}
		return p, nil

	case TypePretradeCheck:
		var p PretradeCheckPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", jobType, err)
		}
		if p.ConID == 0 {
			return nil, fmt.Errorf("%s payload requires integer con_id", jobType)
		}
		p.Side = strings.ToUpper(strings.TrimSpace(p.Side))
		if p.Side != "BUY" && p.Side != "SELL" {
			return nil, fmt.Errorf("%s payload requires side BUY or SELL", jobType)
		}
		if p.Quantity < 1 {
			return nil, fmt.Errorf("%s payload requires positive integer quantity", jobType)
		}
		if p.AccountID == 0 {
			return nil, fmt.Errorf("%s payload requires integer account_id", jobType)
		}
		return p, nil

	case TypeWatchlistQuotes:
		var p WatchlistQuotesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", jobType, err)
		}
		if p.WatchListID == 0 {
			return nil, fmt.Errorf("%s payload requires integer watch_list_id", jobType)
		}
		return p, nil
	}

	return nil, fmt.Errorf("unsupported job_type %q", jobType)
}
