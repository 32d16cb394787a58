package contracts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ksred/desk-api/internal/broker"
)

// SelectionRequest asks the gateway (not the catalog) for one contract.
// Used for one-off lookups such as adding a watch-list instrument.
type SelectionRequest struct {
	Symbol        string
	SecType       string // STK, IND, FUT, OPT, FOP
	Exchange      string
	Currency      string // defaults to USD
	ContractMonth string // canonical YYYY-MM or empty
	Strike        *float64
	Right         string
}

// SelectFromGateway picks exactly one contract straight from the broker,
// returning the contract and how many candidates matched before the final
// pick. Each sec type runs the same build-spec, request, filter, sort,
// validate pipeline; FOP first resolves the underlying option chain because
// its identity hangs off a separate qualification step.
func SelectFromGateway(ctx context.Context, gw broker.Gateway, req SelectionRequest) (*broker.Contract, int, error) {
	req.SecType = strings.ToUpper(strings.TrimSpace(req.SecType))
	if req.Currency == "" {
		req.Currency = "USD"
	}
	right, err := NormalizeRight(req.Right)
	if err != nil {
		return nil, 0, err
	}
	req.Right = right

	switch req.SecType {
	case "STK", "IND":
		return selectListed(ctx, gw, req)
	case "FUT":
		return selectFuture(ctx, gw, req)
	case "OPT":
		return selectOption(ctx, gw, req)
	case "FOP":
		return selectFutureOption(ctx, gw, req)
	}
	return nil, 0, &ResolutionError{
		Kind:    ErrKindBadRequest,
		Message: fmt.Sprintf("unsupported sec_type %q", req.SecType),
	}
}

func selectListed(ctx context.Context, gw broker.Gateway, req SelectionRequest) (*broker.Contract, int, error) {
	candidates, err := requestContracts(ctx, gw, baseSpec(req))
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.PrimaryExchange != b.PrimaryExchange {
			return a.PrimaryExchange < b.PrimaryExchange
		}
		return a.ConID < b.ConID
	})
	return pickFirst(candidates, req)
}

func selectFuture(ctx context.Context, gw broker.Gateway, req SelectionRequest) (*broker.Contract, int, error) {
	spec := baseSpec(req)
	if req.ContractMonth != "" {
		spec.ContractMonth = CompactMonth(req.ContractMonth)
	}
	candidates, err := requestContracts(ctx, gw, spec)
	if err != nil {
		return nil, 0, err
	}
	candidates = filterContracts(candidates, req)
	sortByExpiry(candidates)
	return pickFirst(candidates, req)
}

func selectOption(ctx context.Context, gw broker.Gateway, req SelectionRequest) (*broker.Contract, int, error) {
	spec := optionSpec(req, "OPT")
	candidates, err := requestContracts(ctx, gw, spec)
	if err != nil {
		return nil, 0, err
	}
	candidates = filterContracts(candidates, req)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		ka, kb := expirySortKey(a.ContractExpiry), expirySortKey(b.ContractExpiry)
		if !ka.Equal(kb) {
			return ka.Before(kb)
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.Right < b.Right
	})
	if len(candidates) > 1 {
		described := make([]string, 0, len(candidates))
		for _, c := range candidates {
			described = append(described, describeGatewayContract(c))
		}
		top := described
		if len(top) > 5 {
			top = top[:5]
		}
		return nil, len(candidates), &ResolutionError{
			Kind: ErrKindAmbiguous,
			Message: fmt.Sprintf("ambiguous option selection for %s: %d matches; "+
				"provide contract_month, strike, and right to select one (top candidates: %s)",
				lookupContext(req), len(candidates), strings.Join(top, "; ")),
			Candidates: described,
		}
	}
	return pickFirst(candidates, req)
}

// selectFutureOption resolves the underlying chain metadata first: FOP specs
// need the chain's trading class and multiplier before contract details can
// identify one instrument.
func selectFutureOption(ctx context.Context, gw broker.Gateway, req SelectionRequest) (*broker.Contract, int, error) {
	underlying, err := gw.QualifyContract(ctx, broker.ContractSpec{
		Symbol:   req.Symbol,
		SecType:  "IND",
		Exchange: req.Exchange,
		Currency: req.Currency,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("qualifying FOP underlying for %s: %w", lookupContext(req), err)
	}

	chains, err := gw.OptionChains(ctx, *underlying)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching option chains for %s: %w", lookupContext(req), err)
	}
	if len(chains) == 0 {
		return nil, 0, &ResolutionError{
			Kind: ErrKindNoContracts,
			Message: fmt.Sprintf("no FOP option chain metadata found for %s (underlying_con_id=%d)",
				lookupContext(req), underlying.ConID),
		}
	}

	candidates := filterChainCandidates(chains, req)
	selected := selectChain(candidates)
	if err := validateChain(candidates, req); err != nil {
		return nil, 0, err
	}

	spec := optionSpec(req, "FOP")
	if tc := strings.TrimSpace(selected.TradingClass); tc != "" {
		spec.TradingClass = tc
	}
	if mult := strings.TrimSpace(selected.Multiplier); mult != "" {
		spec.Multiplier = mult
	}

	qualified, err := gw.QualifyContract(ctx, spec)
	if err != nil {
		return nil, 0, fmt.Errorf("qualifying FOP spec for %s: %w", lookupContext(req), err)
	}
	contracts, err := requestContracts(ctx, gw, broker.ContractSpec{
		ConID:    qualified.ConID,
		Symbol:   qualified.Symbol,
		SecType:  "FOP",
		Exchange: qualified.Exchange,
		Currency: qualified.Currency,
	})
	if err != nil {
		return nil, 0, err
	}
	if len(contracts) == 0 {
		contracts = []broker.Contract{*qualified}
	}
	return &contracts[0], len(contracts), nil
}

func baseSpec(req SelectionRequest) broker.ContractSpec {
	return broker.ContractSpec{
		Symbol:   req.Symbol,
		SecType:  req.SecType,
		Exchange: req.Exchange,
		Currency: req.Currency,
	}
}

func optionSpec(req SelectionRequest, secType string) broker.ContractSpec {
	spec := baseSpec(req)
	spec.SecType = secType
	if req.ContractMonth != "" {
		spec.ContractMonth = CompactMonth(req.ContractMonth)
	}
	if req.Strike != nil {
		spec.Strike = *req.Strike
	}
	spec.Right = req.Right
	return spec
}

// requestContracts fetches details and dedupes by con id, dropping rows the
// gateway returned without one.
func requestContracts(ctx context.Context, gw broker.Gateway, spec broker.ContractSpec) ([]broker.Contract, error) {
	details, err := gw.ContractDetails(ctx, spec)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	result := make([]broker.Contract, 0, len(details))
	for _, contract := range details {
		if contract.ConID == 0 || seen[contract.ConID] {
			continue
		}
		seen[contract.ConID] = true
		result = append(result, contract)
	}
	return result, nil
}

func filterContracts(candidates []broker.Contract, req SelectionRequest) []broker.Contract {
	filtered := candidates[:0]
	for _, c := range candidates {
		if req.ContractMonth != "" && MonthFromExpiry(c.ContractExpiry) != req.ContractMonth {
			continue
		}
		if req.Strike != nil && abs(c.Strike-*req.Strike) >= strikeTolerance {
			continue
		}
		if req.Right != "" && strings.ToUpper(strings.TrimSpace(c.Right)) != req.Right {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

func sortByExpiry(candidates []broker.Contract) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return expirySortKey(candidates[i].ContractExpiry).Before(expirySortKey(candidates[j].ContractExpiry))
	})
}

// expirySortKey sorts unparseable expiries last.
func expirySortKey(raw string) time.Time {
	expiry, ok := ParseExpiry(raw)
	if !ok {
		return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return expiry
}

func pickFirst(candidates []broker.Contract, req SelectionRequest) (*broker.Contract, int, error) {
	if len(candidates) == 0 {
		return nil, 0, &ResolutionError{
			Kind: ErrKindNoContracts,
			Message: fmt.Sprintf("no contracts found for %s; check that the contract specification is correct",
				lookupContext(req)),
		}
	}
	return &candidates[0], len(candidates), nil
}

func lookupContext(req SelectionRequest) string {
	context := fmt.Sprintf("%s %s on %s", req.Symbol, req.SecType, req.Exchange)
	if req.ContractMonth != "" {
		context += " month=" + req.ContractMonth
	}
	if req.Strike != nil {
		context += " strike=" + formatStrike(*req.Strike)
	}
	if req.Right != "" {
		context += " right=" + req.Right
	}
	return context
}

// filterChainCandidates narrows chains by exchange, then month, then strike,
// keeping the wider set whenever a narrowing step would empty it.
func filterChainCandidates(chains []broker.OptionChain, req SelectionRequest) []broker.OptionChain {
	exchangeKey := strings.ToUpper(req.Exchange)
	candidates := make([]broker.OptionChain, 0, len(chains))
	for _, chain := range chains {
		if strings.ToUpper(chain.Exchange) == exchangeKey {
			candidates = append(candidates, chain)
		}
	}
	if len(candidates) == 0 {
		candidates = chains
	}

	if req.ContractMonth != "" {
		monthFiltered := make([]broker.OptionChain, 0, len(candidates))
		for _, chain := range candidates {
			if chainHasMonth(chain, req.ContractMonth) {
				monthFiltered = append(monthFiltered, chain)
			}
		}
		if len(monthFiltered) > 0 {
			candidates = monthFiltered
		}
	}

	if req.Strike != nil {
		strikeFiltered := make([]broker.OptionChain, 0, len(candidates))
		for _, chain := range candidates {
			if chainHasStrike(chain, *req.Strike) {
				strikeFiltered = append(strikeFiltered, chain)
			}
		}
		if len(strikeFiltered) > 0 {
			candidates = strikeFiltered
		}
	}

	return candidates
}

// selectChain prefers non-weekly trading classes with the deepest strike set.
func selectChain(chains []broker.OptionChain) broker.OptionChain {
	best := chains[0]
	bestKey := chainSortKey(best)
	for _, chain := range chains[1:] {
		if key := chainSortKey(chain); key < bestKey {
			best = chain
			bestKey = key
		}
	}
	return best
}

func chainSortKey(chain broker.OptionChain) string {
	tradingClass := strings.ToUpper(strings.TrimSpace(chain.TradingClass))
	weekly := 0
	if strings.HasPrefix(tradingClass, "WL") {
		weekly = 1
	}
	// Smaller sorts first: monthlies, then deeper strike sets, then name.
	return fmt.Sprintf("%d|%09d|%s", weekly, 999999999-len(chain.Strikes), tradingClass)
}

func validateChain(chains []broker.OptionChain, req SelectionRequest) error {
	if req.ContractMonth != "" {
		found := false
		expirations := make(map[string]bool)
		for _, chain := range chains {
			for _, expiry := range chain.Expirations {
				expirations[expiry] = true
				if MonthFromExpiry(expiry) == req.ContractMonth {
					found = true
				}
			}
		}
		if !found {
			sample := sortedKeys(expirations)
			if len(sample) > 10 {
				sample = sample[:10]
			}
			text := strings.Join(sample, ", ")
			if text == "" {
				text = "none"
			}
			return &ResolutionError{
				Kind: ErrKindMonthUnavailable,
				Message: fmt.Sprintf("no FOP expirations matching month=%s for %s on %s; available expirations: %s",
					req.ContractMonth, req.Symbol, req.Exchange, text),
			}
		}
	}

	if req.Strike != nil {
		var strikes []float64
		seen := make(map[float64]bool)
		found := false
		for _, chain := range chains {
			for _, strike := range chain.Strikes {
				if abs(strike-*req.Strike) < strikeTolerance {
					found = true
				}
				if !seen[strike] {
					seen[strike] = true
					strikes = append(strikes, strike)
				}
			}
		}
		if !found {
			sort.Float64s(strikes)
			return &ResolutionError{
				Kind: ErrKindStrikeNotFound,
				Message: fmt.Sprintf("no FOP strike=%s for %s on %s; available strikes: %s",
					formatStrike(*req.Strike), req.Symbol, req.Exchange, formatStrikes(strikes)),
				AvailableStrikes: strikes,
			}
		}
	}

	return nil
}

func chainHasMonth(chain broker.OptionChain, contractMonth string) bool {
	for _, expiry := range chain.Expirations {
		if MonthFromExpiry(expiry) == contractMonth {
			return true
		}
	}
	return false
}

func chainHasStrike(chain broker.OptionChain, strike float64) bool {
	for _, s := range chain.Strikes {
		if abs(s-strike) < strikeTolerance {
			return true
		}
	}
	return false
}

func describeGatewayContract(c broker.Contract) string {
	expiry := strings.TrimSpace(c.ContractExpiry)
	if expiry == "" {
		expiry = "unknown"
	}
	local := c.LocalSymbol
	if local == "" {
		local = "unknown"
	}
	return fmt.Sprintf("con_id=%d, local_symbol=%s, expiry=%s, strike=%s, right=%s",
		c.ConID, local, expiry, formatStrike(c.Strike), c.Right)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
