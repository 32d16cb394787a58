package contracts

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMinDaysToExpiry is the expiry safety window applied when a request
// does not set one: contracts closer to settlement are never selected.
const DefaultMinDaysToExpiry = 7

// ResolveRequest asks the catalog for exactly one tradable contract.
type ResolveRequest struct {
	Symbol          string
	SecType         string // STK, FUT, OPT, FOP, IND
	ContractMonth   string // canonical YYYY-MM, or empty for front month
	Strike          *float64
	Right           string // C/P/CALL/PUT, case-insensitive
	MinDaysToExpiry int    // 0 means DefaultMinDaysToExpiry
	DisableFallback bool   // fail instead of substituting the nearest month
}

// Resolved is the selected contract plus the metadata callers use to render
// "month X unavailable, using Y instead" messaging.
type Resolved struct {
	ContractRef
	DaysToExpiry            *int     `json:"days_to_expiry,omitempty"`
	RequestedContractMonth  string   `json:"requested_contract_month,omitempty"`
	RequestedAvailable      bool     `json:"requested_available"`
	AvailableContractMonths []string `json:"available_contract_months"`
}

// ResolutionErrorKind distinguishes the resolver's user-facing failure modes.
type ResolutionErrorKind string

const (
	ErrKindNoContracts      ResolutionErrorKind = "no_contracts"
	ErrKindMonthUnavailable ResolutionErrorKind = "month_unavailable"
	ErrKindStrikeNotFound   ResolutionErrorKind = "strike_not_found"
	ErrKindAmbiguous        ResolutionErrorKind = "ambiguous_selection"
	ErrKindDataIntegrity    ResolutionErrorKind = "data_integrity"
	ErrKindBadRequest       ResolutionErrorKind = "bad_request"
)

// ResolutionError is never a silent guess: each kind names what was requested
// and enumerates the alternatives that do exist.
type ResolutionError struct {
	Kind             ResolutionErrorKind
	Message          string
	AvailableMonths  []string
	AvailableStrikes []float64
	Candidates       []string
}

func (e *ResolutionError) Error() string { return e.Message }

// HTTPStatus maps the failure kind onto the status code the API returns for
// it, so pkg/response can surface resolution failures without importing this
// package.
func (e *ResolutionError) HTTPStatus() int {
	switch e.Kind {
	case ErrKindBadRequest:
		return http.StatusBadRequest
	case ErrKindNoContracts:
		return http.StatusNotFound
	case ErrKindDataIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// NormalizeRight maps C/CALL → C and P/PUT → P, case-insensitively.
func NormalizeRight(right string) (string, error) {
	value := strings.ToUpper(strings.TrimSpace(right))
	switch value {
	case "":
		return "", nil
	case "C", "CALL":
		return "C", nil
	case "P", "PUT":
		return "P", nil
	}
	return "", &ResolutionError{
		Kind:    ErrKindBadRequest,
		Message: fmt.Sprintf("right must be one of C/CALL or P/PUT, got %q", right),
	}
}

// Resolver selects contracts from the local catalog.
type Resolver struct {
	db  *Database
	now func() time.Time
}

func NewResolver(db *Database) *Resolver {
	return &Resolver{db: db, now: time.Now}
}

// Resolve maps a trading request to exactly one catalog contract or fails
// with an actionable diagnostic. See ResolutionErrorKind for failure modes.
func (r *Resolver) Resolve(req ResolveRequest) (*Resolved, error) {
	secType := strings.ToUpper(strings.TrimSpace(req.SecType))
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		return nil, &ResolutionError{Kind: ErrKindBadRequest, Message: "symbol is required"}
	}
	if req.MinDaysToExpiry == 0 {
		req.MinDaysToExpiry = DefaultMinDaysToExpiry
	}

	switch secType {
	case "STK", "IND":
		return r.resolveStock(symbol, secType)
	case "OPT", "FOP":
		return r.resolveOption(symbol, secType, req)
	case "FUT":
		return r.resolveFuture(symbol, secType, req)
	}
	return nil, &ResolutionError{
		Kind:    ErrKindBadRequest,
		Message: fmt.Sprintf("unsupported sec_type %q", req.SecType),
	}
}

type candidate struct {
	ref ContractRef
	dte int
}

func (r *Resolver) resolveStock(symbol, secType string) (*Resolved, error) {
	refs, err := r.db.ActiveContracts(symbol, secType, nil, "")
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, &ResolutionError{
			Kind: ErrKindNoContracts,
			Message: fmt.Sprintf("no active %s contract for %s in the catalog; run a contracts.sync job first",
				secType, symbol),
		}
	}
	if len(refs) > 1 {
		return nil, &ResolutionError{
			Kind: ErrKindDataIntegrity,
			Message: fmt.Sprintf("found %d active %s rows for %s; the catalog should hold exactly one",
				len(refs), secType, symbol),
			Candidates: describeAll(refs),
		}
	}
	return &Resolved{
		ContractRef:             refs[0],
		RequestedAvailable:      true,
		AvailableContractMonths: []string{},
	}, nil
}

func (r *Resolver) resolveFuture(symbol, secType string, req ResolveRequest) (*Resolved, error) {
	candidates, err := r.loadCandidates(symbol, secType, req.MinDaysToExpiry, nil, "")
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, r.noCandidatesError(symbol, secType, req.MinDaysToExpiry)
	}

	byMonth, months := groupByMonth(candidates)
	selected, meta, err := pickMonth(byMonth, months, req.ContractMonth, !req.DisableFallback, symbol+" "+secType)
	if err != nil {
		return nil, err
	}
	// Earliest expiry per month wins; candidates arrive expiry-ascending.
	chosen := selected[0]
	return buildResolved(chosen, meta), nil
}

func (r *Resolver) resolveOption(symbol, secType string, req ResolveRequest) (*Resolved, error) {
	right, err := NormalizeRight(req.Right)
	if err != nil {
		return nil, err
	}

	candidates, err := r.loadCandidates(symbol, secType, req.MinDaysToExpiry, req.Strike, right)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 && req.Strike != nil {
		// No exact strike match: enumerate the strikes that do exist.
		all, err := r.loadCandidates(symbol, secType, req.MinDaysToExpiry, nil, right)
		if err != nil {
			return nil, err
		}
		strikes := availableStrikes(all)
		return nil, &ResolutionError{
			Kind: ErrKindStrikeNotFound,
			Message: fmt.Sprintf("no active %s %s contract with strike=%s; available strikes: %s",
				symbol, secType, formatStrike(*req.Strike), formatStrikes(strikes)),
			AvailableStrikes: strikes,
		}
	}
	if len(candidates) == 0 {
		return nil, r.noCandidatesError(symbol, secType, req.MinDaysToExpiry)
	}

	byMonth, months := groupByMonth(candidates)
	selected, meta, err := pickMonth(byMonth, months, req.ContractMonth, !req.DisableFallback, symbol+" "+secType)
	if err != nil {
		return nil, err
	}
	if len(selected) > 1 {
		refs := make([]ContractRef, 0, len(selected))
		for _, c := range selected {
			refs = append(refs, c.ref)
		}
		return nil, &ResolutionError{
			Kind: ErrKindAmbiguous,
			Message: fmt.Sprintf("ambiguous option selection for %s %s: %d contracts match; "+
				"provide contract_month, strike, and right to select one (candidates: %s)",
				symbol, secType, len(selected), strings.Join(describeAll(refs[:min(len(refs), 5)]), "; ")),
			Candidates: describeAll(refs),
		}
	}
	return buildResolved(selected[0], meta), nil
}

// strikeTolerance bounds float comparison when matching requested strikes.
const strikeTolerance = 1e-9

// loadCandidates loads active rows surviving the expiry safety filter,
// expiry-ascending. Strike matching happens here, not in SQL, so the
// tolerance applies.
func (r *Resolver) loadCandidates(symbol, secType string, minDTE int, strike *float64, right string) ([]candidate, error) {
	refs, err := r.db.ActiveContracts(symbol, secType, nil, right)
	if err != nil {
		return nil, err
	}
	today := r.now()
	candidates := make([]candidate, 0, len(refs))
	for _, ref := range refs {
		if strike != nil {
			if ref.Strike == nil || abs(*ref.Strike-*strike) >= strikeTolerance {
				continue
			}
		}
		dte, ok := DaysToExpiry(ref.ContractExpiry, today)
		if !ok || dte < minDTE {
			continue
		}
		candidates = append(candidates, candidate{ref: ref, dte: dte})
	}
	return candidates, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (r *Resolver) noCandidatesError(symbol, secType string, minDTE int) error {
	return &ResolutionError{
		Kind: ErrKindNoContracts,
		Message: fmt.Sprintf("no active %s %s contracts in the catalog outside the near-expiry safety window "+
			"(min_days_to_expiry=%d); run a contracts.sync job first", symbol, secType, minDTE),
	}
}

// groupByMonth buckets candidates by contract month, preserving the
// expiry-ascending month order. Rows with no derivable month are skipped.
func groupByMonth(candidates []candidate) (map[string][]candidate, []string) {
	byMonth := make(map[string][]candidate)
	var months []string
	for _, c := range candidates {
		month := c.ref.ContractMonth
		if month == "" {
			month = MonthFromExpiry(c.ref.ContractExpiry)
		}
		if month == "" {
			continue
		}
		if _, seen := byMonth[month]; !seen {
			months = append(months, month)
		}
		byMonth[month] = append(byMonth[month], c)
	}
	return byMonth, months
}

type monthMeta struct {
	requestedMonth     string
	requestedAvailable bool
	availableMonths    []string
}

// pickMonth applies the month selection policy: exact requested month, else
// nearest-month fallback when allowed, else the front month.
func pickMonth(byMonth map[string][]candidate, months []string, requested string, allowFallback bool, label string) ([]candidate, monthMeta, error) {
	if len(months) == 0 {
		return nil, monthMeta{}, &ResolutionError{
			Kind:    ErrKindNoContracts,
			Message: fmt.Sprintf("no %s contracts with valid contract month data", label),
		}
	}

	meta := monthMeta{requestedMonth: requested, availableMonths: months}
	_, meta.requestedAvailable = byMonth[requested]
	if requested == "" {
		meta.requestedAvailable = true
	}

	var selectedMonth string
	switch {
	case requested != "" && meta.requestedAvailable:
		selectedMonth = requested
	case requested != "" && !meta.requestedAvailable:
		if !allowFallback {
			display := make([]string, len(months))
			for i, m := range months {
				display[i] = DisplayMonth(m)
			}
			return nil, monthMeta{}, &ResolutionError{
				Kind: ErrKindMonthUnavailable,
				Message: fmt.Sprintf("%s %s contract is not currently available; available contract months: %s",
					DisplayMonth(requested), label, strings.Join(display, ", ")),
				AvailableMonths: months,
			}
		}
		selectedMonth = months[0]
	default:
		selectedMonth = months[0]
	}

	return byMonth[selectedMonth], meta, nil
}

func buildResolved(c candidate, meta monthMeta) *Resolved {
	dte := c.dte
	months := meta.availableMonths
	if months == nil {
		months = []string{}
	}
	return &Resolved{
		ContractRef:             c.ref,
		DaysToExpiry:            &dte,
		RequestedContractMonth:  meta.requestedMonth,
		RequestedAvailable:      meta.requestedAvailable,
		AvailableContractMonths: months,
	}
}

func availableStrikes(candidates []candidate) []float64 {
	seen := make(map[float64]bool)
	var strikes []float64
	for _, c := range candidates {
		if c.ref.Strike == nil || seen[*c.ref.Strike] {
			continue
		}
		seen[*c.ref.Strike] = true
		strikes = append(strikes, *c.ref.Strike)
	}
	sort.Float64s(strikes)
	return strikes
}

func formatStrikes(strikes []float64) string {
	if len(strikes) == 0 {
		return "none (run contracts.sync)"
	}
	if len(strikes) > 20 {
		strikes = strikes[:20]
	}
	parts := make([]string, len(strikes))
	for i, s := range strikes {
		parts[i] = formatStrike(s)
	}
	return strings.Join(parts, ", ")
}

func formatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'g', -1, 64)
}

func describeAll(refs []ContractRef) []string {
	described := make([]string, len(refs))
	for i, ref := range refs {
		described[i] = describeRef(ref)
	}
	return described
}

func describeRef(ref ContractRef) string {
	expiry := ref.ContractExpiry
	if expiry == "" {
		expiry = "unknown"
	}
	local := ref.LocalSymbol
	if local == "" {
		local = "unknown"
	}
	strike := "none"
	if ref.Strike != nil {
		strike = formatStrike(*ref.Strike)
	}
	return fmt.Sprintf("con_id=%d, local_symbol=%s, expiry=%s, strike=%s, right=%s",
		ref.ConID, local, expiry, strike, ref.Right)
}

