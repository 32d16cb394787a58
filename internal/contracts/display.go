package contracts

import (
	"fmt"
	"strconv"
	"strings"
)

// DisplayOptions controls the optional parts of a contract label.
type DisplayOptions struct {
	IncludeExchange bool
}

// DisplayName builds a compact TWS-style contract label.
//
// Examples (IncludeExchange=true):
//
//	STK:     AAPL @SMART
//	FUT:     CL Dec'26 @NYMEX
//	FOP/OPT: CL Feb27'26 62.75 PUT @NYMEX
//	FOP with a distinct trading class: CL (LO4) Feb27'26 62.75 PUT @NYMEX
func DisplayName(ref ContractRef, opts DisplayOptions) string {
	symbol := strings.ToUpper(strings.TrimSpace(ref.Symbol))
	if symbol == "" {
		symbol = "UNKNOWN"
	}
	secType := strings.ToUpper(strings.TrimSpace(ref.SecType))
	tradingClass := strings.ToUpper(strings.TrimSpace(ref.TradingClass))

	exchangeSuffix := ""
	if opts.IncludeExchange {
		if exchange := strings.ToUpper(strings.TrimSpace(ref.Exchange)); exchange != "" {
			exchangeSuffix = " @" + exchange
		}
	}

	switch secType {
	case "STK", "IND":
		return symbol + exchangeSuffix

	case "FUT":
		if expiry := monthYearLabel(ref.ContractExpiry, ref.ContractMonth); expiry != "" {
			return symbol + " " + expiry + exchangeSuffix
		}
		return symbol + exchangeSuffix

	case "FOP", "OPT":
		parts := []string{symbol}
		if tradingClass != "" && tradingClass != symbol {
			parts = append(parts, "("+tradingClass+")")
		}
		if expiry := dayMonthYearLabel(ref.ContractExpiry); expiry != "" {
			parts = append(parts, expiry)
		} else if monthYear := monthYearLabel(ref.ContractExpiry, ref.ContractMonth); monthYear != "" {
			parts = append(parts, monthYear)
		}
		if ref.Strike != nil {
			parts = append(parts, strconv.FormatFloat(*ref.Strike, 'g', -1, 64))
		}
		if right := displayRight(ref.Right); right != "" {
			parts = append(parts, right)
		}
		label := strings.Join(parts, " ")
		return label + exchangeSuffix
	}

	if expiry := monthYearLabel(ref.ContractExpiry, ref.ContractMonth); expiry != "" {
		return symbol + " " + expiry + exchangeSuffix
	}
	return symbol + exchangeSuffix
}

var monthAbbr = [13]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// monthYearLabel renders Mon'YY from contract_expiry (YYYYMMDD/YYYYMM) or
// contract_month (YYYY-MM).
func monthYearLabel(contractExpiry, contractMonth string) string {
	if len(contractMonth) >= 7 {
		if month, err := strconv.Atoi(contractMonth[5:7]); err == nil && month >= 1 && month <= 12 {
			return fmt.Sprintf("%s'%s", monthAbbr[month], contractMonth[2:4])
		}
	}
	if len(contractExpiry) >= 6 && isDigits(contractExpiry[:6]) {
		if month, err := strconv.Atoi(contractExpiry[4:6]); err == nil && month >= 1 && month <= 12 {
			return fmt.Sprintf("%s'%s", monthAbbr[month], contractExpiry[2:4])
		}
	}
	return ""
}

// dayMonthYearLabel renders MonDD'YY from an 8-digit contract_expiry.
func dayMonthYearLabel(contractExpiry string) string {
	if len(contractExpiry) != 8 || !isDigits(contractExpiry) {
		return ""
	}
	month, err := strconv.Atoi(contractExpiry[4:6])
	if err != nil || month < 1 || month > 12 {
		return ""
	}
	day, err := strconv.Atoi(contractExpiry[6:8])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s%d'%s", monthAbbr[month], day, contractExpiry[2:4])
}

func displayRight(right string) string {
	switch strings.ToUpper(strings.TrimSpace(right)) {
	case "C", "CALL":
		return "CALL"
	case "P", "PUT":
		return "PUT"
	}
	return ""
}
