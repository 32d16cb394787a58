package contracts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseExpiry parses a raw broker expiry string. An 8-digit YYYYMMDD parses
// directly; a 6-digit YYYYMM is treated as expiring on the last calendar day
// of that month. Anything else returns ok=false.
func ParseExpiry(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)

	if len(value) >= 8 && isDigits(value[:8]) {
		parsed, err := time.Parse("20060102", value[:8])
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}

	if len(value) >= 6 && isDigits(value[:6]) {
		year, _ := strconv.Atoi(value[:4])
		month, _ := strconv.Atoi(value[4:6])
		if month < 1 || month > 12 {
			return time.Time{}, false
		}
		firstOfNext := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return firstOfNext.AddDate(0, 0, -1), true
	}

	return time.Time{}, false
}

// DaysToExpiry returns whole days from today until the contract's expiry, or
// ok=false when the expiry string cannot be parsed.
func DaysToExpiry(raw string, today time.Time) (int, bool) {
	expiry, ok := ParseExpiry(raw)
	if !ok {
		return 0, false
	}
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(expiry.Sub(todayDate).Hours() / 24), true
}

// MonthFromExpiry derives the YYYY-MM contract month from a raw expiry string.
func MonthFromExpiry(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) >= 6 && isDigits(value[:6]) {
		return value[:4] + "-" + value[4:6]
	}
	if expiry, ok := ParseExpiry(value); ok {
		return expiry.Format("2006-01")
	}
	return ""
}

// NormalizeMonth accepts a contract month in any of the human formats the
// desk sees (2026-03, 202603, 2026/03, "March 2026", "Mar 2026") and returns
// the canonical YYYY-MM form. Empty input normalizes to "".
func NormalizeMonth(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", nil
	}
	cleaned := strings.ReplaceAll(raw, "/", "-")
	cleaned = strings.ReplaceAll(cleaned, ",", " ")
	compact := strings.Join(strings.Fields(cleaned), " ")

	if len(compact) == 7 && compact[4] == '-' && isDigits(compact[:4]) && isDigits(compact[5:]) {
		return canonicalMonth(compact[:4], compact[5:])
	}
	if len(compact) == 6 && isDigits(compact) {
		return canonicalMonth(compact[:4], compact[4:])
	}

	for _, layout := range []string{"January 2006", "Jan 2006"} {
		if parsed, err := time.Parse(layout, titleCase(compact)); err == nil {
			return parsed.Format("2006-01"), nil
		}
	}

	return "", fmt.Errorf("contract month must be YYYY-MM, YYYYMM, or a month name like 'March 2026', got %q", input)
}

// DisplayMonth renders a YYYY-MM contract month as "March 2026". Unparseable
// input is returned unchanged so error messages stay readable.
func DisplayMonth(contractMonth string) string {
	parsed, err := time.Parse("2006-01", contractMonth)
	if err != nil {
		return contractMonth
	}
	return parsed.Format("January 2006")
}

// CompactMonth converts YYYY-MM to the YYYYMM form gateways expect.
func CompactMonth(contractMonth string) string {
	return strings.ReplaceAll(contractMonth, "-", "")
}

func canonicalMonth(year, month string) (string, error) {
	monthNum, err := strconv.Atoi(month)
	if err != nil || monthNum < 1 || monthNum > 12 {
		return "", fmt.Errorf("contract month must use a valid month, got %s-%s", year, month)
	}
	return fmt.Sprintf("%s-%02d", year, monthNum), nil
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
