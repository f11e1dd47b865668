// Package utils provides shared helpers for symbol formatting and the
// flexible timestamp parsing used at the signal-ingest boundary.
package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Error definitions for validation helpers
var (
	ErrEmptySymbol  = errors.New("symbol cannot be empty")
	ErrBadTimestamp = errors.New("unparseable timestamp")
)

// QuoteAssetSet contains the quote currencies recognized when splitting a
// concatenated exchange symbol into a display pair. Checked in declaration
// order so that longer suffixes win over their prefixes (USDT before USD).
var QuoteAssetSet = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH", "BNB"}

// FormatPair inserts a separator before the quote-currency suffix of a
// concatenated exchange symbol: "BTCUSDT" becomes "BTC/USDT".
//
// A symbol without a recognized quote suffix (or one that consists of the
// suffix alone) is returned unchanged. That is a documented fallback, not an
// error: an unknown symbol should still render.
func FormatPair(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	for _, quote := range QuoteAssetSet {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return upper[:len(upper)-len(quote)] + "/" + quote
		}
	}
	return symbol
}

// ParseTimestamp converts the loosely-typed timestamp forms emitted by the
// signal sources into time.Time.
//
// Accepted forms:
//   - integer or fractional epoch milliseconds ("1700000000123")
//   - RFC 3339 / ISO-8601 strings ("2023-11-14T22:13:20Z")
//
// Returns ErrBadTimestamp when neither form applies; the caller substitutes
// the current time rather than dropping the record.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(strings.Trim(raw, `"`))
	if s == "" {
		return time.Time{}, ErrBadTimestamp
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(f)), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, raw)
}

// ValidateSymbol rejects empty or whitespace-only symbols. Symbol vocabulary
// beyond that is the market-data source's concern.
func ValidateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return ErrEmptySymbol
	}
	return nil
}
