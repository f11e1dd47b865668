package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test_FormatPair tests splitting concatenated exchange symbols into
// display pairs.
func Test_FormatPair(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		expected    string
		description string
	}{
		{
			name:        "USDT quote",
			symbol:      "BTCUSDT",
			expected:    "BTC/USDT",
			description: "Should split before the USDT suffix",
		},
		{
			name:        "ETH quote",
			symbol:      "SOLETH",
			expected:    "SOL/ETH",
			description: "Should split before the ETH suffix",
		},
		{
			name:        "USDT wins over USD",
			symbol:      "ETHUSDT",
			expected:    "ETH/USDT",
			description: "Longer suffixes must win over their prefixes",
		},
		{
			name:        "Plain USD quote",
			symbol:      "ETHUSD",
			expected:    "ETH/USD",
			description: "Should still recognize the shorter USD suffix",
		},
		{
			name:        "Lowercase input",
			symbol:      "btcusdt",
			expected:    "BTC/USDT",
			description: "Should canonicalize casing before splitting",
		},
		{
			name:        "Unrecognized quote",
			symbol:      "BTCXYZ",
			expected:    "BTCXYZ",
			description: "Unknown suffixes pass through unchanged",
		},
		{
			name:        "Bare quote currency",
			symbol:      "USDT",
			expected:    "USDT",
			description: "A symbol that is only the suffix passes through unchanged",
		},
		{
			name:        "Empty symbol",
			symbol:      "",
			expected:    "",
			description: "Empty input passes through unchanged",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPair(tt.symbol), tt.description)
		})
	}
}

// Test_ParseTimestamp tests the accepted timestamp forms.
func Test_ParseTimestamp(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		expected    time.Time
		expectError bool
		description string
	}{
		{
			name:        "Epoch milliseconds",
			raw:         "1700000000123",
			expected:    time.UnixMilli(1700000000123),
			description: "Should parse integer epoch millis",
		},
		{
			name:        "Fractional epoch milliseconds",
			raw:         "1700000000123.5",
			expected:    time.UnixMilli(1700000000123),
			description: "Should truncate fractional epoch millis",
		},
		{
			name:        "Quoted epoch milliseconds",
			raw:         `"1700000000123"`,
			expected:    time.UnixMilli(1700000000123),
			description: "Should strip surrounding JSON quotes",
		},
		{
			name:        "RFC3339",
			raw:         "2023-11-14T22:13:20Z",
			expected:    time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
			description: "Should parse RFC 3339 strings",
		},
		{
			name:        "RFC3339 with offset",
			raw:         "2023-11-14T22:13:20+02:00",
			expected:    time.Date(2023, 11, 14, 20, 13, 20, 0, time.UTC),
			description: "Should honor zone offsets",
		},
		{
			name:        "ISO-8601 without zone",
			raw:         "2023-11-14T22:13:20",
			expected:    time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
			description: "Should assume UTC when no zone is given",
		},
		{
			name:        "Empty string",
			raw:         "",
			expectError: true,
			description: "Should reject empty input",
		},
		{
			name:        "Garbage",
			raw:         "yesterday",
			expectError: true,
			description: "Should reject non-timestamp text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw)
			if tt.expectError {
				require.Error(t, err, tt.description)
				assert.ErrorIs(t, err, ErrBadTimestamp)
				return
			}
			require.NoError(t, err, tt.description)
			assert.True(t, tt.expected.Equal(got), "expected %v, got %v", tt.expected, got)
		})
	}
}

// Test_ValidateSymbol tests symbol validation.
func Test_ValidateSymbol(t *testing.T) {
	assert.NoError(t, ValidateSymbol("BTCUSDT"))
	assert.ErrorIs(t, ValidateSymbol(""), ErrEmptySymbol)
	assert.ErrorIs(t, ValidateSymbol("   "), ErrEmptySymbol)
}
