package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	strike := 62.75
	tests := []struct {
		name string
		ref  ContractRef
		opts DisplayOptions
		want string
	}{
		{
			name: "stock",
			ref:  ContractRef{Symbol: "XOM", SecType: "STK", Exchange: "SMART"},
			want: "XOM",
		},
		{
			name: "stock with exchange",
			ref:  ContractRef{Symbol: "XOM", SecType: "STK", Exchange: "SMART"},
			opts: DisplayOptions{IncludeExchange: true},
			want: "XOM @SMART",
		},
		{
			name: "future month and year",
			ref:  ContractRef{Symbol: "CL", SecType: "FUT", ContractExpiry: "20261120", ContractMonth: "2026-12"},
			want: "CL Dec'26",
		},
		{
			name: "future falls back to expiry when month missing",
			ref:  ContractRef{Symbol: "CL", SecType: "FUT", ContractExpiry: "20260320"},
			want: "CL Mar'26",
		},
		{
			name: "option with strike and right",
			ref: ContractRef{Symbol: "CL", SecType: "FOP", TradingClass: "LO4",
				ContractExpiry: "20260227", Strike: &strike, Right: "P", Exchange: "NYMEX"},
			opts: DisplayOptions{IncludeExchange: true},
			want: "CL (LO4) Feb27'26 62.75 PUT @NYMEX",
		},
		{
			name: "option trading class matching symbol is elided",
			ref: ContractRef{Symbol: "CL", SecType: "OPT", TradingClass: "CL",
				ContractExpiry: "20260227", Strike: &strike, Right: "CALL"},
			want: "CL Feb27'26 62.75 CALL",
		},
		{
			name: "empty symbol",
			ref:  ContractRef{SecType: "STK"},
			want: "UNKNOWN",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.ref, tt.opts))
		})
	}
}
