package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	tests := []struct {
		account string
		want    string
	}{
		{"DU1234567", "*******67"},
		{"DU123456", "******56"},
		{"  DU123456  ", "******56"},
		{"AB", "**"},
		{"A", "*"},
		{"", "***"},
		{"   ", "***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Mask(tt.account), "Mask(%q)", tt.account)
	}
}

func TestMasked(t *testing.T) {
	account := Account{Account: "DU1234567"}
	assert.Equal(t, "*******67", account.Masked())
}
