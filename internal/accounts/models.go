package accounts

import (
	"strings"

	"gorm.io/gorm"
)

// Account is a broker account identifier with an optional display alias.
// Rows are created lazily on the first observed position or order and are
// never deleted: positions and orders reference them.
type Account struct {
	gorm.Model `json:"-"`
	Account    string `gorm:"uniqueIndex" json:"account"`
	Alias      string `json:"alias,omitempty"`
}

// Masked returns the account identifier with all but the last two characters
// hidden, for logs and error messages.
func (a Account) Masked() string {
	return Mask(a.Account)
}

// Mask hides an account identifier: DU1234567 -> *******67.
func Mask(account string) string {
	trimmed := []rune(strings.TrimSpace(account))
	if len(trimmed) == 0 {
		return "***"
	}
	if len(trimmed) <= 2 {
		masked := make([]rune, len(trimmed))
		for i := range masked {
			masked[i] = '*'
		}
		return string(masked)
	}
	hidden := len(trimmed) - 2
	masked := make([]rune, 0, len(trimmed))
	for i := 0; i < hidden; i++ {
		masked = append(masked, '*')
	}
	return string(masked) + string(trimmed[hidden:])
}
