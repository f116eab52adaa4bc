// internal/storage/models/bet.go
package models

import "time"

// Bet is one settled wager. Amounts are in base units of Currency.
type Bet struct {
	BaseModel
	Bettor    string    `gorm:"index;not null;type:varchar(44)"`
	Currency  string    `gorm:"index;not null;type:varchar(44)"`
	Amount    uint64    `gorm:"not null"`
	Payout    uint64    `gorm:"not null;default:0"`
	IsWin     bool      `gorm:"not null"`
	SettledAt time.Time `gorm:"index;not null"`
}
