// internal/storage/models/transaction.go
package models

import "time"

// Transaction statuses.
const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
)

// Transaction is the journal entry of one processed transaction.
type Transaction struct {
	BaseModel
	Signature    string    `gorm:"uniqueIndex;not null;type:varchar(88)"`
	Status       string    `gorm:"index;not null;type:varchar(20)"`
	Instructions int       `gorm:"default:0"`
	ErrorCode    *uint32   `gorm:"index"`
	ErrorMessage string    `gorm:"type:text"`
	ProcessedAt  time.Time `gorm:"index;not null"`
}
