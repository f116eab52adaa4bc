// internal/storage/models/account.go
package models

// Account is a committed ledger account.
type Account struct {
	BaseModel
	Address  string `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Owner    string `gorm:"index;not null;type:varchar(44)"`
	Lamports uint64 `gorm:"not null;default:0"`
	Data     []byte
}
