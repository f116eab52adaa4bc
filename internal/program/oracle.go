// internal/program/oracle.go
package program

import (
	"encoding/binary"
	"fmt"
)

// PriceSource yields the current aggregate price of a feed.
type PriceSource interface {
	CurrentPrice() (int64, error)
}

// Pyth v2 price account layout. Only the fields needed to locate the
// aggregate price are checked.
const (
	pythMagic            uint32 = 0xa1b2c3d4
	pythVersion          uint32 = 2
	pythPriceAccountType uint32 = 3

	pythMagicOffset    = 0
	pythVersionOffset  = 4
	pythTypeOffset     = 8
	pythAggPriceOffset = 208

	// PriceAccountMinLen covers the header and the aggregate price info.
	PriceAccountMinLen = 240
)

// OracleAccount reads the price out of a raw price-feed account blob. It
// performs no staleness, confidence or status validation: the sample is used
// as-is.
type OracleAccount struct {
	data []byte
}

// NewOracleAccount wraps account data. A nil slice is a missing account.
func NewOracleAccount(data []byte) OracleAccount {
	return OracleAccount{data: data}
}

// CurrentPrice returns the aggregate price, or ErrCorruptOracleData when the
// blob is not a price account.
func (o OracleAccount) CurrentPrice() (int64, error) {
	if len(o.data) < PriceAccountMinLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrCorruptOracleData, len(o.data))
	}
	if magic := binary.LittleEndian.Uint32(o.data[pythMagicOffset:]); magic != pythMagic {
		return 0, fmt.Errorf("%w: bad magic %#x", ErrCorruptOracleData, magic)
	}
	if ver := binary.LittleEndian.Uint32(o.data[pythVersionOffset:]); ver != pythVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrCorruptOracleData, ver)
	}
	if typ := binary.LittleEndian.Uint32(o.data[pythTypeOffset:]); typ != pythPriceAccountType {
		return 0, fmt.Errorf("%w: account type %d is not a price account", ErrCorruptOracleData, typ)
	}
	return int64(binary.LittleEndian.Uint64(o.data[pythAggPriceOffset:])), nil
}

// NewPriceAccountData builds a minimal price account holding price.
func NewPriceAccountData(price int64) []byte {
	data := make([]byte, PriceAccountMinLen)
	binary.LittleEndian.PutUint32(data[pythMagicOffset:], pythMagic)
	binary.LittleEndian.PutUint32(data[pythVersionOffset:], pythVersion)
	binary.LittleEndian.PutUint32(data[pythTypeOffset:], pythPriceAccountType)
	binary.LittleEndian.PutUint32(data[12:], PriceAccountMinLen)
	binary.LittleEndian.PutUint64(data[pythAggPriceOffset:], uint64(price))
	return data
}

// Outcome maps a price sample onto the outcome space. The price is
// reinterpreted as unsigned before the modulus.
func Outcome(price int64) uint64 {
	return uint64(price) % OutcomeModulus
}

// IsWin reports whether an outcome pays out. 5 of the 11 outcomes win.
func IsWin(outcome uint64) bool {
	return outcome > WinThreshold
}

// Payout returns the amount returned to the bettor on a win, rounded down.
func Payout(amount uint64) uint64 {
	return amount * RTP / 100
}
