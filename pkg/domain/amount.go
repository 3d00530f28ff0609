package domain

import (
	"strconv"

	dErrors "custodia/pkg/domain-errors"
)

// AssetDecimals is the precision the platform requires from any funding
// token. The registry validates it at construction and on every swap.
const AssetDecimals = 6

// SecondsPerDay sizes the day buckets used by all daily limits.
const SecondsPerDay = 86400

// Amount is a quantity of the funding asset (or of audit-ledger credit, which
// mirrors it 1:1) in the asset's smallest unit.
type Amount int64

// IsPositive reports whether the amount is usable for a movement of funds.
func (a Amount) IsPositive() bool { return a > 0 }

func (a Amount) String() string { return strconv.FormatInt(int64(a), 10) }

// ParseAmount validates an externally supplied amount.
//
// Errors: CodeInvalidInput when the amount is zero or negative.
func ParseAmount(v int64) (Amount, error) {
	if v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	return Amount(v), nil
}

// DayIndex converts a unix timestamp into the day bucket key used by daily
// mint and withdrawal limits.
func DayIndex(unix int64) int64 { return unix / SecondsPerDay }
