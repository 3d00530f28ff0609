// Package limits tracks per-actor daily consumption buckets. Buckets reset
// implicitly by keying on the day index, so nothing ever needs a scheduled
// reset job. The ledger uses it for per-minter mint caps and the treasury
// for donor withdrawal caps.
package limits

import "context"

// Store accumulates amounts per (key, day) bucket. Services hold the
// check-then-add sequence under their own operation guard, so the store
// itself only needs atomic individual operations.
type Store interface {
	// Used returns the amount already consumed from the bucket.
	Used(ctx context.Context, key string, day int64) (int64, error)
	// Add consumes amount from the bucket.
	Add(ctx context.Context, key string, day int64, amount int64) error
}
