package types

import "time"

// Clock supplies the current time to every time-gated operation.
// Sales and the ledger compare against Now().Unix().
type Clock interface {
	Now() time.Time
}
