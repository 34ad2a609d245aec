package contractsapi

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
)

// callGuardKey marks a context as being inside a state-changing call of one instance
type callGuardKey struct {
	instance common.Address
}

// callGuard serialises state-changing calls on one instance and rejects re-entry.
// The outer call marks its context; a token callback that calls back into the same
// instance with that context fails with ErrReentrantCall instead of deadlocking.
type callGuard struct {
	mu       sync.Mutex
	instance common.Address
}

// enter acquires the instance lock. The returned context must be passed to every
// external call made while the lock is held; release must be deferred.
func (g *callGuard) enter(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(callGuardKey{g.instance}) != nil {
		return ctx, func() {}, errors.Wrapf(types.ErrReentrantCall, "instance %s", g.instance.Hex())
	}
	g.mu.Lock()
	return context.WithValue(ctx, callGuardKey{g.instance}, true), g.mu.Unlock, nil
}
