package types

import "github.com/pkg/errors"

// Sentinel errors returned by the ledger, factory and sale implementations.
// Implementations wrap them with call context; match with errors.Is.
var (
	// ErrUnauthorized is returned when the caller is not allowed to perform a privileged operation
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidParams is returned for malformed or out-of-range input
	ErrInvalidParams = errors.New("invalid params")
	// ErrInvalidTier is returned when a stake names a tier that is not configured
	ErrInvalidTier = errors.New("invalid tier")
	// ErrInvalidVestingWindow is returned when a vesting end is not after the sale end or can no longer change
	ErrInvalidVestingWindow = errors.New("invalid vesting window")

	ErrSaleNotStarted  = errors.New("sale not started")
	ErrSaleEnded       = errors.New("sale ended")
	ErrClaimNotStarted = errors.New("can't withdraw before claim is started")

	ErrAlreadyFunded       = errors.New("already funded")
	ErrInsufficientFunding = errors.New("insufficient funding")
	ErrNotFunded           = errors.New("sale not funded")

	ErrHardCapExceeded    = errors.New("hard cap exceeded")
	ErrAllocationExceeded = errors.New("allocation exceeded")
	ErrNotEligible        = errors.New("not eligible")

	ErrStillLocked      = errors.New("stake still locked")
	ErrPositionNotFound = errors.New("stake position not found")

	ErrTransferFailed   = errors.New("transfer failed")
	ErrDeploymentFailed = errors.New("deployment failed")
	ErrSaleNotFound     = errors.New("sale not found")

	// ErrReentrantCall is returned when a token callback re-enters an instance mid-call
	ErrReentrantCall = errors.New("reentrant call")
)
