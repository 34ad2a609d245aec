package contractsapi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/trufnetwork/launchpad-go/core/types"
)

// SaleParamsABI defines the ABI tuple a sale parameter bundle is encoded as
// Format: (string uri, address funder, address admin, address treasury,
// uint256 unit_price, uint256 hard_cap, address sale_token, address payment_token,
// uint64 start_time, uint64 duration, uint256 min_contribution, uint256 max_contribution,
// bytes32[] eligibility_roots, uint256[] tier_allocations, uint16 fee_bps, uint8 kind)
var SaleParamsABI abi.Arguments

func init() {
	newType := func(name string) abi.Type {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("failed to create %s ABI type: %v", name, err))
		}
		return t
	}
	stringType := newType("string")
	addressType := newType("address")
	uint256Type := newType("uint256")
	uint64Type := newType("uint64")
	uint16Type := newType("uint16")
	uint8Type := newType("uint8")
	bytes32ArrayType := newType("bytes32[]")
	uint256ArrayType := newType("uint256[]")

	SaleParamsABI = abi.Arguments{
		{Type: stringType, Name: "uri"},
		{Type: addressType, Name: "funder"},
		{Type: addressType, Name: "admin"},
		{Type: addressType, Name: "treasury"},
		{Type: uint256Type, Name: "unit_price"},
		{Type: uint256Type, Name: "hard_cap"},
		{Type: addressType, Name: "sale_token"},
		{Type: addressType, Name: "payment_token"},
		{Type: uint64Type, Name: "start_time"},
		{Type: uint64Type, Name: "duration"},
		{Type: uint256Type, Name: "min_contribution"},
		{Type: uint256Type, Name: "max_contribution"},
		{Type: bytes32ArrayType, Name: "eligibility_roots"},
		{Type: uint256ArrayType, Name: "tier_allocations"},
		{Type: uint16Type, Name: "fee_bps"},
		{Type: uint8Type, Name: "kind"},
	}
}

// EncodeSaleParams ABI-encodes a sale parameter bundle.
//
// The factory stores keccak256 of the encoding in the registry so a sale's
// configuration can be checked against what was deployed. Nil contribution
// bounds encode as zero.
func EncodeSaleParams(params types.SaleParams) ([]byte, error) {
	if params.StartTime < 0 {
		return nil, fmt.Errorf("start_time must be non-negative, got %d", params.StartTime)
	}
	if params.Duration < 0 {
		return nil, fmt.Errorf("duration must be non-negative, got %d", params.Duration)
	}
	if params.FeeBps > types.BasisPoints {
		return nil, fmt.Errorf("fee_bps must be at most %d, got %d", types.BasisPoints, params.FeeBps)
	}

	roots := make([][32]byte, len(params.EligibilityRoots))
	for i, root := range params.EligibilityRoots {
		roots[i] = root
	}
	allocations := make([]*big.Int, len(params.TierAllocations))
	for i, alloc := range params.TierAllocations {
		allocations[i] = toBig(alloc)
	}

	encoded, err := SaleParamsABI.Pack(
		params.URI,
		params.Funder,
		params.Admin,
		params.Treasury,
		toBig(params.UnitPrice),
		toBig(params.HardCap),
		params.SaleToken,
		params.PaymentToken,
		uint64(params.StartTime),
		uint64(params.Duration),
		toBig(params.MinContribution),
		toBig(params.MaxContribution),
		roots,
		allocations,
		uint16(params.FeeBps),
		uint8(params.Kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ABI-encode sale params: %w", err)
	}
	return encoded, nil
}

// HashSaleParams returns keccak256 of the ABI encoding
func HashSaleParams(params types.SaleParams) (common.Hash, error) {
	encoded, err := EncodeSaleParams(params)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// DecodeSaleParams decodes an ABI-encoded sale parameter bundle
func DecodeSaleParams(encoded []byte) (types.SaleParams, error) {
	unpacked, err := SaleParamsABI.Unpack(encoded)
	if err != nil {
		return types.SaleParams{}, fmt.Errorf("failed to ABI-decode sale params: %w", err)
	}
	if len(unpacked) != len(SaleParamsABI) {
		return types.SaleParams{}, fmt.Errorf("expected %d values, got %d", len(SaleParamsABI), len(unpacked))
	}

	var (
		params types.SaleParams
		ok     bool
	)
	if params.URI, ok = unpacked[0].(string); !ok {
		return types.SaleParams{}, fmt.Errorf("expected string for uri, got %T", unpacked[0])
	}

	addresses := []struct {
		index int
		name  string
		dst   *common.Address
	}{
		{1, "funder", &params.Funder},
		{2, "admin", &params.Admin},
		{3, "treasury", &params.Treasury},
		{6, "sale_token", &params.SaleToken},
		{7, "payment_token", &params.PaymentToken},
	}
	for _, a := range addresses {
		if *a.dst, ok = unpacked[a.index].(common.Address); !ok {
			return types.SaleParams{}, fmt.Errorf("expected address for %s, got %T", a.name, unpacked[a.index])
		}
	}

	amounts := []struct {
		index int
		name  string
		dst   **uint256.Int
	}{
		{4, "unit_price", &params.UnitPrice},
		{5, "hard_cap", &params.HardCap},
		{10, "min_contribution", &params.MinContribution},
		{11, "max_contribution", &params.MaxContribution},
	}
	for _, a := range amounts {
		value, ok := unpacked[a.index].(*big.Int)
		if !ok {
			return types.SaleParams{}, fmt.Errorf("expected *big.Int for %s, got %T", a.name, unpacked[a.index])
		}
		*a.dst, _ = uint256.FromBig(value)
	}

	start, ok := unpacked[8].(uint64)
	if !ok {
		return types.SaleParams{}, fmt.Errorf("expected uint64 for start_time, got %T", unpacked[8])
	}
	duration, ok := unpacked[9].(uint64)
	if !ok {
		return types.SaleParams{}, fmt.Errorf("expected uint64 for duration, got %T", unpacked[9])
	}
	params.StartTime = int64(start)
	params.Duration = int64(duration)

	roots, ok := unpacked[12].([][32]byte)
	if !ok {
		return types.SaleParams{}, fmt.Errorf("expected [][32]byte for eligibility_roots, got %T", unpacked[12])
	}
	for _, root := range roots {
		params.EligibilityRoots = append(params.EligibilityRoots, common.Hash(root))
	}

	allocations, ok := unpacked[13].([]*big.Int)
	if !ok {
		return types.SaleParams{}, fmt.Errorf("expected []*big.Int for tier_allocations, got %T", unpacked[13])
	}
	for _, alloc := range allocations {
		value, _ := uint256.FromBig(alloc)
		params.TierAllocations = append(params.TierAllocations, value)
	}

	fee, ok := unpacked[14].(uint16)
	if !ok {
		return types.SaleParams{}, fmt.Errorf("expected uint16 for fee_bps, got %T", unpacked[14])
	}
	params.FeeBps = uint64(fee)

	kind, ok := unpacked[15].(uint8)
	if !ok {
		return types.SaleParams{}, fmt.Errorf("expected uint8 for kind, got %T", unpacked[15])
	}
	params.Kind = types.SaleKind(kind)

	return params, nil
}

// toBig converts an amount for ABI packing, treating nil as zero
func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
