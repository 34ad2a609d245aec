package contractsapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/trufnetwork/launchpad-go/core/types"
)

// Module code of the built-in templates. The factory only hashes module code,
// so any byte string works as long as it was registered under a template.
var (
	PresaleModule    = []byte("launchpad.template.presale.v1")
	AllocationModule = []byte("launchpad.template.allocation.v1")
	PrivateModule    = []byte("launchpad.template.private.v1")
)

// Template builds sale instances of one kind. New templates are registered
// with the factory at startup under the hash of their module code.
type Template interface {
	Name() string
	Kind() types.SaleKind
	New(cfg types.SaleConfig, opts ...Option) (types.ISale, error)
}

// TemplateInfo describes a registered template
type TemplateInfo struct {
	Hash common.Hash    `json:"hash"`
	Name string         `json:"name"`
	Kind types.SaleKind `json:"kind"`
}

// ModuleHash returns the registry key of a module code blob
func ModuleHash(code []byte) common.Hash {
	return crypto.Keccak256Hash(code)
}

type saleTemplate struct {
	name  string
	kind  types.SaleKind
	build func(cfg types.SaleConfig, opts ...Option) (types.ISale, error)
}

func (t saleTemplate) Name() string         { return t.name }
func (t saleTemplate) Kind() types.SaleKind { return t.kind }

func (t saleTemplate) New(cfg types.SaleConfig, opts ...Option) (types.ISale, error) {
	return t.build(cfg, opts...)
}

// PresaleTemplate builds flat-price sales
func PresaleTemplate() Template {
	return saleTemplate{
		name: "presale",
		kind: types.SaleKindPresale,
		build: func(cfg types.SaleConfig, opts ...Option) (types.ISale, error) {
			sale, err := NewPresale(cfg, opts...)
			if err != nil {
				return nil, err
			}
			return sale, nil
		},
	}
}

// AllocationTemplate builds allocation-capped sales
func AllocationTemplate() Template {
	return saleTemplate{
		name: "allocation",
		kind: types.SaleKindAllocation,
		build: func(cfg types.SaleConfig, opts ...Option) (types.ISale, error) {
			sale, err := NewAllocationSale(cfg, opts...)
			if err != nil {
				return nil, err
			}
			return sale, nil
		},
	}
}

// PrivateTemplate builds whitelist-only sales
func PrivateTemplate() Template {
	return saleTemplate{
		name: "private",
		kind: types.SaleKindPrivate,
		build: func(cfg types.SaleConfig, opts ...Option) (types.ISale, error) {
			sale, err := NewPrivateSale(cfg, opts...)
			if err != nil {
				return nil, err
			}
			return sale, nil
		},
	}
}

// BuiltinModules pairs each built-in module code with its template
func BuiltinModules() map[string]Template {
	return map[string]Template{
		string(PresaleModule):    PresaleTemplate(),
		string(AllocationModule): AllocationTemplate(),
		string(PrivateModule):    PrivateTemplate(),
	}
}

// ModuleFor returns the built-in module code of a sale kind
func ModuleFor(kind types.SaleKind) ([]byte, bool) {
	switch kind {
	case types.SaleKindPresale:
		return PresaleModule, true
	case types.SaleKindAllocation:
		return AllocationModule, true
	case types.SaleKindPrivate:
		return PrivateModule, true
	default:
		return nil, false
	}
}
