package scenario

import (
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
)

// ErrExpectationFailed is returned by an expect step whose expression is false
var ErrExpectationFailed = errors.New("expectation failed")

// expect evaluates a boolean expression against the simulated state.
//
// Available functions (amounts are in token units, as floats):
//
//	balance(account, symbol)       units(account, symbol) (raw base units, string)
//	weight(account)                total_weight()
//	status(sale)                   raised(sale)    sold(sale)
//	contributed(sale, account)     entitlement(sale, account)
//	claimed(sale, account)         claimable(sale, account)
//	allocation(sale, account)      events(name) (emitted during this run)    now()
func (r *Runner) expect(expression string) error {
	var evalErr error
	fail := func(err error) {
		if evalErr == nil {
			evalErr = err
		}
	}

	env := map[string]any{
		"balance": func(account, symbol string) float64 {
			value, err := r.Balance(account, symbol)
			if err != nil {
				fail(err)
				return 0
			}
			f, _ := strconv.ParseFloat(value, 64)
			return f
		},
		"units": func(account, symbol string) string {
			value, err := r.BalanceUnits(account, symbol)
			if err != nil {
				fail(err)
				return ""
			}
			return value.Dec()
		},
		"weight": func(account string) float64 {
			return r.amount(r.stakeSymbol(), r.client.Allocator().UserWeight(util.ResolveAddress(account)))
		},
		"total_weight": func() float64 {
			return r.amount(r.stakeSymbol(), r.client.Allocator().TotalWeight())
		},
		"status": func(name string) string {
			return r.saleRead(name, fail, func(sale types.ISale) string { return sale.Status().String() })
		},
		"raised": func(name string) float64 {
			return r.paymentAmount(name, fail, func(sale types.ISale) *uint256.Int { return sale.TotalRaised() })
		},
		"sold": func(name string) float64 {
			return r.saleAmount(name, fail, func(sale types.ISale) *uint256.Int { return sale.TotalSold() })
		},
		"contributed": func(name, account string) float64 {
			return r.paymentAmount(name, fail, func(sale types.ISale) *uint256.Int {
				return sale.Contributed(util.ResolveAddress(account))
			})
		},
		"entitlement": func(name, account string) float64 {
			return r.saleAmount(name, fail, func(sale types.ISale) *uint256.Int {
				return sale.Entitlement(util.ResolveAddress(account))
			})
		},
		"claimed": func(name, account string) float64 {
			return r.saleAmount(name, fail, func(sale types.ISale) *uint256.Int {
				return sale.Claimed(util.ResolveAddress(account))
			})
		},
		"claimable": func(name, account string) float64 {
			return r.saleAmount(name, fail, func(sale types.ISale) *uint256.Int {
				return sale.Claimable(util.ResolveAddress(account))
			})
		},
		"allocation": func(name, account string) float64 {
			return r.saleAmount(name, fail, func(sale types.ISale) *uint256.Int {
				allocationSale, ok := sale.(types.IAllocationSale)
				if !ok {
					fail(errors.Errorf("sale %s has no allocations", name))
					return new(uint256.Int)
				}
				return allocationSale.AllocationOf(util.ResolveAddress(account))
			})
		},
		"events": func(name string) int {
			if r.journal == nil {
				fail(errors.New("events() needs a journal"))
				return 0
			}
			entries, err := r.journal.Events(r.baseSeq + 1)
			if err != nil {
				fail(err)
				return 0
			}
			count := 0
			for _, entry := range entries {
				if entry.Name == name {
					count++
				}
			}
			return count
		},
		"now": func() int64 {
			return r.clock.Now().Unix()
		},
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return errors.Wrapf(types.ErrInvalidParams, "compile %q: %v", expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return errors.Wrapf(err, "evaluate %q", expression)
	}
	if evalErr != nil {
		return errors.Wrapf(evalErr, "evaluate %q", expression)
	}
	if ok, _ := out.(bool); !ok {
		return errors.Wrapf(ErrExpectationFailed, "%s", expression)
	}
	return nil
}

func (r *Runner) amount(symbol string, value *uint256.Int) float64 {
	tok, ok := r.tokens[symbol]
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(util.FormatUnits(value, tok.Decimals()), 64)
	return f
}

func (r *Runner) saleRead(name string, fail func(error), read func(types.ISale) string) string {
	handle, err := r.sale(name)
	if err != nil {
		fail(err)
		return ""
	}
	return read(handle.Sale)
}

func (r *Runner) saleAmount(name string, fail func(error), read func(types.ISale) *uint256.Int) float64 {
	handle, err := r.sale(name)
	if err != nil {
		fail(err)
		return 0
	}
	return r.amount(r.symbolOf(handle.Sale.Info().SaleToken), read(handle.Sale))
}

func (r *Runner) paymentAmount(name string, fail func(error), read func(types.ISale) *uint256.Int) float64 {
	handle, err := r.sale(name)
	if err != nil {
		fail(err)
		return 0
	}
	return r.amount(r.symbolOf(handle.Sale.Info().PaymentToken), read(handle.Sale))
}
