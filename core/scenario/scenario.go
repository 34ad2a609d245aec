// Package scenario drives a launchpad deployment through a scripted sequence of
// stakes, sale deployments, purchases, clock warps, claims and withdrawals.
package scenario

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/trufnetwork/launchpad-go/core/types"
)

// Step actions
const (
	ActionStake      = "stake"
	ActionUnstake    = "unstake"
	ActionDeploy     = "deploy"
	ActionFund       = "fund"
	ActionPurchase   = "purchase"
	ActionWarp       = "warp"
	ActionSetVesting = "set_vesting"
	ActionClaim      = "claim"
	ActionWithdraw   = "withdraw"
	ActionGrant      = "grant_deployer"
	ActionRevoke     = "revoke_deployer"
	ActionExpect     = "expect"
)

// Scenario is the decoded scenario file
type Scenario struct {
	Start     int64         `mapstructure:"start" validate:"gt=0"` // unix seconds the clock starts at
	Tokens    []TokenSpec   `mapstructure:"tokens" validate:"required,min=2,dive"`
	Launchpad LaunchpadSpec `mapstructure:"launchpad"`
	Mint      []MintSpec    `mapstructure:"mint" validate:"dive"`
	Steps     []Step        `mapstructure:"steps" validate:"required,min=1,dive"`
}

type TokenSpec struct {
	Symbol   string `mapstructure:"symbol" validate:"required"`
	Decimals uint8  `mapstructure:"decimals" validate:"lte=36"`
}

type LaunchpadSpec struct {
	Admin        string `mapstructure:"admin" validate:"required"`
	FeeCollector string `mapstructure:"fee_collector"`
	StakeToken   string `mapstructure:"stake_token" validate:"required"`
	TierRateBps  uint64 `mapstructure:"tier_rate_bps"`
	MaxFeeBps    uint64 `mapstructure:"max_fee_bps" validate:"lte=10000"`
}

type MintSpec struct {
	Account string `mapstructure:"account" validate:"required"`
	Token   string `mapstructure:"token" validate:"required"`
	Amount  string `mapstructure:"amount" validate:"required"`
}

// SaleSpec is the human-readable form of types.SaleParams. Amounts are decimal
// token units; the unit price is payment tokens per sale token.
type SaleSpec struct {
	Kind            string     `mapstructure:"kind"`
	URI             string     `mapstructure:"uri"`
	Funder          string     `mapstructure:"funder" validate:"required"`
	Admin           string     `mapstructure:"admin"`
	Treasury        string     `mapstructure:"treasury"`
	SaleToken       string     `mapstructure:"sale_token" validate:"required"`
	PaymentToken    string     `mapstructure:"payment_token" validate:"required"`
	UnitPrice       string     `mapstructure:"unit_price" validate:"required"`
	HardCap         string     `mapstructure:"hard_cap" validate:"required"`
	StartIn         int64      `mapstructure:"start_in" validate:"gte=0"` // seconds after the deploy step
	Duration        int64      `mapstructure:"duration" validate:"gt=0"`
	MinContribution string     `mapstructure:"min_contribution"`
	MaxContribution string     `mapstructure:"max_contribution"`
	Whitelist       [][]string `mapstructure:"whitelist"` // one account list per eligibility tier
	TierAllocations []string   `mapstructure:"tier_allocations"`
	FeeBps          uint64     `mapstructure:"fee_bps"`
}

// Step is one scenario action. Which fields apply depends on Action.
type Step struct {
	Action      string    `mapstructure:"action" validate:"required,oneof=stake unstake deploy fund purchase warp set_vesting claim withdraw grant_deployer revoke_deployer expect"`
	Account     string    `mapstructure:"account"`
	Sale        string    `mapstructure:"sale"` // name given at deploy
	Name        string    `mapstructure:"name"`
	Amount      string    `mapstructure:"amount"`
	Tier        uint8     `mapstructure:"tier"`
	Position    uint64    `mapstructure:"position"`
	Seconds     int64     `mapstructure:"seconds"`
	To          string    `mapstructure:"to"` // warp target: start, end, vesting_end
	AfterEnd    int64     `mapstructure:"after_end"`
	Params      *SaleSpec `mapstructure:"params"`
	Expr        string    `mapstructure:"expr"`
	ExpectError string    `mapstructure:"expect_error"` // outcome label the step must fail with
}

// Validate checks the scenario shape. Cross references (token symbols, sale names) are checked while running.
func (s *Scenario) Validate() error {
	if err := types.ValidateStruct(s); err != nil {
		return err
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i+1, step.Action)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Action {
	case ActionDeploy:
		if s.Name == "" {
			return errors.New("deploy needs a name")
		}
		if s.Params == nil {
			return errors.New("deploy needs params")
		}
		return types.ValidateStruct(s.Params)
	case ActionStake, ActionPurchase:
		if s.Account == "" || s.Amount == "" {
			return errors.New("account and amount are required")
		}
	case ActionWarp:
		if s.Seconds == 0 && s.To == "" {
			return errors.New("warp needs seconds or to")
		}
		if s.To != "" && s.Sale == "" {
			return errors.New("warp to a sale time needs a sale")
		}
	case ActionExpect:
		if strings.TrimSpace(s.Expr) == "" {
			return errors.New("expect needs expr")
		}
	case ActionGrant, ActionRevoke:
		if s.Account == "" || s.Name == "" {
			return errors.New("account (caller) and name (grantee) are required")
		}
	default:
		if s.Account == "" {
			return errors.New("account is required")
		}
	}
	return nil
}

// Load reads a scenario file. Any key can be overridden through LAUNCHPAD_*
// environment variables, e.g. LAUNCHPAD_START.
func Load(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("launchpad")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	var s Scenario
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrapf(err, "decode scenario %s", path)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid scenario %s", path)
	}
	return &s, nil
}

// Parse decodes a scenario from YAML bytes
func Parse(data []byte) (*Scenario, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	var s Scenario
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &s, nil
}
