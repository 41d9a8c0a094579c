// Package kyc enforces verification-tier transaction limits and tier progression.
package kyc

import (
	"fmt"
	"math"
)

// Operation classes gated by tier limits.
type Operation string

const (
	OpDeposit    Operation = "deposit"
	OpWithdrawal Operation = "withdrawal"
	OpInvestment Operation = "investment"
)

// Unlimited marks a ceiling with no bound.
const Unlimited = math.MaxFloat64

// MaxTier is the highest verification tier.
const MaxTier = 3

// limits is the static ceiling table keyed by tier and operation class.
// Tier 3 is unlimited across the board.
var limits = map[int]map[Operation]float64{
	0: {OpDeposit: 100, OpWithdrawal: 0, OpInvestment: 0},
	1: {OpDeposit: 1000, OpWithdrawal: 500, OpInvestment: 500},
	2: {OpDeposit: 10000, OpWithdrawal: 5000, OpInvestment: 5000},
	3: {OpDeposit: Unlimited, OpWithdrawal: Unlimited, OpInvestment: Unlimited},
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed bool
	Reason  string
}

// CheckLimit evaluates a single operation against the tier's ceiling.
// Pure and side-effect free; callers must pass the user's current tier on
// every call, since an upgrade must take effect immediately.
func CheckLimit(tier int, op Operation, amount float64) Decision {
	if amount <= 0 {
		return Decision{Allowed: false, Reason: "amount must be positive"}
	}

	tierLimits, ok := limits[tier]
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown tier %d", tier)}
	}
	ceiling, ok := tierLimits[op]
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown operation %q", op)}
	}

	if amount > ceiling {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("tier %d %s limit exceeded: %.2f > %.2f", tier, op, amount, ceiling),
		}
	}
	return Decision{Allowed: true}
}

// Ceiling returns the raw limit for a tier/operation pair (Unlimited for tier 3).
func Ceiling(tier int, op Operation) float64 {
	if tierLimits, ok := limits[tier]; ok {
		if c, ok := tierLimits[op]; ok {
			return c
		}
	}
	return 0
}
