package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// MaxAmount is the sentinel meaning "all available" for withdraw and repay.
var MaxAmount = new(big.Int).Set(math.MaxBig256)

// IsMax reports whether amount is the MaxAmount sentinel.
func IsMax(amount *big.Int) bool {
	return amount != nil && amount.Cmp(math.MaxBig256) == 0
}

// IsZeroAmount reports whether amount is nil or zero.
func IsZeroAmount(amount *big.Int) bool {
	return amount == nil || amount.Sign() == 0
}

// IsZeroAddress reports whether addr is the null reference.
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

// CopyAmount returns a defensive copy of amount, treating nil as zero.
func CopyAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(amount)
}

// ParseAmount parses a base-10 amount. "max" yields MaxAmount.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "max") {
		return CopyAmount(MaxAmount), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	if v.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("amount %q overflows uint256", s)
	}
	return v, nil
}

// ParseAddress parses a hex address. The zero address is accepted here;
// the dispatcher decides where it is legal.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// RateMode selects the debt flavour of a lending position.
type RateMode uint8

const (
	RateModeNone     RateMode = 0
	RateModeStable   RateMode = 1
	RateModeVariable RateMode = 2
)

// Valid reports whether m is one of the two recognised rate modes.
func (m RateMode) Valid() bool {
	return m == RateModeStable || m == RateModeVariable
}

func (m RateMode) String() string {
	switch m {
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}
