package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Genesis is the initial development state: ledger balances and the
// simulated integrations.
type Genesis struct {
	Native     []NativeBalance
	Balances   []TokenBalance
	Allowances []Allowance
	Exchanges  []ExchangeGenesis
	Lending    []LendingGenesis
	Bridges    []BridgeGenesis
}

// NativeBalance credits native currency to Holder.
type NativeBalance struct {
	Holder common.Address
	Amount *big.Int
}

// TokenBalance credits Amount of Asset to Holder.
type TokenBalance struct {
	Asset  common.Address
	Holder common.Address
	Amount *big.Int
}

// Allowance lets Spender move Amount of Owner's Asset.
type Allowance struct {
	Asset   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

// PoolGenesis is a fixed-rate exchange pool.
type PoolGenesis struct {
	AssetIn  common.Address
	AssetOut common.Address
	Fee      uint32
	Rate     decimal.Decimal
}

// ExchangeGenesis is a simulated exchange and its pools.
type ExchangeGenesis struct {
	Address common.Address
	Pools   []PoolGenesis
}

// LendingGenesis is a simulated lending market. Operators may act on behalf
// of users.
type LendingGenesis struct {
	Address   common.Address
	Reserves  []common.Address
	Operators []common.Address
}

// BridgeGenesis is a simulated bridge.
type BridgeGenesis struct {
	Address common.Address
	MinFee  *big.Int
	Domains []uint32
}

// YAML documents use strings for addresses and amounts.

type yamlGenesis struct {
	Native []struct {
		Holder string `yaml:"holder"`
		Amount string `yaml:"amount"`
	} `yaml:"native"`
	Balances []struct {
		Asset  string `yaml:"asset"`
		Holder string `yaml:"holder"`
		Amount string `yaml:"amount"`
	} `yaml:"balances"`
	Allowances []struct {
		Asset   string `yaml:"asset"`
		Owner   string `yaml:"owner"`
		Spender string `yaml:"spender"`
		Amount  string `yaml:"amount"`
	} `yaml:"allowances"`
	Exchanges []struct {
		Address string `yaml:"address"`
		Pools   []struct {
			AssetIn  string `yaml:"asset_in"`
			AssetOut string `yaml:"asset_out"`
			Fee      uint32 `yaml:"fee"`
			Rate     string `yaml:"rate"`
		} `yaml:"pools"`
	} `yaml:"exchanges"`
	Lending []struct {
		Address   string   `yaml:"address"`
		Reserves  []string `yaml:"reserves"`
		Operators []string `yaml:"operators"`
	} `yaml:"lending"`
	Bridges []struct {
		Address string   `yaml:"address"`
		MinFee  string   `yaml:"min_fee"`
		Domains []uint32 `yaml:"domains"`
	} `yaml:"bridges"`
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis decodes a YAML genesis document.
func ParseGenesis(data []byte) (*Genesis, error) {
	var y yamlGenesis
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}

	var (
		p conv
		g Genesis
	)
	for i, n := range y.Native {
		g.Native = append(g.Native, NativeBalance{
			Holder: p.address(fmt.Sprintf("native[%d].holder", i), n.Holder),
			Amount: p.amount(fmt.Sprintf("native[%d].amount", i), n.Amount),
		})
	}
	for i, b := range y.Balances {
		g.Balances = append(g.Balances, TokenBalance{
			Asset:  p.address(fmt.Sprintf("balances[%d].asset", i), b.Asset),
			Holder: p.address(fmt.Sprintf("balances[%d].holder", i), b.Holder),
			Amount: p.amount(fmt.Sprintf("balances[%d].amount", i), b.Amount),
		})
	}
	for i, a := range y.Allowances {
		g.Allowances = append(g.Allowances, Allowance{
			Asset:   p.address(fmt.Sprintf("allowances[%d].asset", i), a.Asset),
			Owner:   p.address(fmt.Sprintf("allowances[%d].owner", i), a.Owner),
			Spender: p.address(fmt.Sprintf("allowances[%d].spender", i), a.Spender),
			Amount:  p.amount(fmt.Sprintf("allowances[%d].amount", i), a.Amount),
		})
	}
	for i, e := range y.Exchanges {
		ex := ExchangeGenesis{Address: p.address(fmt.Sprintf("exchanges[%d].address", i), e.Address)}
		for j, pool := range e.Pools {
			field := fmt.Sprintf("exchanges[%d].pools[%d]", i, j)
			ex.Pools = append(ex.Pools, PoolGenesis{
				AssetIn:  p.address(field+".asset_in", pool.AssetIn),
				AssetOut: p.address(field+".asset_out", pool.AssetOut),
				Fee:      pool.Fee,
				Rate:     p.rate(field+".rate", pool.Rate),
			})
		}
		g.Exchanges = append(g.Exchanges, ex)
	}
	for i, l := range y.Lending {
		lg := LendingGenesis{Address: p.address(fmt.Sprintf("lending[%d].address", i), l.Address)}
		for j, r := range l.Reserves {
			lg.Reserves = append(lg.Reserves, p.address(fmt.Sprintf("lending[%d].reserves[%d]", i, j), r))
		}
		for j, o := range l.Operators {
			lg.Operators = append(lg.Operators, p.address(fmt.Sprintf("lending[%d].operators[%d]", i, j), o))
		}
		g.Lending = append(g.Lending, lg)
	}
	for i, b := range y.Bridges {
		minFee := new(big.Int)
		if b.MinFee != "" {
			minFee = p.amount(fmt.Sprintf("bridges[%d].min_fee", i), b.MinFee)
		}
		g.Bridges = append(g.Bridges, BridgeGenesis{
			Address: p.address(fmt.Sprintf("bridges[%d].address", i), b.Address),
			MinFee:  minFee,
			Domains: b.Domains,
		})
	}
	if p.err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", p.err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Validate rejects zero addresses and duplicate integration addresses.
func (g *Genesis) Validate() error {
	seen := make(map[common.Address]string)
	claim := func(kind string, addr common.Address) error {
		if addr == (common.Address{}) {
			return fmt.Errorf("%s address: %w", kind, domain.ErrZeroAddress)
		}
		if prev, ok := seen[addr]; ok {
			return fmt.Errorf("%s %s already declared as %s", kind, addr.Hex(), prev)
		}
		seen[addr] = kind
		return nil
	}

	for _, e := range g.Exchanges {
		if err := claim("exchange", e.Address); err != nil {
			return err
		}
		for _, p := range e.Pools {
			if p.Fee > domain.MaxFee {
				return fmt.Errorf("pool fee %d: %w", p.Fee, domain.ErrInvalidFeeTier)
			}
			if !p.Rate.IsPositive() {
				return fmt.Errorf("pool %s/%s: rate must be positive", p.AssetIn.Hex(), p.AssetOut.Hex())
			}
		}
	}
	for _, l := range g.Lending {
		if err := claim("lending", l.Address); err != nil {
			return err
		}
	}
	for _, b := range g.Bridges {
		if err := claim("bridge", b.Address); err != nil {
			return err
		}
	}
	return nil
}

// conv collects the first conversion error.
type conv struct {
	err error
}

func (c *conv) address(field, v string) common.Address {
	if c.err != nil {
		return common.Address{}
	}
	addr, err := domain.ParseAddress(v)
	if err != nil {
		c.err = fmt.Errorf("%s: %w", field, err)
	}
	return addr
}

func (c *conv) amount(field, v string) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	a, err := domain.ParseAmount(v)
	if err != nil {
		c.err = fmt.Errorf("%s: %w", field, err)
		return new(big.Int)
	}
	return a
}

func (c *conv) rate(field, v string) decimal.Decimal {
	if c.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		c.err = fmt.Errorf("%s: %w", field, err)
	}
	return d
}
