package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Binding names an integration family.
type Binding string

const (
	BindingExchange Binding = "exchange"
	BindingLending  Binding = "lending"
	BindingBridge   Binding = "bridge"
)

// Settings is the only state that outlives a single operation: the
// administrator and the integration bindings. Bridge may be zero (disabled).
type Settings struct {
	Admin     common.Address `json:"admin"`
	Exchange  common.Address `json:"exchange"`
	Lending   common.Address `json:"lending"`
	Bridge    common.Address `json:"bridge"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy of s.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Get returns the binding for family b.
func (s *Settings) Get(b Binding) common.Address {
	switch b {
	case BindingExchange:
		return s.Exchange
	case BindingLending:
		return s.Lending
	case BindingBridge:
		return s.Bridge
	}
	return common.Address{}
}

// Set replaces the binding for family b.
func (s *Settings) Set(b Binding, addr common.Address) {
	switch b {
	case BindingExchange:
		s.Exchange = addr
	case BindingLending:
		s.Lending = addr
	case BindingBridge:
		s.Bridge = addr
	}
}
