package sim

import (
	"fmt"
	"sync"

	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
)

// Directory resolves binding addresses to the simulated protocols deployed
// there. It implements ports.IntegrationResolver.
type Directory struct {
	mu        sync.RWMutex
	exchanges map[common.Address]*Exchange
	lendings  map[common.Address]*Lending
	bridges   map[common.Address]*Bridge
}

func NewDirectory() *Directory {
	return &Directory{
		exchanges: make(map[common.Address]*Exchange),
		lendings:  make(map[common.Address]*Lending),
		bridges:   make(map[common.Address]*Bridge),
	}
}

func (d *Directory) AddExchange(e *Exchange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exchanges[e.Address()] = e
}

func (d *Directory) AddLending(l *Lending) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lendings[l.Address()] = l
}

func (d *Directory) AddBridge(b *Bridge) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bridges[b.Address()] = b
}

func (d *Directory) Exchange(addr common.Address) (ports.Exchange, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if e, ok := d.exchanges[addr]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: exchange at %s", ports.ErrNoIntegration, addr.Hex())
}

func (d *Directory) Lending(addr common.Address) (ports.Lending, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if l, ok := d.lendings[addr]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: lending at %s", ports.ErrNoIntegration, addr.Hex())
}

func (d *Directory) Bridge(addr common.Address) (ports.Bridge, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if b, ok := d.bridges[addr]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: bridge at %s", ports.ErrNoIntegration, addr.Hex())
}
