package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	pathAddrSize = common.AddressLength
	pathFeeSize  = 3
	pathHopSize  = pathAddrSize + pathFeeSize
	// MaxFee is the largest fee tier a 3-byte path segment can carry.
	MaxFee = 1<<24 - 1
)

// Hop is one pool traversal of a multi-hop path.
type Hop struct {
	AssetIn  common.Address
	AssetOut common.Address
	Fee      uint32
}

// DecodePath splits an encoded path (asset | fee | asset [| fee | asset]...)
// into hops. A valid path has at least one hop.
func DecodePath(path []byte) ([]Hop, error) {
	if len(path) < pathHopSize+pathAddrSize || (len(path)-pathAddrSize)%pathHopSize != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPath, len(path))
	}

	n := (len(path) - pathAddrSize) / pathHopSize
	hops := make([]Hop, 0, n)
	for i := 0; i < n; i++ {
		off := i * pathHopSize
		fee := uint32(path[off+pathAddrSize])<<16 | uint32(path[off+pathAddrSize+1])<<8 | uint32(path[off+pathAddrSize+2])
		hops = append(hops, Hop{
			AssetIn:  common.BytesToAddress(path[off : off+pathAddrSize]),
			Fee:      fee,
			AssetOut: common.BytesToAddress(path[off+pathHopSize : off+pathHopSize+pathAddrSize]),
		})
	}
	return hops, nil
}

// EncodePath packs assets and fees into a path. len(fees) must be len(assets)-1.
func EncodePath(assets []common.Address, fees []uint32) ([]byte, error) {
	if len(assets) < 2 || len(fees) != len(assets)-1 {
		return nil, fmt.Errorf("%w: %d assets, %d fees", ErrInvalidPath, len(assets), len(fees))
	}

	out := make([]byte, 0, len(assets)*pathAddrSize+len(fees)*pathFeeSize)
	for i, asset := range assets {
		out = append(out, asset.Bytes()...)
		if i < len(fees) {
			if fees[i] > MaxFee {
				return nil, fmt.Errorf("%w: fee %d exceeds 24 bits", ErrInvalidPath, fees[i])
			}
			out = append(out, byte(fees[i]>>16), byte(fees[i]>>8), byte(fees[i]))
		}
	}
	return out, nil
}

// PathEnds returns the first and last asset of an encoded path.
func PathEnds(path []byte) (common.Address, common.Address, error) {
	hops, err := DecodePath(path)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return hops[0].AssetIn, hops[len(hops)-1].AssetOut, nil
}
