package domain

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenC = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func TestEncodeDecodePath(t *testing.T) {
	path, err := EncodePath([]common.Address{tokenA, tokenB, tokenC}, []uint32{500, 3000})
	require.NoError(t, err)
	assert.Len(t, path, 20+3+20+3+20)

	hops, err := DecodePath(path)
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.Equal(t, Hop{AssetIn: tokenA, AssetOut: tokenB, Fee: 500}, hops[0])
	assert.Equal(t, Hop{AssetIn: tokenB, AssetOut: tokenC, Fee: 3000}, hops[1])

	in, out, err := PathEnds(path)
	require.NoError(t, err)
	assert.Equal(t, tokenA, in)
	assert.Equal(t, tokenC, out)
}

func TestDecodePathRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		path []byte
	}{
		{"empty", nil},
		{"single asset", tokenA.Bytes()},
		{"dangling fee", append(tokenA.Bytes(), 0, 1, 244)},
		{"truncated", make([]byte, 44)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePath(tt.path)
			assert.True(t, errors.Is(err, ErrInvalidPath))
		})
	}
}

func TestEncodePathRejectsOversizedFee(t *testing.T) {
	_, err := EncodePath([]common.Address{tokenA, tokenB}, []uint32{MaxFee + 1})
	assert.ErrorIs(t, err, ErrInvalidPath)
}
