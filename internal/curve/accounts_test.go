package curve

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMintData(supply uint64, decimals uint8, initialized bool) []byte {
	data := make([]byte, MintAccountSize)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	if initialized {
		data[45] = 1
	}
	return data
}

func buildCurveData(virtualBase, virtualQuote, realBase, realQuote uint64) []byte {
	data := make([]byte, 48)
	binary.LittleEndian.PutUint64(data[8:16], virtualBase)
	binary.LittleEndian.PutUint64(data[16:24], virtualQuote)
	binary.LittleEndian.PutUint64(data[24:32], realBase)
	binary.LittleEndian.PutUint64(data[32:40], realQuote)
	return data
}

func TestDecodeMintAccount(t *testing.T) {
	record, err := DecodeMintAccount(buildMintData(1_000_000_000_000_000, 6, true))
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_000_000_000_000), record.Supply)
	assert.Equal(t, uint8(6), record.Decimals)
	assert.True(t, record.Initialized)
}

func TestDecodeMintAccountUninitialized(t *testing.T) {
	record, err := DecodeMintAccount(buildMintData(0, 9, false))
	require.NoError(t, err)
	assert.False(t, record.Initialized)
}

func TestDecodeMintAccountWrongSize(t *testing.T) {
	for _, size := range []int{0, 81, 83, 165} {
		_, err := DecodeMintAccount(make([]byte, size))
		require.Error(t, err, "size %d should be rejected", size)

		var formatErr *FormatError
		assert.ErrorAs(t, err, &formatErr)
	}
}

func TestDecodeCurveAccount(t *testing.T) {
	addr := solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	state, err := DecodeCurveAccount(addr, buildCurveData(100, 200, 300, 400))
	require.NoError(t, err)

	assert.Equal(t, addr, state.Address)
	assert.Equal(t, uint64(100), state.VirtualBase)
	assert.Equal(t, uint64(200), state.VirtualQuote)
	assert.Equal(t, uint64(300), state.RealBase)
	assert.Equal(t, uint64(400), state.RealQuote)
}

func TestDecodeCurveAccountTooShort(t *testing.T) {
	_, err := DecodeCurveAccount(solana.PublicKey{}, make([]byte, 39))
	require.Error(t, err)

	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestDecodeCurveAccountIgnoresTrailingBytes(t *testing.T) {
	data := append(buildCurveData(1, 2, 3, 4), make([]byte, 100)...)
	state, err := DecodeCurveAccount(solana.PublicKey{}, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), state.RealQuote)
}

func TestPriceSOL(t *testing.T) {
	// 1 token (decimals 0) priced by 85 SOL of virtual quote.
	state := State{VirtualBase: 1, VirtualQuote: 85_000_000_000}
	assert.InDelta(t, 85.0, PriceSOL(state, 0), 1e-12)

	// 1B tokens at 6 decimals against 30 SOL.
	state = State{VirtualBase: 1_000_000_000_000_000, VirtualQuote: 30_000_000_000}
	assert.InDelta(t, 3e-8, PriceSOL(state, 6), 1e-18)
}

func TestPriceSOLZeroReserves(t *testing.T) {
	assert.Zero(t, PriceSOL(State{}, 6))
}

func TestLiquiditySOL(t *testing.T) {
	assert.InDelta(t, 2.5, LiquiditySOL(State{RealQuote: 2_500_000_000}), 1e-12)
	assert.Zero(t, LiquiditySOL(State{}))
}
