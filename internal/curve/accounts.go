package curve

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MintAccountSize is the fixed size of an SPL token mint account.
const MintAccountSize = 82

// curveAccountMinSize covers the 8-byte discriminator plus four u64 reserve
// fields. Newer program versions append fields after these; they are ignored.
const curveAccountMinSize = 40

// FormatError reports a malformed or unexpected binary account record.
// Candidates that produce one are dropped, never retried.
type FormatError struct {
	Account string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s account: %s", e.Account, e.Reason)
}

// MintAccount holds the fields of an SPL mint record the pipeline cares about.
type MintAccount struct {
	Supply      uint64
	Decimals    uint8
	Initialized bool
}

// State holds the reserve fields of a bonding curve account. All quantities
// are raw u64 lamport/base-unit values straight from the account data.
type State struct {
	Address      solana.PublicKey
	VirtualBase  uint64
	VirtualQuote uint64
	RealBase     uint64
	RealQuote    uint64
}

// DecodeMintAccount decodes a fixed-layout SPL mint record.
// Layout: mint authority option+key [0:36], supply u64 LE [36:44],
// decimals [44], initialized flag [45], freeze authority [46:82].
func DecodeMintAccount(data []byte) (MintAccount, error) {
	if len(data) != MintAccountSize {
		return MintAccount{}, &FormatError{
			Account: "mint",
			Reason:  fmt.Sprintf("expected %d bytes, got %d", MintAccountSize, len(data)),
		}
	}
	return MintAccount{
		Supply:      binary.LittleEndian.Uint64(data[36:44]),
		Decimals:    data[44],
		Initialized: data[45] == 1,
	}, nil
}

// DecodeCurveAccount decodes a bonding curve record: an 8-byte anchor
// discriminator followed by virtual base, virtual quote, real base and real
// quote reserves as little-endian u64s.
func DecodeCurveAccount(address solana.PublicKey, data []byte) (State, error) {
	if len(data) < curveAccountMinSize {
		return State{}, &FormatError{
			Account: "curve",
			Reason:  fmt.Sprintf("need at least %d bytes, got %d", curveAccountMinSize, len(data)),
		}
	}
	return State{
		Address:      address,
		VirtualBase:  binary.LittleEndian.Uint64(data[8:16]),
		VirtualQuote: binary.LittleEndian.Uint64(data[16:24]),
		RealBase:     binary.LittleEndian.Uint64(data[24:32]),
		RealQuote:    binary.LittleEndian.Uint64(data[32:40]),
	}, nil
}

// PriceSOL derives the spot price in SOL per whole token from the virtual
// reserves, following the constant-product quote of the curve.
func PriceSOL(s State, decimals uint8) float64 {
	if s.VirtualBase == 0 {
		return 0
	}
	quoteSOL := float64(s.VirtualQuote) / 1e9
	baseTokens := float64(s.VirtualBase) / pow10(decimals)
	if baseTokens == 0 {
		return 0
	}
	return quoteSOL / baseTokens
}

// LiquiditySOL returns the real quote reserves in SOL.
func LiquiditySOL(s State) float64 {
	return float64(s.RealQuote) / 1e9
}

func pow10(n uint8) float64 {
	result := 1.0
	for i := uint8(0); i < n; i++ {
		result *= 10
	}
	return result
}
