// Package wallet holds the signing identity for live trading.
package wallet

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet wraps a Solana keypair.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// New builds a wallet from a base58-encoded 64-byte private key.
func New(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// FromEnv loads the key from the named environment variable. Returns
// (nil, nil) when the variable is unset so dry-run startup stays keyless.
func FromEnv(envVar string) (*Wallet, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil, nil
	}
	w, err := New(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid key in %s: %w", envVar, err)
	}
	return w, nil
}

// SignTransaction signs tx with the wallet key.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

func (w *Wallet) String() string {
	return w.PublicKey.String()
}
