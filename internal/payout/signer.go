package payout

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bcxlabs/buybackd/internal/config"
)

// Signer holds the custodial payout key loaded from a key file.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// LoadSigner reads a hex-encoded private key from path. A leading 0x prefix
// and surrounding whitespace are tolerated.
func LoadSigner(path string) (*Signer, error) {
	if path == "" {
		return nil, config.ErrKeyFileNotSet
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %q: %w", path, err)
	}

	hexKey := strings.TrimSpace(string(raw))
	hexKey = strings.TrimPrefix(hexKey, "0x")

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key from %q: %w", path, err)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	slog.Info("payout signer loaded", "address", addr.Hex())

	return &Signer{key: key, address: addr}, nil
}

// Address returns the signer's account address.
func (s *Signer) Address() common.Address {
	return s.address
}

// VerifyCustodialAddress checks that the loaded key controls addr. Payouts
// spend from the key's account while reserve checks query the configured
// custodial address; a mismatch would make the reserve check meaningless.
func (s *Signer) VerifyCustodialAddress(addr string) error {
	if s.address != common.HexToAddress(addr) {
		return fmt.Errorf("%w: payout key controls %s but custodial address is configured as %s",
			config.ErrInvalidConfig, s.address.Hex(), addr)
	}
	return nil
}

// SignTx signs a transaction with EIP-155 replay protection.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.NewEIP155Signer(chainID)
	signed, err := types.SignTx(tx, signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
