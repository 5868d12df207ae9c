package validate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bcxlabs/buybackd/internal/config"
)

// PayoutAddress validates that addr is a well-formed, non-zero EVM address.
func PayoutAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: %q must be 0x + 40 hex characters", config.ErrInvalidAddress, addr)
	}
	if common.HexToAddress(addr) == (common.Address{}) {
		return fmt.Errorf("%w: zero address", config.ErrInvalidAddress)
	}
	return nil
}
