package validate

import (
	"errors"
	"testing"

	"github.com/bcxlabs/buybackd/internal/config"
)

func TestPayoutAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"checksummed", "0x71C7656EC7ab88b098defB751B7401B5f6d8976F", false},
		{"lowercase", "0x71c7656ec7ab88b098defb751b7401b5f6d8976f", false},
		{"no prefix", "71C7656EC7ab88b098defB751B7401B5f6d8976F", false},
		{"empty", "", true},
		{"too short", "0x1234", true},
		{"too long", "0x71C7656EC7ab88b098defB751B7401B5f6d8976F00", true},
		{"non-hex", "0xZZ07656EC7ab88b098defB751B7401B5f6d8976F", true},
		{"zero address", "0x0000000000000000000000000000000000000000", true},
		{"random text", "send it here please", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PayoutAddress(tt.addr)
			if tt.wantErr {
				if !errors.Is(err, config.ErrInvalidAddress) {
					t.Errorf("PayoutAddress(%q) = %v, want ErrInvalidAddress", tt.addr, err)
				}
				return
			}
			if err != nil {
				t.Errorf("PayoutAddress(%q) error = %v", tt.addr, err)
			}
		})
	}
}
