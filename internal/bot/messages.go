package bot

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/bcxlabs/buybackd/internal/amount"
)

func (b *Bot) startMessage() string {
	return fmt.Sprintf(`🤖 Welcome to the Buyback Bot!

Current conditions:
• Price: $%s per token
• Swap size: %d – %d tokens
• Fee: %s%%

To sell your tokens:
1. Share your payout address with me here
2. Send your tokens to: %s

Your transaction will be processed automatically and you'll receive status notifications.

Use /info to see the current buyback status.`,
		b.terms.PricePerUnit,
		b.terms.MinSwapSize,
		b.terms.MaxSwapSize,
		b.terms.FeePercent,
		b.terms.CustodialAddress,
	)
}

func (b *Bot) infoMessage() string {
	total, err := b.ledger.SumAmountIn()
	if err != nil {
		slog.Error("failed to read buyback totals", "error", err)
		return "⚠️ Error retrieving buyback information."
	}

	remaining := new(big.Int).Sub(amount.FromTokens(b.terms.TotalLimit), total)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}

	return fmt.Sprintf(`📊 Current buyback status:
• Total bought: %s tokens
• Remaining: %s tokens
• Current price: $%s
• Maximum transaction: %d tokens`,
		amount.Format(total),
		amount.Format(remaining),
		b.terms.PricePerUnit,
		b.terms.MaxSwapSize,
	)
}

func registeredMessage(address, custodial string) string {
	return fmt.Sprintf(`✅ Your payout address has been recorded: %s

You can now send your tokens to:
%s

I'll notify you once the transaction is detected and processed.`,
		address, custodial)
}
