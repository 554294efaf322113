package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Replay folds ops over initial and checks that each record chains from the
// previous one. It returns the balance the log implies.
func Replay(initial decimal.Decimal, ops []Operation) (decimal.Decimal, error) {
	balance := initial
	for _, op := range ops {
		if !op.BalanceBefore.Equal(balance) {
			return balance, fmt.Errorf("%w: operation %d starts at %s, expected %s",
				ErrDrift, op.ID, op.BalanceBefore, balance)
		}
		switch op.Kind {
		case KindTopUp:
			balance = balance.Add(op.Amount)
		case KindDeduct:
			balance = balance.Sub(op.Amount)
		default:
			return balance, fmt.Errorf("%w: operation %d has kind %q", ErrDrift, op.ID, op.Kind)
		}
		if !op.BalanceAfter.Equal(balance) {
			return balance, fmt.Errorf("%w: operation %d ends at %s, expected %s",
				ErrDrift, op.ID, op.BalanceAfter, balance)
		}
		if balance.IsNegative() {
			return balance, fmt.Errorf("%w: operation %d leaves a negative balance", ErrDrift, op.ID)
		}
	}
	return balance, nil
}

// Verify replays the stored log of userID and compares it with the stored balance.
func Verify(ctx context.Context, l Ledger, userID int64, initial decimal.Decimal) error {
	ops, err := l.Operations(ctx, userID)
	if err != nil {
		return err
	}
	replayed, err := Replay(initial, ops)
	if err != nil {
		return err
	}
	stored, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if !stored.Equal(replayed) {
		return fmt.Errorf("%w: user %d stored %s, replayed %s", ErrDrift, userID, stored, replayed)
	}
	return nil
}
