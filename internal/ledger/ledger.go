// Package ledger owns user balances and the append-only log of operations
// that changed them. Every mutation is a single atomic unit: the balance
// update and its operation record are written together or not at all.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies an operation record.
type Kind string

const (
	KindTopUp  Kind = "top_up"
	KindDeduct Kind = "deduct"
)

// DefaultLanguage is reported for users without an account.
const DefaultLanguage = "ru"

// DefaultInitialBalance is granted to every new account.
var DefaultInitialBalance = decimal.NewFromInt(10)

var (
	// ErrUnknownUser is returned for mutations on an account that does not exist.
	ErrUnknownUser = errors.New("ledger: unknown user")
	// ErrInvalidAmount rejects non-positive or over-precise amounts.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrDrift reports that the operation log does not replay to the stored balance.
	ErrDrift = errors.New("ledger: balance drift")
)

// Account is the stored state of one user.
type Account struct {
	UserID    int64           `db:"user_id" json:"user_id"`
	Language  string          `db:"language" json:"language"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Operation is one immutable balance change.
type Operation struct {
	ID            int64           `db:"id" json:"id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	Kind          Kind            `db:"operation_type" json:"kind"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Stats aggregates the operation log of one user.
type Stats struct {
	Account         Account         `json:"account"`
	TotalTopUps     decimal.Decimal `json:"total_top_ups"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	Operations      int             `json:"operations"`
}

// Ledger is the balance contract the conversation engine depends on.
type Ledger interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	TopUp(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// Deduct decreases the balance only when it covers amount. When it does
	// not, nothing is written and the current balance is returned with false.
	Deduct(ctx context.Context, userID int64, amount decimal.Decimal) (bool, decimal.Decimal, error)
	EnsureUser(ctx context.Context, userID int64, language string) (bool, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	SetLanguage(ctx context.Context, userID int64, language string) error
	Language(ctx context.Context, userID int64) (string, error)
	Stats(ctx context.Context, userID int64) (Stats, error)
	Operations(ctx context.Context, userID int64) ([]Operation, error)
}

// validAmount accepts positive amounts with at most two fraction digits.
func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// ParseAmount reads a user-typed amount such as "150", "99.5" or "99,50".
// A non-positive max disables the upper bound.
func ParseAmount(text string, max decimal.Decimal) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), " ", "")
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := validAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) != 2 {
		return DefaultLanguage
	}
	return lang
}
