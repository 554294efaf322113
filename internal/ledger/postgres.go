package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/artbot/core/database"
	"github.com/m3rciful/artbot/core/logger"
)

// checkViolation is the SQLSTATE raised by the users.balance >= 0 constraint.
const checkViolation = "23514"

var errNegativeBalance = errors.New("ledger: balance constraint violated")

// Postgres is the durable Ledger backed by the users and operations tables.
type Postgres struct {
	db      *sqlx.DB
	initial decimal.Decimal
}

// NewPostgres wraps an open pool.
func NewPostgres(db *sqlx.DB, initial decimal.Decimal) *Postgres {
	return &Postgres{db: db, initial: initial}
}

func (p *Postgres) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := p.db.GetContext(ctx, &balance, `SELECT balance FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

func (p *Postgres) TopUp(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return decimal.Zero, err
	}
	var after decimal.Decimal
	err := database.WithTx(ctx, p.db, nil, func(tx *sqlx.Tx) error {
		before, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		after = before.Add(amount)
		return writeOperation(ctx, tx, userID, KindTopUp, amount, before, after)
	})
	if err != nil {
		return decimal.Zero, err
	}
	logger.DB.Debug("ledger top up",
		slog.String("event", "ledger.top_up"),
		slog.Int64("user_id", userID),
		slog.String("amount", amount.String()),
		slog.String("balance_after", after.String()),
	)
	return after, nil
}

func (p *Postgres) Deduct(ctx context.Context, userID int64, amount decimal.Decimal) (bool, decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return false, decimal.Zero, err
	}
	var (
		ok      bool
		balance decimal.Decimal
	)
	err := database.WithTx(ctx, p.db, nil, func(tx *sqlx.Tx) error {
		before, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if before.LessThan(amount) {
			balance = before
			return nil
		}
		after := before.Sub(amount)
		if err := writeOperation(ctx, tx, userID, KindDeduct, amount, before, after); err != nil {
			return err
		}
		ok, balance = true, after
		return nil
	})
	if errors.Is(err, errNegativeBalance) {
		current, berr := p.Balance(ctx, userID)
		return false, current, berr
	}
	if err != nil {
		return false, decimal.Zero, err
	}
	return ok, balance, nil
}

func lockBalance(ctx context.Context, tx *sqlx.Tx, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		SELECT balance
		FROM users
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrUnknownUser
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock balance: %w", err)
	}
	return balance, nil
}

func writeOperation(ctx context.Context, tx *sqlx.Tx, userID int64, kind Kind, amount, before, after decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET balance = $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, after)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == checkViolation {
			return errNegativeBalance
		}
		return fmt.Errorf("update balance: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO operations (user_id, operation_type, amount, balance_before, balance_after)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, string(kind), amount, before, after)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

func (p *Postgres) EnsureUser(ctx context.Context, userID int64, language string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO users (user_id, language, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, normalizeLanguage(language), p.initial)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := p.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID); err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

func (p *Postgres) SetLanguage(ctx context.Context, userID int64, language string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users
		SET language = $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, normalizeLanguage(language))
	if err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownUser
	}
	return nil
}

func (p *Postgres) Language(ctx context.Context, userID int64) (string, error) {
	var lang string
	err := p.db.GetContext(ctx, &lang, `SELECT language FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultLanguage, nil
	}
	if err != nil {
		return DefaultLanguage, fmt.Errorf("select language: %w", err)
	}
	return lang, nil
}

func (p *Postgres) Stats(ctx context.Context, userID int64) (Stats, error) {
	var st Stats
	err := p.db.GetContext(ctx, &st.Account, `
		SELECT user_id, language, balance, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, ErrUnknownUser
	}
	if err != nil {
		return Stats{}, fmt.Errorf("select account: %w", err)
	}

	var agg struct {
		Operations      int             `db:"operations"`
		TotalTopUps     decimal.Decimal `db:"total_top_ups"`
		TotalDeductions decimal.Decimal `db:"total_deductions"`
	}
	err = p.db.GetContext(ctx, &agg, `
		SELECT
			COUNT(*) AS operations,
			COALESCE(SUM(CASE WHEN operation_type = 'top_up' THEN amount END), 0) AS total_top_ups,
			COALESCE(SUM(CASE WHEN operation_type = 'deduct' THEN amount END), 0) AS total_deductions
		FROM operations
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate operations: %w", err)
	}
	st.Operations = agg.Operations
	st.TotalTopUps = agg.TotalTopUps
	st.TotalDeductions = agg.TotalDeductions
	return st, nil
}

func (p *Postgres) Operations(ctx context.Context, userID int64) ([]Operation, error) {
	var ops []Operation
	err := p.db.SelectContext(ctx, &ops, `
		SELECT id, user_id, operation_type, amount, balance_before, balance_after, created_at
		FROM operations
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select operations: %w", err)
	}
	return ops, nil
}

// Users lists every account id in ascending order.
func (p *Postgres) Users(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := p.db.SelectContext(ctx, &ids, `SELECT user_id FROM users ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return ids, nil
}
