package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Memory is an in-process Ledger used by tests and the memory driver.
type Memory struct {
	mu       sync.Mutex
	initial  decimal.Decimal
	accounts map[int64]*Account
	ops      map[int64][]Operation
	nextID   int64
	now      func() time.Time
}

// NewMemory builds an empty ledger granting initial to new accounts.
func NewMemory(initial decimal.Decimal) *Memory {
	return &Memory{
		initial:  initial,
		accounts: make(map[int64]*Account),
		ops:      make(map[int64][]Operation),
		now:      time.Now,
	}
}

func (m *Memory) Balance(_ context.Context, userID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return decimal.Zero, nil
	}
	return acc.Balance, nil
}

func (m *Memory) TopUp(_ context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return decimal.Zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return decimal.Zero, ErrUnknownUser
	}
	m.apply(acc, KindTopUp, amount)
	return acc.Balance, nil
}

func (m *Memory) Deduct(_ context.Context, userID int64, amount decimal.Decimal) (bool, decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return false, decimal.Zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return false, decimal.Zero, ErrUnknownUser
	}
	if acc.Balance.LessThan(amount) {
		return false, acc.Balance, nil
	}
	m.apply(acc, KindDeduct, amount)
	return true, acc.Balance, nil
}

func (m *Memory) apply(acc *Account, kind Kind, amount decimal.Decimal) {
	before := acc.Balance
	after := before.Add(amount)
	if kind == KindDeduct {
		after = before.Sub(amount)
	}
	now := m.now()
	acc.Balance = after
	acc.UpdatedAt = now
	m.nextID++
	m.ops[acc.UserID] = append(m.ops[acc.UserID], Operation{
		ID:            m.nextID,
		UserID:        acc.UserID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     now,
	})
}

func (m *Memory) EnsureUser(_ context.Context, userID int64, language string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[userID]; ok {
		return false, nil
	}
	now := m.now()
	m.accounts[userID] = &Account{
		UserID:    userID,
		Language:  normalizeLanguage(language),
		Balance:   m.initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (m *Memory) Exists(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[userID]
	return ok, nil
}

func (m *Memory) SetLanguage(_ context.Context, userID int64, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return ErrUnknownUser
	}
	acc.Language = normalizeLanguage(language)
	acc.UpdatedAt = m.now()
	return nil
}

func (m *Memory) Language(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return DefaultLanguage, nil
	}
	return acc.Language, nil
}

func (m *Memory) Stats(_ context.Context, userID int64) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return Stats{}, ErrUnknownUser
	}
	st := Stats{Account: *acc, TotalTopUps: decimal.Zero, TotalDeductions: decimal.Zero}
	for _, op := range m.ops[userID] {
		st.Operations++
		switch op.Kind {
		case KindTopUp:
			st.TotalTopUps = st.TotalTopUps.Add(op.Amount)
		case KindDeduct:
			st.TotalDeductions = st.TotalDeductions.Add(op.Amount)
		}
	}
	return st, nil
}

func (m *Memory) Operations(_ context.Context, userID int64) ([]Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := m.ops[userID]
	out := make([]Operation, len(ops))
	copy(out, ops)
	return out, nil
}

// Users lists every known user id.
func (m *Memory) Users(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}
