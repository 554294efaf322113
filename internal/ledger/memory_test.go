package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMemoryEnsureUser(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(DefaultInitialBalance)

	created, err := l.EnsureUser(ctx, 1, "en")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.EnsureUser(ctx, 1, "ru")
	require.NoError(t, err)
	assert.False(t, created, "second call must not reset the account")

	lang, err := l.Language(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	bal, err := l.Balance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("10")))
}

func TestMemoryUnknownUser(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(DefaultInitialBalance)

	bal, err := l.Balance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	lang, err := l.Language(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, lang)

	_, err = l.TopUp(ctx, 42, dec("5"))
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, _, err = l.Deduct(ctx, 42, dec("5"))
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.ErrorIs(t, l.SetLanguage(ctx, 42, "en"), ErrUnknownUser)
}

func TestMemoryDeduct(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantOK  bool
		wantBal string
		wantOps int
	}{
		{name: "covered", amount: "50", wantOK: true, wantBal: "10", wantOps: 2},
		{name: "exact", amount: "60", wantOK: true, wantBal: "0", wantOps: 2},
		{name: "short", amount: "60.01", wantOK: false, wantBal: "60", wantOps: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			l := NewMemory(DefaultInitialBalance)
			_, err := l.EnsureUser(ctx, 7, "ru")
			require.NoError(t, err)
			_, err = l.TopUp(ctx, 7, dec("50"))
			require.NoError(t, err)

			ok, bal, err := l.Deduct(ctx, 7, dec(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, bal.Equal(dec(tt.wantBal)), "balance %s", bal)

			ops, err := l.Operations(ctx, 7)
			require.NoError(t, err)
			assert.Len(t, ops, tt.wantOps)
			require.NoError(t, Verify(ctx, l, 7, DefaultInitialBalance))
		})
	}
}

func TestMemoryRejectsInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(DefaultInitialBalance)
	_, err := l.EnsureUser(ctx, 1, "ru")
	require.NoError(t, err)

	for _, amount := range []string{"0", "-1", "0.001"} {
		_, err := l.TopUp(ctx, 1, dec(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
		_, _, err = l.Deduct(ctx, 1, dec(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
	ops, err := l.Operations(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestMemoryConcurrentDeductsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(decimal.Zero)
	_, err := l.EnsureUser(ctx, 9, "ru")
	require.NoError(t, err)
	_, err = l.TopUp(ctx, 9, dec("100"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := l.Deduct(ctx, 9, dec("15"))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	bal, err := l.Balance(ctx, 9)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("10")))
	require.NoError(t, Verify(ctx, l, 9, decimal.Zero))

	st, err := l.Stats(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 7, st.Operations)
	assert.True(t, st.TotalTopUps.Equal(dec("100")))
	assert.True(t, st.TotalDeductions.Equal(dec("90")))
}
