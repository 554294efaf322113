package texts

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundlesShareKeys(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "ru"}, r.Languages())
	assert.Equal(t, r.Keys("ru"), r.Keys("en"))
	for i := 1; i <= 20; i++ {
		assert.True(t, r.Has("ru", "template_"+strconv.Itoa(i)))
	}
}

func TestText(t *testing.T) {
	r := MustLoad()

	assert.Equal(t, "💰 Balance: 10.00 credits", r.Text("en", "balance", map[string]string{"balance": "10.00"}))
	assert.Equal(t, "💰 Баланс: 5 кредитов", r.Text("de", "balance", map[string]string{"balance": "5"}))
	assert.Equal(t, "no_such_key", r.Text("en", "no_such_key", nil))
	assert.Equal(t,
		"✅ Balance topped up by 100 credits. New balance: 110 credits",
		r.Text("en", "balance_topped_up", map[string]string{"amount": "100", "new_balance": "110"}),
	)
}
