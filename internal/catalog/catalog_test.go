package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(p Page) []int {
	out := make([]int, 0, len(p.Items))
	for _, e := range p.Items {
		out = append(out, e.ID)
	}
	return out
}

func TestPages(t *testing.T) {
	c := New(DefaultTotal, DefaultPageSize)
	require.Equal(t, 4, c.Pages())

	tests := []struct {
		page     int
		wantIDs  []int
		wantPrev bool
		wantNext bool
	}{
		{page: 0, wantIDs: []int{1, 2, 3, 4, 5}, wantNext: true},
		{page: 1, wantIDs: []int{6, 7, 8, 9, 10}, wantPrev: true, wantNext: true},
		{page: 3, wantIDs: []int{16, 17, 18, 19, 20}, wantPrev: true},
	}
	for _, tt := range tests {
		p, err := c.Page(tt.page)
		require.NoError(t, err)
		assert.Equal(t, tt.wantIDs, ids(p), "page %d", tt.page)
		assert.Equal(t, tt.wantPrev, p.HasPrev, "page %d", tt.page)
		assert.Equal(t, tt.wantNext, p.HasNext, "page %d", tt.page)
	}

	for _, k := range []int{-1, 4} {
		_, err := c.Page(k)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
	}
}

func TestPartialLastPage(t *testing.T) {
	c := New(7, 5)
	assert.Equal(t, 2, c.Pages())
	p, err := c.Page(1)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7}, ids(p))
	assert.Equal(t, "template_7", p.Items[1].LabelKey)
	assert.False(t, p.HasNext)
}

func TestLookup(t *testing.T) {
	c := New(0, 0)
	assert.True(t, c.Contains(1))
	assert.True(t, c.Contains(20))
	assert.False(t, c.Contains(0))
	assert.False(t, c.Contains(21))

	e, ok := c.Get(12)
	require.True(t, ok)
	assert.Equal(t, "template_12", e.LabelKey)

	_, ok = c.Get(21)
	assert.False(t, ok)
}
