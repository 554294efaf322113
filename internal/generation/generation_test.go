package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEcho(t *testing.T) {
	req := NewRequest(1, "", 3, "file-abc")
	assert.NotEqual(t, req.ID, NewRequest(1, "", 3, "file-abc").ID)

	art, err := Echo{}.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "file-abc", art.Ref)

	_, err = Echo{}.Generate(context.Background(), NewRequest(1, "", 3, ""))
	assert.ErrorIs(t, err, ErrFailed)
}

func TestEchoHonorsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Echo{Delay: time.Second}.Generate(ctx, NewRequest(1, "p", 0, "f"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTemplateImprover(t *testing.T) {
	got, err := TemplateImprover{}.Improve(context.Background(), "ru", " кот ")
	require.NoError(t, err)
	assert.Equal(t, "Улучшенная версия: кот (профессиональный стиль, детальное описание)", got)

	got, err = TemplateImprover{Format: "{prompt}, highly detailed"}.Improve(context.Background(), "en", "a cat")
	require.NoError(t, err)
	assert.Equal(t, "a cat, highly detailed", got)

	_, err = TemplateImprover{}.Improve(context.Background(), "en", "   ")
	assert.ErrorIs(t, err, ErrFailed)
}
