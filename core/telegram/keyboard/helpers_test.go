package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsRows(t *testing.T) {
	m := InlineButtonsRows(
		[]InlineBtn{{Text: "RU", Unique: "lang", Data: "ru"}, {Text: "EN", Unique: "lang", Data: "en"}},
		nil,
		[]InlineBtn{{Text: "Menu", Unique: "back_to_menu"}},
	)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Equal(t, "lang", m.InlineKeyboard[0][1].Unique)
	assert.Equal(t, "en", m.InlineKeyboard[0][1].Data)
	assert.Equal(t, "Menu", m.InlineKeyboard[1][0].Text)
}
