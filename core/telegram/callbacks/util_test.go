package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name        string
		cb          *tele.Callback
		wantKey     string
		wantPayload string
	}{
		{name: "nil", cb: nil},
		{name: "raw with payload", cb: &tele.Callback{Data: "\ftemplate|7"}, wantKey: "template", wantPayload: "7"},
		{name: "raw without payload", cb: &tele.Callback{Data: "\fsettings"}, wantKey: "settings"},
		{name: "payload keeps separators", cb: &tele.Callback{Data: "\fx|a|b"}, wantKey: "x", wantPayload: "a|b"},
		{name: "matched by telebot", cb: &tele.Callback{Unique: "lang", Data: "en"}, wantKey: "lang", wantPayload: "en"},
		{name: "foreign data", cb: &tele.Callback{Data: "legacy"}, wantKey: "legacy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tt.cb)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantPayload, payload)
		})
	}
}
