package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/artbot/internal/generation"
	"github.com/m3rciful/artbot/internal/ledger"
	"github.com/m3rciful/artbot/internal/render"
	"github.com/m3rciful/artbot/internal/session"
)

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) Generate(ctx context.Context, req generation.Request) (generation.Artifact, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(generation.Artifact), args.Error(1)
}

type improverFunc func(ctx context.Context, lang, prompt string) (string, error)

func (f improverFunc) Improve(ctx context.Context, lang, prompt string) (string, error) {
	return f(ctx, lang, prompt)
}

// flakyStore fails Put while failPut is set.
type flakyStore struct {
	session.Store
	failPut bool
}

func (s *flakyStore) Put(ctx context.Context, sess *session.Session) error {
	if s.failPut {
		return errors.New("connection refused")
	}
	return s.Store.Put(ctx, sess)
}

type fixture struct {
	eng    *Engine
	led    *ledger.Memory
	store  *flakyStore
	gw     *gatewayMock
	update int

	mu       sync.Mutex
	progress []render.Request
}

func newFixture(t *testing.T, tune ...func(*Config, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		led:   ledger.NewMemory(ledger.DefaultInitialBalance),
		store: &flakyStore{Store: session.NewMemoryStore()},
		gw:    &gatewayMock{},
	}
	cfg := DefaultConfig()
	deps := Deps{
		Ledger:   f.led,
		Sessions: f.store,
		Gateway:  f.gw,
		Progress: NotifierFunc(func(_ context.Context, req render.Request) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.progress = append(f.progress, req)
			return nil
		}),
	}
	for _, fn := range tune {
		fn(&cfg, &deps)
	}
	eng, err := New(cfg, deps)
	require.NoError(t, err)
	f.eng = eng
	t.Cleanup(func() { f.gw.AssertExpectations(t) })
	return f
}

func (f *fixture) do(t *testing.T, ev Event) []render.Request {
	t.Helper()
	if ev.UpdateID == 0 {
		f.update++
		ev.UpdateID = f.update
	}
	out, err := f.eng.Handle(context.Background(), ev)
	require.NoError(t, err)
	return out
}

func (f *fixture) session(t *testing.T, uid int64) *session.Session {
	t.Helper()
	s, err := f.store.Get(context.Background(), uid)
	require.NoError(t, err)
	return s
}

func (f *fixture) balance(t *testing.T, uid int64) string {
	t.Helper()
	b, err := f.led.Balance(context.Background(), uid)
	require.NoError(t, err)
	return b.StringFixed(2)
}

func (f *fixture) register(t *testing.T, uid int64) {
	t.Helper()
	f.do(t, command(uid, CommandStart))
	f.do(t, press(uid, ActionLanguage, "ru"))
}

func (f *fixture) fund(t *testing.T, uid int64, amount string) {
	t.Helper()
	_, err := f.led.TopUp(context.Background(), uid, decimal.RequireFromString(amount))
	require.NoError(t, err)
}

func command(uid int64, name string) Event { return Event{UserID: uid, Kind: KindCommand, Command: name} }

func press(uid int64, name, arg string) Event {
	return Event{UserID: uid, Kind: KindButton, Action: render.Action{Name: name, Arg: arg}}
}

func text(uid int64, s string) Event { return Event{UserID: uid, Kind: KindText, Text: s} }

func photo(uid int64, ref string) Event { return Event{UserID: uid, Kind: KindPhoto, PhotoRef: ref} }

// keys lists the first text key of every request.
func keys(reqs []render.Request) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if len(r.Texts) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, r.Texts[0].Key)
	}
	return out
}

func actions(rows [][]render.Choice) []string {
	var out []string
	for _, row := range rows {
		for _, c := range row {
			out = append(out, c.Action.Encode())
		}
	}
	return out
}

func TestStartAndLanguagePick(t *testing.T) {
	f := newFixture(t)

	out := f.do(t, command(1, CommandStart))
	assert.Equal(t, []string{"welcome_new"}, keys(out))
	require.Len(t, out[0].Rows, 1, "both languages share one row")
	assert.Equal(t, []string{"lang:ru", "lang:en"}, actions(out[0].Rows))
	assert.Equal(t, session.StateAwaitingLanguage, f.session(t, 1).State)

	exists, err := f.led.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, exists, "no account before a language is picked")

	out = f.do(t, press(1, ActionLanguage, "en"))
	assert.Equal(t, []string{"language_selected", "welcome_back"}, keys(out))
	assert.True(t, out[0].Edit)
	assert.False(t, out[1].Edit)
	assert.Equal(t, "en", out[1].Lang)
	assert.Equal(t, []string{ActionOpenCatalog, ActionSettings}, actions(out[1].Rows))
	assert.Equal(t, session.StateRoot, f.session(t, 1).State)
	assert.Equal(t, "10.00", f.balance(t, 1))

	out = f.do(t, command(1, CommandStart))
	assert.Equal(t, []string{"welcome_back"}, keys(out), "known users go straight to the menu")
	assert.Equal(t, "10.00", f.balance(t, 1), "start never resets the balance")
}

func TestUnknownUserIsAskedForLanguage(t *testing.T) {
	f := newFixture(t)
	for _, ev := range []Event{
		press(2, ActionSettings, ""),
		text(2, "hello"),
		photo(2, "file-1"),
		command(2, CommandMenu),
	} {
		out := f.do(t, ev)
		assert.Equal(t, []string{"welcome_new"}, keys(out), ev.Name())
	}
	exists, err := f.led.Exists(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, exists)

	out := f.do(t, press(2, ActionLanguage, "de"))
	assert.Equal(t, []string{"action_expired"}, keys(out))
}

func TestCatalogPaging(t *testing.T) {
	f := newFixture(t)
	f.register(t, 3)

	out := f.do(t, press(3, ActionOpenCatalog, ""))
	require.Len(t, out, 1)
	assert.True(t, out[0].Edit)
	rows := out[0].Rows
	require.Len(t, rows, 7)
	assert.Equal(t, []string{"template:1"}, actions(rows[:1]))
	assert.Equal(t, []string{ActionCustomPrompt, ActionBackToMenu}, actions(rows[5:6]))
	assert.Equal(t, []string{"templates_page:1"}, actions(rows[6:]))
	assert.Equal(t, session.StateAwaitingTemplate, f.session(t, 3).State)

	out = f.do(t, press(3, ActionTemplatesPage, "1"))
	assert.Equal(t, []string{"templates_page:0", "templates_page:2"}, actions(out[0].Rows[6:]))
	assert.Equal(t, 1, f.session(t, 3).Draft.Page)

	out = f.do(t, press(3, ActionTemplatesPage, "3"))
	assert.Equal(t, []string{"templates_page:2"}, actions(out[0].Rows[6:]))

	out = f.do(t, press(3, ActionTemplatesPage, "4"))
	assert.Equal(t, []string{"action_expired"}, keys(out))
	assert.Equal(t, 3, f.session(t, 3).Draft.Page)
}

func TestTemplatePickNeedsBalance(t *testing.T) {
	f := newFixture(t)
	f.register(t, 4)
	f.do(t, press(4, ActionOpenCatalog, ""))

	out := f.do(t, press(4, ActionTemplate, "3"))
	assert.Equal(t, []string{"insufficient_balance_generation"}, keys(out))
	assert.Equal(t, map[string]string{"balance": "10.00"}, out[0].Texts[0].Params)
	assert.Equal(t, []string{ActionTopUp, ActionBackToMenu}, actions(out[0].Rows))
	assert.Equal(t, session.StateAwaitingTemplate, f.session(t, 4).State)

	f.fund(t, 4, "40")
	out = f.do(t, press(4, ActionTemplate, "3"))
	assert.Equal(t, []string{"send_photo_for_generation"}, keys(out))
	s := f.session(t, 4)
	assert.Equal(t, session.StateAwaitingPhoto, s.State)
	assert.Equal(t, session.SourceTemplate, s.Draft.Source)
	assert.Equal(t, 3, s.Draft.TemplateID)
	assert.Equal(t, "50.00", f.balance(t, 4), "picking a template does not charge")
}

func TestGenerationSuccess(t *testing.T) {
	f := newFixture(t)
	f.register(t, 5)
	f.fund(t, 5, "100")
	f.do(t, press(5, ActionOpenCatalog, ""))
	f.do(t, press(5, ActionTemplate, "3"))

	out := f.do(t, Event{UserID: 5, Kind: KindOther})
	assert.Equal(t, []string{"not_a_photo"}, keys(out))
	assert.Equal(t, session.StateAwaitingPhoto, f.session(t, 5).State)

	f.gw.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return r.TemplateID == 3 && r.PhotoRef == "file-1" && r.UserID == 5
	})).Return(generation.Artifact{Ref: "out-1"}, nil).Once()

	out = f.do(t, photo(5, "file-1"))
	require.Len(t, out, 1)
	assert.Equal(t, "out-1", out[0].Photo)
	assert.Equal(t, []string{"generation_success", "prompt_info_template", "new_balance"},
		[]string{out[0].Texts[0].Key, out[0].Texts[1].Key, out[0].Texts[2].Key})
	assert.Equal(t, map[string]string{"template": "template_3"}, out[0].Texts[1].ParamKeys)
	assert.Equal(t, []string{ActionTryAgain, ActionSendAnother, ActionBackToMenu}, actions(out[0].Rows))

	require.Len(t, f.progress, 1)
	assert.Equal(t, "generation_in_progress", f.progress[0].Texts[0].Key)

	s := f.session(t, 5)
	assert.Equal(t, session.StateRoot, s.State)
	assert.False(t, s.Draft.Ready())
	require.NotNil(t, s.Last)
	assert.Equal(t, "file-1", s.Last.PhotoRef)
	assert.Equal(t, "60.00", f.balance(t, 5))
	require.NoError(t, ledger.Verify(context.Background(), f.led, 5, ledger.DefaultInitialBalance))
}

func TestGenerationFailureRefunds(t *testing.T) {
	f := newFixture(t)
	f.register(t, 6)
	f.fund(t, 6, "100")
	f.do(t, press(6, ActionOpenCatalog, ""))
	f.do(t, press(6, ActionTemplate, "1"))

	f.gw.On("Generate", mock.Anything, mock.Anything).
		Return(generation.Artifact{}, generation.ErrFailed).Once()

	out := f.do(t, photo(6, "file-2"))
	assert.Equal(t, []string{"generation_error", "welcome_back"}, keys(out))
	assert.Equal(t, map[string]string{"amount": "50.00"}, out[0].Texts[1].Params)
	assert.Equal(t, "110.00", f.balance(t, 6))

	ops, err := f.led.Operations(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, ledger.KindDeduct, ops[1].Kind)
	assert.Equal(t, ledger.KindTopUp, ops[2].Kind)
	require.NoError(t, ledger.Verify(context.Background(), f.led, 6, ledger.DefaultInitialBalance))

	s := f.session(t, 6)
	assert.Equal(t, session.StateRoot, s.State)
	assert.Nil(t, s.Last)
}

func TestGenerationTimeoutRefunds(t *testing.T) {
	f := newFixture(t, func(cfg *Config, deps *Deps) {
		cfg.GenerationTimeout = 20 * time.Millisecond
		deps.Gateway = generation.Echo{Delay: time.Second}
	})
	f.register(t, 7)
	f.fund(t, 7, "40")
	f.do(t, press(7, ActionOpenCatalog, ""))
	f.do(t, press(7, ActionTemplate, "2"))

	out := f.do(t, photo(7, "file-3"))
	assert.Equal(t, []string{"generation_error", "welcome_back"}, keys(out))
	assert.Equal(t, "50.00", f.balance(t, 7))
}

func TestTryAgainAndSendAnother(t *testing.T) {
	f := newFixture(t)
	f.register(t, 8)
	f.fund(t, 8, "100")

	out := f.do(t, press(8, ActionTryAgain, ""))
	assert.Equal(t, []string{"action_expired"}, keys(out), "nothing to repeat yet")

	f.do(t, press(8, ActionOpenCatalog, ""))
	f.do(t, press(8, ActionTemplate, "4"))
	f.gw.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return r.TemplateID == 4 && r.PhotoRef == "file-4"
	})).Return(generation.Artifact{Ref: "out"}, nil).Twice()
	f.do(t, photo(8, "file-4"))

	out = f.do(t, press(8, ActionTryAgain, ""))
	assert.Equal(t, "out", out[0].Photo)
	assert.Equal(t, "10.00", f.balance(t, 8))

	out = f.do(t, press(8, ActionTryAgain, ""))
	assert.Equal(t, []string{"insufficient_balance_generation"}, keys(out))
	assert.Equal(t, session.StateRoot, f.session(t, 8).State)

	f.fund(t, 8, "50")
	out = f.do(t, press(8, ActionSendAnother, ""))
	assert.Equal(t, []string{"send_photo_for_generation"}, keys(out))
	s := f.session(t, 8)
	assert.Equal(t, session.StateAwaitingPhoto, s.State)
	assert.Equal(t, 4, s.Draft.TemplateID)
}

func TestCustomPromptImprove(t *testing.T) {
	f := newFixture(t)
	f.register(t, 9)
	f.fund(t, 9, "100")
	f.do(t, press(9, ActionOpenCatalog, ""))

	out := f.do(t, press(9, ActionCustomPrompt, ""))
	assert.Equal(t, []string{"enter_custom_prompt"}, keys(out))
	assert.Equal(t, session.StateAwaitingCustomPrompt, f.session(t, 9).State)

	out = f.do(t, text(9, "   "))
	assert.Equal(t, []string{"prompt_empty"}, keys(out))
	out = f.do(t, text(9, strings.Repeat("я", DefaultMaxPromptRunes+1)))
	assert.Equal(t, []string{"prompt_too_long"}, keys(out))
	assert.Equal(t, session.StateAwaitingCustomPrompt, f.session(t, 9).State)

	out = f.do(t, text(9, "a cat"))
	assert.Equal(t, []string{"your_prompt"}, keys(out))
	assert.Equal(t, []string{ActionImprovePrompt, ActionKeepPrompt, ActionBackToTemplates}, actions(out[0].Rows))

	f.do(t, text(9, "a dog"))
	s := f.session(t, 9)
	assert.Equal(t, session.StateReviewingCustomPrompt, s.State)
	assert.Equal(t, "a dog", s.Draft.CustomPrompt)

	out = f.do(t, press(9, ActionImprovePrompt, ""))
	improved := "Улучшенная версия: a dog (профессиональный стиль, детальное описание)"
	assert.Equal(t, []string{"prompt_improved", "send_photo_for_generation"}, keys(out))
	assert.Equal(t, improved, out[0].Texts[1].Literal)
	assert.Equal(t, "95.00", f.balance(t, 9))
	assert.Equal(t, session.StateAwaitingPhoto, f.session(t, 9).State)

	f.gw.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return r.Prompt == improved && r.TemplateID == 0
	})).Return(generation.Artifact{Ref: "out"}, nil).Once()
	out = f.do(t, photo(9, "file-5"))
	assert.Equal(t, "prompt_info_custom", out[0].Texts[1].Key)
	assert.Equal(t, "45.00", f.balance(t, 9))
}

func TestKeepPrompt(t *testing.T) {
	f := newFixture(t)
	f.register(t, 10)
	f.do(t, press(10, ActionOpenCatalog, ""))
	f.do(t, press(10, ActionCustomPrompt, ""))
	f.do(t, text(10, "sunset"))

	out := f.do(t, press(10, ActionKeepPrompt, ""))
	assert.Equal(t, []string{"insufficient_balance_generation"}, keys(out))
	assert.Equal(t, session.StateReviewingCustomPrompt, f.session(t, 10).State)

	f.fund(t, 10, "40")
	out = f.do(t, press(10, ActionKeepPrompt, ""))
	assert.Equal(t, []string{"prompt_kept", "send_photo_for_generation"}, keys(out))
	assert.Equal(t, "sunset", out[0].Texts[0].Params["prompt"])
	assert.Equal(t, session.StateAwaitingPhoto, f.session(t, 10).State)
	assert.Equal(t, "50.00", f.balance(t, 10))
}

func TestImproveShortOrFailing(t *testing.T) {
	failing := improverFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("upstream down")
	})
	f := newFixture(t, func(_ *Config, deps *Deps) { deps.Improver = failing })
	f.register(t, 11)
	f.do(t, press(11, ActionOpenCatalog, ""))
	f.do(t, press(11, ActionCustomPrompt, ""))
	f.do(t, text(11, "forest"))

	out := f.do(t, press(11, ActionImprovePrompt, ""))
	assert.Equal(t, []string{"insufficient_balance"}, keys(out))
	assert.Equal(t, "10.00", f.balance(t, 11))

	f.fund(t, 11, "10")
	out = f.do(t, press(11, ActionImprovePrompt, ""))
	assert.Equal(t, []string{"improve_error"}, keys(out))
	assert.Equal(t, "20.00", f.balance(t, 11))
	s := f.session(t, 11)
	assert.Equal(t, session.StateReviewingCustomPrompt, s.State)
	assert.Equal(t, "forest", s.Draft.CustomPrompt)
	require.NoError(t, ledger.Verify(context.Background(), f.led, 11, ledger.DefaultInitialBalance))
}

func TestBackToTemplatesClearsDraft(t *testing.T) {
	f := newFixture(t)
	f.register(t, 12)
	f.do(t, press(12, ActionOpenCatalog, ""))
	f.do(t, press(12, ActionCustomPrompt, ""))
	f.do(t, text(12, "mountains"))

	f.do(t, press(12, ActionBackToTemplates, ""))
	s := f.session(t, 12)
	assert.Equal(t, session.StateAwaitingTemplate, s.State)
	assert.False(t, s.Draft.Ready())
	assert.Equal(t, 0, s.Draft.Page)
}

func TestTopUpFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, 13)

	out := f.do(t, press(13, ActionSettings, ""))
	assert.Equal(t, []string{"profile"}, keys(out))
	assert.Equal(t, "10.00", out[0].Texts[1].Params["balance"])

	out = f.do(t, press(13, ActionTopUp, ""))
	assert.Equal(t, []string{"payment:yookassa", "payment:card", "payment:sbp", ActionBackToSettings}, actions(out[0].Rows))
	assert.Equal(t, session.StateAwaitingTopUpMethod, f.session(t, 13).State)

	out = f.do(t, press(13, ActionPayment, "bitcoin"))
	assert.Equal(t, []string{"action_expired"}, keys(out))

	f.do(t, press(13, ActionPayment, "card"))
	s := f.session(t, 13)
	assert.Equal(t, session.StateAwaitingTopUpAmount, s.State)
	assert.Equal(t, "card", s.Draft.PaymentMethod)

	for _, bad := range []string{"abc", "0", "-5", "1.234", "100000.01"} {
		out = f.do(t, text(13, bad))
		assert.Equal(t, []string{"amount_error"}, keys(out), bad)
	}
	assert.Equal(t, session.StateAwaitingTopUpAmount, f.session(t, 13).State)

	out = f.do(t, text(13, "150,5"))
	assert.Equal(t, []string{"balance_topped_up", "profile"}, keys(out))
	assert.Equal(t, map[string]string{"amount": "150.50", "new_balance": "160.50"}, out[0].Texts[0].Params)
	s = f.session(t, 13)
	assert.Equal(t, session.StateRoot, s.State)
	assert.Empty(t, s.Draft.PaymentMethod)
	assert.Equal(t, "160.50", f.balance(t, 13))
}

func TestScopedActionsExpireOutsideTheirState(t *testing.T) {
	f := newFixture(t)
	f.register(t, 14)
	f.fund(t, 14, "100")

	for _, ev := range []Event{
		press(14, ActionTemplate, "3"),
		press(14, ActionTemplatesPage, "1"),
		press(14, ActionKeepPrompt, ""),
		press(14, ActionImprovePrompt, ""),
		press(14, ActionPayment, "card"),
		press(14, "no_such_action", ""),
	} {
		out := f.do(t, ev)
		assert.Equal(t, []string{"action_expired"}, keys(out), ev.Name())
		assert.Equal(t, session.StateRoot, f.session(t, 14).State, ev.Name())
	}
	assert.Equal(t, "110.00", f.balance(t, 14))
}

func TestStrayInput(t *testing.T) {
	f := newFixture(t)
	f.register(t, 15)
	f.do(t, press(15, ActionOpenCatalog, ""))

	out := f.do(t, text(15, "hello"))
	assert.Equal(t, []string{"use_menu"}, keys(out))
	assert.Equal(t, []string{ActionOpenCatalog, ActionSettings}, actions(out[0].Rows))

	out = f.do(t, photo(15, "file"))
	assert.Equal(t, []string{"use_menu"}, keys(out))
	assert.Equal(t, session.StateAwaitingTemplate, f.session(t, 15).State)
}

func TestDuplicateUpdateIsDropped(t *testing.T) {
	f := newFixture(t)
	f.register(t, 16)
	f.do(t, press(16, ActionTopUp, ""))
	f.do(t, press(16, ActionPayment, "sbp"))

	ev := text(16, "100")
	ev.UpdateID = 1000
	out := f.do(t, ev)
	assert.NotEmpty(t, out)
	out = f.do(t, ev)
	assert.Empty(t, out)
	assert.Equal(t, "110.00", f.balance(t, 16))
}

func TestStorageFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.register(t, 17)

	f.store.failPut = true
	ev := press(17, ActionOpenCatalog, "")
	ev.UpdateID = 2000
	_, err := f.eng.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, session.StateRoot, f.session(t, 17).State)

	f.store.failPut = false
	out := f.do(t, ev)
	assert.Equal(t, []string{"select_template"}, keys(out), "a failed update is not remembered")
	assert.Equal(t, session.StateAwaitingTemplate, f.session(t, 17).State)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)

	eng, err := New(Config{}, Deps{
		Ledger:   ledger.NewMemory(ledger.DefaultInitialBalance),
		Sessions: session.NewMemoryStore(),
		Gateway:  generation.Echo{},
	})
	require.NoError(t, err)
	cfg := eng.Config()
	assert.True(t, cfg.GenerationCost.Equal(DefaultGenerationCost))
	assert.Equal(t, DefaultGenerationTimeout, cfg.GenerationTimeout)
	assert.Equal(t, []string{"ru", "en"}, cfg.Languages)
}

func TestTextWhileAwaitingPhoto(t *testing.T) {
	f := newFixture(t)
	f.register(t, 90)
	f.fund(t, 90, "100")
	f.do(t, press(90, ActionOpenCatalog, ""))
	f.do(t, press(90, ActionTemplate, "1"))

	out := f.do(t, text(90, "hello"))
	assert.Equal(t, []string{"not_a_photo"}, keys(out))
	assert.Equal(t, []string{ActionBackToTemplates}, actions(out[0].Rows))
	s := f.session(t, 90)
	assert.Equal(t, session.StateAwaitingPhoto, s.State)
	assert.Equal(t, 1, s.Draft.TemplateID)
	assert.Equal(t, "110.00", f.balance(t, 90))
}

func TestBackToMenuFromAnyState(t *testing.T) {
	tests := []struct {
		state session.State
		steps []Event
	}{
		{session.StateRoot, nil},
		{session.StateAwaitingLanguage, []Event{press(1, ActionChangeLanguage, "")}},
		{session.StateAwaitingTemplate, []Event{
			press(1, ActionOpenCatalog, ""),
			press(1, ActionTemplatesPage, "2"),
		}},
		{session.StateAwaitingCustomPrompt, []Event{
			press(1, ActionOpenCatalog, ""),
			press(1, ActionCustomPrompt, ""),
		}},
		{session.StateReviewingCustomPrompt, []Event{
			press(1, ActionOpenCatalog, ""),
			press(1, ActionCustomPrompt, ""),
			text(1, "lighthouse"),
		}},
		{session.StateAwaitingPhoto, []Event{
			press(1, ActionOpenCatalog, ""),
			press(1, ActionTemplate, "4"),
		}},
		{session.StateAwaitingTopUpMethod, []Event{press(1, ActionTopUp, "")}},
		{session.StateAwaitingTopUpAmount, []Event{
			press(1, ActionTopUp, ""),
			press(1, ActionPayment, "card"),
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			f := newFixture(t)
			f.register(t, 1)
			f.fund(t, 1, "100")
			for _, ev := range tt.steps {
				f.do(t, ev)
			}
			require.Equal(t, tt.state, f.session(t, 1).State)

			out := f.do(t, press(1, ActionBackToMenu, ""))
			assert.Equal(t, []string{"welcome_back"}, keys(out))

			s := f.session(t, 1)
			assert.Equal(t, session.StateRoot, s.State)
			assert.False(t, s.Draft.Ready())
			assert.Zero(t, s.Draft.TemplateID)
			assert.Empty(t, s.Draft.CustomPrompt)
			assert.Empty(t, s.Draft.PaymentMethod)
			assert.Equal(t, 0, s.Draft.Page)
			assert.Equal(t, "110.00", f.balance(t, 1))
		})
	}
}

func TestCommittedTurnSurvivesSessionFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("generation", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, 40)
		f.fund(t, 40, "100")
		f.do(t, press(40, ActionOpenCatalog, ""))
		f.do(t, press(40, ActionTemplate, "1"))
		f.gw.On("Generate", mock.Anything, mock.Anything).
			Return(generation.Artifact{Ref: "out-40"}, nil).Once()

		f.store.failPut = true
		ev := photo(40, "file-40")
		ev.UpdateID = 5000
		out, err := f.eng.Handle(ctx, ev)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "out-40", out[0].Photo)
		assert.Equal(t, "60.00", f.balance(t, 40))

		f.store.failPut = false
		out = f.do(t, ev)
		assert.Empty(t, out)
		assert.Equal(t, "60.00", f.balance(t, 40))
		require.NoError(t, ledger.Verify(ctx, f.led, 40, ledger.DefaultInitialBalance))
	})

	t.Run("top up", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, 41)
		f.do(t, press(41, ActionTopUp, ""))
		f.do(t, press(41, ActionPayment, "card"))

		f.store.failPut = true
		ev := text(41, "40")
		ev.UpdateID = 5001
		out, err := f.eng.Handle(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, []string{"balance_topped_up", "profile"}, keys(out))
		assert.Equal(t, "50.00", f.balance(t, 41))

		f.store.failPut = false
		out = f.do(t, ev)
		assert.Empty(t, out)
		assert.Equal(t, "50.00", f.balance(t, 41))
	})

	t.Run("improve", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, 42)
		f.fund(t, 42, "100")
		f.do(t, press(42, ActionOpenCatalog, ""))
		f.do(t, press(42, ActionCustomPrompt, ""))
		f.do(t, text(42, "a harbor"))

		f.store.failPut = true
		ev := press(42, ActionImprovePrompt, "")
		ev.UpdateID = 5002
		out, err := f.eng.Handle(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, []string{"prompt_improved", "send_photo_for_generation"}, keys(out))
		assert.Contains(t, out[0].Texts[1].Literal, "a harbor")
		assert.Equal(t, "95.00", f.balance(t, 42))

		f.store.failPut = false
		out = f.do(t, ev)
		assert.Empty(t, out)
		assert.Equal(t, "95.00", f.balance(t, 42))
	})

}

func TestStorageErrKeepsLedgerContractErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"backend", errors.New("dial tcp: connection refused"), true},
		{"already wrapped", storageErr(errors.New("timeout")), true},
		{"unknown user", ledger.ErrUnknownUser, false},
		{"invalid amount", fmt.Errorf("top up: %w", ledger.ErrInvalidAmount), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storageErr(tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrStorageUnavailable))
		})
	}
}
