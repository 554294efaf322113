package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/artbot/core/logger"
	"github.com/m3rciful/artbot/internal/generation"
	"github.com/m3rciful/artbot/internal/ledger"
	"github.com/m3rciful/artbot/internal/render"
	"github.com/m3rciful/artbot/internal/session"
)

// turn is the handling of a single event.
type turn struct {
	e     *Engine
	ctx   context.Context
	ev    Event
	sess  *session.Session
	lang  string
	known bool
	out   []render.Request

	// committed is set once a ledger mutation for this event has been applied.
	committed bool
}

// show replaces the pressed message for button events and sends a new one otherwise.
func (t *turn) show(rows [][]render.Choice, texts ...render.Text) {
	t.emit(t.ev.Kind == KindButton && len(t.out) == 0, rows, texts)
}

// send always adds a new message.
func (t *turn) send(rows [][]render.Choice, texts ...render.Text) {
	t.emit(false, rows, texts)
}

func (t *turn) emit(edit bool, rows [][]render.Choice, texts []render.Text) {
	t.out = append(t.out, render.Request{
		UserID: t.ev.UserID,
		Lang:   t.lang,
		Texts:  texts,
		Rows:   rows,
		Edit:   edit,
	})
}

func (t *turn) dispatch() error {
	switch t.ev.Kind {
	case KindCommand:
		return t.onCommand()
	case KindButton:
		return t.onButton()
	}
	if !t.known {
		return t.askLanguage()
	}
	switch t.ev.Kind {
	case KindText:
		return t.onText()
	case KindPhoto:
		if t.sess.State == session.StateAwaitingPhoto {
			return t.onPhoto()
		}
	case KindOther:
		if t.sess.State == session.StateAwaitingPhoto {
			return t.notAPhoto()
		}
	}
	return t.stray()
}

func (t *turn) onCommand() error {
	if !t.known {
		return t.askLanguage()
	}
	switch t.ev.Command {
	case CommandStart, CommandMenu:
		return t.mainMenu()
	}
	return t.stray()
}

func (t *turn) onButton() error {
	a := t.ev.Action
	if a.Name == ActionLanguage {
		return t.pickLanguage(a.Arg)
	}
	if !t.known {
		return t.askLanguage()
	}
	if IsGlobal(a.Name) {
		switch a.Name {
		case ActionOpenCatalog, ActionBackToTemplates:
			return t.openCatalog()
		case ActionSettings, ActionBackToSettings:
			return t.settings(true)
		case ActionTopUp:
			return t.topUpMethods()
		case ActionChangeLanguage:
			return t.askLanguage()
		case ActionBackToMenu:
			return t.mainMenu()
		}
	}
	want, ok := ScopeOf(a.Name)
	if !ok || t.sess.State != want {
		return t.expired()
	}
	switch a.Name {
	case ActionTemplatesPage:
		return t.catalogPage(a.Arg)
	case ActionTemplate:
		return t.pickTemplate(a.Arg)
	case ActionCustomPrompt:
		t.sess.State = session.StateAwaitingCustomPrompt
		t.show(backToTemplatesRows(), render.Key("enter_custom_prompt"))
		return nil
	case ActionKeepPrompt:
		return t.keepPrompt()
	case ActionImprovePrompt:
		return t.improvePrompt()
	case ActionPayment:
		return t.pickPayment(a.Arg)
	case ActionTryAgain:
		return t.tryAgain()
	case ActionSendAnother:
		return t.sendAnother()
	}
	return t.expired()
}

func (t *turn) onText() error {
	switch t.sess.State {
	case session.StateAwaitingCustomPrompt, session.StateReviewingCustomPrompt:
		return t.enterPrompt(t.ev.Text)
	case session.StateAwaitingTopUpAmount:
		return t.enterAmount(t.ev.Text)
	case session.StateAwaitingPhoto:
		return t.notAPhoto()
	}
	return t.stray()
}

// views

func (t *turn) askLanguage() error {
	t.sess.Reset()
	t.sess.State = session.StateAwaitingLanguage
	t.show(languageRows(t.e.cfg.Languages), render.Key("welcome_new"))
	return nil
}

func (t *turn) mainMenu() error {
	t.sess.Reset()
	t.show(mainMenuRows(), render.Key("welcome_back"))
	return nil
}

func (t *turn) settings(edit bool) error {
	balance, err := t.e.ledger.Balance(t.ctx, t.ev.UserID)
	if err != nil {
		return storageErr(err)
	}
	t.sess.Reset()
	texts := []render.Text{render.Key("profile"), render.Key("balance", "balance", money(balance))}
	if edit {
		t.show(settingsRows(), texts...)
	} else {
		t.send(settingsRows(), texts...)
	}
	return nil
}

func (t *turn) stray() error {
	t.send(mainMenuRows(), render.Key("use_menu"))
	return nil
}

func (t *turn) notAPhoto() error {
	t.send(backToTemplatesRows(), render.Key("not_a_photo"))
	return nil
}

func (t *turn) expired() error {
	t.send(nil, render.Key("action_expired"))
	return nil
}

func (t *turn) insufficient(key string, balance decimal.Decimal) {
	t.send(insufficientRows(),
		render.Key(key, "balance", money(balance)),
		render.Key("top_up_balance_suggestion"),
	)
}

// language

func (t *turn) pickLanguage(lang string) error {
	if !slices.Contains(t.e.cfg.Languages, lang) {
		return t.expired()
	}
	if t.known {
		if err := t.e.ledger.SetLanguage(t.ctx, t.ev.UserID, lang); err != nil {
			return storageErr(err)
		}
	} else {
		created, err := t.e.ledger.EnsureUser(t.ctx, t.ev.UserID, lang)
		if err != nil {
			return storageErr(err)
		}
		if created {
			logger.LogEvent(t.ctx, t.e.log, slog.LevelInfo, "engine.user_created",
				slog.Int64("user_id", t.ev.UserID),
				slog.String("lang", lang),
			)
		}
		t.known = true
	}
	t.lang = lang
	t.sess.Reset()
	t.show(nil, render.Key("language_selected"))
	t.send(mainMenuRows(), render.Key("welcome_back"))
	return nil
}

// catalog and prompts

func (t *turn) openCatalog() error {
	t.sess.Reset()
	t.sess.State = session.StateAwaitingTemplate
	return t.renderPage(0)
}

func (t *turn) catalogPage(arg string) error {
	k, err := strconv.Atoi(arg)
	if err != nil || k < 0 || k >= t.e.catalog.Pages() {
		return t.expired()
	}
	return t.renderPage(k)
}

func (t *turn) renderPage(k int) error {
	page, err := t.e.catalog.Page(k)
	if err != nil {
		return t.expired()
	}
	t.sess.Draft.Page = k
	t.show(catalogRows(page), render.Key("select_template"))
	return nil
}

func (t *turn) pickTemplate(arg string) error {
	id, err := strconv.Atoi(arg)
	if err != nil || !t.e.catalog.Contains(id) {
		return t.expired()
	}
	balance, err := t.e.ledger.Balance(t.ctx, t.ev.UserID)
	if err != nil {
		return storageErr(err)
	}
	if balance.LessThan(t.e.cfg.GenerationCost) {
		t.insufficient("insufficient_balance_generation", balance)
		return nil
	}
	t.sess.Draft.UseTemplate(id)
	t.sess.State = session.StateAwaitingPhoto
	t.show(backToTemplatesRows(), render.Key("send_photo_for_generation", "balance", money(balance)))
	return nil
}

func (t *turn) enterPrompt(text string) error {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		t.send(backToTemplatesRows(), render.Key("prompt_empty"))
		return nil
	}
	if utf8.RuneCountInString(prompt) > t.e.cfg.MaxPromptRunes {
		t.send(backToTemplatesRows(), render.Key("prompt_too_long", "limit", strconv.Itoa(t.e.cfg.MaxPromptRunes)))
		return nil
	}
	t.sess.Draft.UseCustom(prompt)
	t.sess.State = session.StateReviewingCustomPrompt
	t.send(reviewRows(), render.Key("your_prompt", "prompt", prompt))
	return nil
}

func (t *turn) keepPrompt() error {
	balance, err := t.e.ledger.Balance(t.ctx, t.ev.UserID)
	if err != nil {
		return storageErr(err)
	}
	if balance.LessThan(t.e.cfg.GenerationCost) {
		t.insufficient("insufficient_balance_generation", balance)
		return nil
	}
	t.sess.State = session.StateAwaitingPhoto
	t.show(nil, render.Key("prompt_kept", "prompt", t.sess.Draft.CustomPrompt))
	t.send(backToTemplatesRows(), render.Key("send_photo_for_generation", "balance", money(balance)))
	return nil
}

func (t *turn) improvePrompt() error {
	cost := t.e.cfg.ImproveCost
	ok, balance, err := t.e.ledger.Deduct(t.ctx, t.ev.UserID, cost)
	if err != nil {
		return storageErr(err)
	}
	if !ok {
		t.insufficient("insufficient_balance", balance)
		return nil
	}
	t.committed = true

	ictx, cancel := context.WithTimeout(t.ctx, t.e.cfg.GenerationTimeout)
	improved, ierr := t.e.improver.Improve(ictx, t.lang, t.sess.Draft.CustomPrompt)
	cancel()
	if ierr == nil && strings.TrimSpace(improved) == "" {
		ierr = generation.ErrFailed
	}
	if ierr != nil {
		balance, err = t.refund(cost, "improve", ierr)
		if err != nil {
			return err
		}
		t.send(reviewRows(),
			render.Key("improve_error"),
			render.Key("balance", "balance", money(balance)),
		)
		return nil
	}

	t.sess.Draft.UseCustom(improved)
	t.sess.State = session.StateAwaitingPhoto
	t.show(nil,
		render.Key("prompt_improved"),
		render.Literal(improved),
		render.Key("new_balance", "balance", money(balance)),
	)
	t.send(backToTemplatesRows(), render.Key("send_photo_for_generation", "balance", money(balance)))
	return nil
}

// top up

func (t *turn) topUpMethods() error {
	t.sess.Reset()
	t.sess.State = session.StateAwaitingTopUpMethod
	t.show(paymentRows(t.e.cfg.PaymentMethods), render.Key("select_payment_method"))
	return nil
}

func (t *turn) pickPayment(method string) error {
	if !slices.Contains(t.e.cfg.PaymentMethods, method) {
		return t.expired()
	}
	t.sess.Draft.PaymentMethod = method
	t.sess.State = session.StateAwaitingTopUpAmount
	t.show(amountRows(), render.Key("enter_amount"))
	return nil
}

func (t *turn) enterAmount(text string) error {
	amount, err := ledger.ParseAmount(text, t.e.cfg.MaxTopUp)
	if err != nil {
		t.send(amountRows(), render.Key("amount_error"))
		return nil
	}
	balance, err := t.e.ledger.TopUp(t.ctx, t.ev.UserID, amount)
	if err != nil {
		return storageErr(err)
	}
	t.committed = true
	logger.LogEvent(t.ctx, t.e.log, slog.LevelInfo, "engine.top_up",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("method", t.sess.Draft.PaymentMethod),
		slog.String("amount", amount.String()),
		slog.String("balance_after", money(balance)),
	)
	t.send(nil, render.Key("balance_topped_up", "amount", money(amount), "new_balance", money(balance)))
	return t.settings(false)
}

// generation

// job is what a paid generation needs, taken from the draft or from the last result.
type job struct {
	source     session.PromptSource
	templateID int
	prompt     string
	photoRef   string
}

func (t *turn) onPhoto() error {
	d := t.sess.Draft
	if !d.Ready() {
		t.sess.Reset()
		return t.expired()
	}
	return t.generate(job{
		source:     d.Source,
		templateID: d.TemplateID,
		prompt:     d.CustomPrompt,
		photoRef:   t.ev.PhotoRef,
	})
}

func (t *turn) tryAgain() error {
	last := t.sess.Last
	if last == nil {
		return t.expired()
	}
	return t.generate(job{
		source:     last.Source,
		templateID: last.TemplateID,
		prompt:     last.Prompt,
		photoRef:   last.PhotoRef,
	})
}

func (t *turn) sendAnother() error {
	last := t.sess.Last
	if last == nil {
		return t.expired()
	}
	balance, err := t.e.ledger.Balance(t.ctx, t.ev.UserID)
	if err != nil {
		return storageErr(err)
	}
	if balance.LessThan(t.e.cfg.GenerationCost) {
		t.insufficient("insufficient_balance_generation", balance)
		return nil
	}
	switch last.Source {
	case session.SourceTemplate:
		t.sess.Draft.UseTemplate(last.TemplateID)
	default:
		t.sess.Draft.UseCustom(last.Prompt)
	}
	t.sess.State = session.StateAwaitingPhoto
	t.send(backToTemplatesRows(), render.Key("send_photo_for_generation", "balance", money(balance)))
	return nil
}

// generate debits, calls the gateway and refunds on any failure.
func (t *turn) generate(j job) error {
	prompt := j.prompt
	if j.source == session.SourceTemplate {
		tpl, ok := t.e.catalog.Get(j.templateID)
		if !ok {
			t.sess.Reset()
			return t.expired()
		}
		prompt = tpl.LabelKey
	}

	cost := t.e.cfg.GenerationCost
	ok, balance, err := t.e.ledger.Deduct(t.ctx, t.ev.UserID, cost)
	if err != nil {
		return storageErr(err)
	}
	if !ok {
		t.insufficient("insufficient_balance_generation", balance)
		return nil
	}
	t.committed = true

	t.notify(render.Key("generation_in_progress"), render.Key("new_balance", "balance", money(balance)))

	req := generation.NewRequest(t.ev.UserID, prompt, j.templateID, j.photoRef)
	gctx, cancel := context.WithTimeout(t.ctx, t.e.cfg.GenerationTimeout)
	art, gerr := t.e.gateway.Generate(gctx, req)
	cancel()
	if gerr == nil && art.Ref == "" {
		gerr = generation.ErrFailed
	}
	if gerr != nil {
		balance, err = t.refund(cost, req.ID.String(), gerr)
		if err != nil {
			return err
		}
		t.sess.Reset()
		t.send(nil,
			render.Key("generation_error"),
			render.Key("credits_refunded", "amount", money(cost)),
			render.Key("balance", "balance", money(balance)),
		)
		t.send(mainMenuRows(), render.Key("welcome_back"))
		return nil
	}

	t.sess.Last = &session.LastGeneration{
		Source:     j.source,
		TemplateID: j.templateID,
		Prompt:     j.prompt,
		PhotoRef:   j.photoRef,
	}
	t.sess.Reset()

	info := render.Key("prompt_info_custom", "prompt", j.prompt)
	if j.source == session.SourceTemplate {
		info = render.Key("prompt_info_template").WithParamKey("template", prompt)
	}
	t.out = append(t.out, render.Request{
		UserID: t.ev.UserID,
		Lang:   t.lang,
		Photo:  art.Ref,
		Texts: []render.Text{
			render.Key("generation_success"),
			info,
			render.Key("new_balance", "balance", money(balance)),
		},
		Rows: resultRows(),
	})
	logger.LogEvent(t.ctx, t.e.log, slog.LevelInfo, "engine.generated",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("request_id", req.ID.String()),
		slog.String("balance_after", money(balance)),
	)
	return nil
}

// refund credits amount back on a context detached from the caller's
// cancellation and returns the resulting balance.
func (t *turn) refund(amount decimal.Decimal, ref string, cause error) (decimal.Decimal, error) {
	ctx := context.WithoutCancel(t.ctx)
	balance, err := t.e.ledger.TopUp(ctx, t.ev.UserID, amount)
	if err != nil {
		logger.LogEvent(ctx, t.e.log, slog.LevelError, "engine.refund",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("request_id", ref),
			slog.String("amount", money(amount)),
			slog.String("status", "fail"),
			slog.String("err_code", "REFUND_FAILED"),
			slog.String("err", err.Error()),
			slog.String("cause", cause.Error()),
		)
		return decimal.Zero, storageErr(err)
	}
	timedOut := errors.Is(cause, context.DeadlineExceeded)
	logger.LogEvent(ctx, t.e.log, slog.LevelWarn, "engine.refund",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("request_id", ref),
		slog.String("amount", money(amount)),
		slog.String("balance_after", money(balance)),
		slog.String("status", "refunded"),
		slog.Bool("timeout", timedOut),
		slog.String("cause", cause.Error()),
	)
	return balance, nil
}

func (t *turn) notify(texts ...render.Text) {
	if t.e.progress == nil {
		return
	}
	req := render.Request{UserID: t.ev.UserID, Lang: t.lang, Texts: texts}
	if err := t.e.progress.Notify(t.ctx, req); err != nil {
		logger.LogEvent(t.ctx, t.e.log, slog.LevelWarn, "engine.progress",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
