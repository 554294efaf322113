package engine

import "github.com/m3rciful/artbot/internal/session"

// Button actions.
const (
	ActionLanguage        = "lang"
	ActionOpenCatalog     = "send_photo"
	ActionSettings        = "settings"
	ActionTopUp           = "top_up_balance"
	ActionChangeLanguage  = "change_language"
	ActionBackToMenu      = "back_to_menu"
	ActionBackToSettings  = "back_to_settings"
	ActionBackToTemplates = "back_to_templates"
	ActionPayment         = "payment"
	ActionTemplate        = "template"
	ActionTemplatesPage   = "templates_page"
	ActionCustomPrompt    = "custom_prompt"
	ActionImprovePrompt   = "improve_prompt"
	ActionKeepPrompt      = "keep_my_prompt"
	ActionTryAgain        = "try_again"
	ActionSendAnother     = "send_another_photo"
)

// scoped lists the state each state-scoped action belongs to.
var scoped = map[string]session.State{
	ActionTemplatesPage: session.StateAwaitingTemplate,
	ActionTemplate:      session.StateAwaitingTemplate,
	ActionCustomPrompt:  session.StateAwaitingTemplate,
	ActionImprovePrompt: session.StateReviewingCustomPrompt,
	ActionKeepPrompt:    session.StateReviewingCustomPrompt,
	ActionPayment:       session.StateAwaitingTopUpMethod,
	ActionTryAgain:      session.StateRoot,
	ActionSendAnother:   session.StateRoot,
}

var global = map[string]struct{}{
	ActionLanguage:        {},
	ActionOpenCatalog:     {},
	ActionSettings:        {},
	ActionTopUp:           {},
	ActionChangeLanguage:  {},
	ActionBackToMenu:      {},
	ActionBackToSettings:  {},
	ActionBackToTemplates: {},
}

// Actions lists every button action the engine accepts.
func Actions() []string {
	return []string{
		ActionLanguage, ActionOpenCatalog, ActionSettings, ActionTopUp,
		ActionChangeLanguage, ActionBackToMenu, ActionBackToSettings,
		ActionBackToTemplates, ActionPayment, ActionTemplate, ActionTemplatesPage,
		ActionCustomPrompt, ActionImprovePrompt, ActionKeepPrompt,
		ActionTryAgain, ActionSendAnother,
	}
}

// IsGlobal reports whether action works from any state.
func IsGlobal(action string) bool {
	_, ok := global[action]
	return ok
}

// ScopeOf returns the state a scoped action requires.
func ScopeOf(action string) (session.State, bool) {
	st, ok := scoped[action]
	return st, ok
}
