package engine

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/artbot/internal/catalog"
	"github.com/m3rciful/artbot/internal/render"
)

var languageLabels = map[string]string{
	"ru": "🇷🇺 Русский",
	"en": "🇺🇸 English",
}

func button(labelKey, action string) render.Choice {
	return render.Choice{LabelKey: labelKey, Action: render.Action{Name: action}}
}

func buttonArg(labelKey, action, arg string) render.Choice {
	return render.Choice{LabelKey: labelKey, Action: render.Action{Name: action, Arg: arg}}
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func languageRows(langs []string) [][]render.Choice {
	row := make([]render.Choice, 0, len(langs))
	for _, lang := range langs {
		label, ok := languageLabels[lang]
		if !ok {
			label = strings.ToUpper(lang)
		}
		row = append(row, render.Choice{Label: label, Action: render.Action{Name: ActionLanguage, Arg: lang}})
	}
	return render.Grid(row, 2)
}

func mainMenuRows() [][]render.Choice {
	return render.Column(
		button("send_photo", ActionOpenCatalog),
		button("settings", ActionSettings),
	)
}

func settingsRows() [][]render.Choice {
	return render.Column(
		button("top_up_balance", ActionTopUp),
		button("change_language", ActionChangeLanguage),
		button("back_to_menu", ActionBackToMenu),
	)
}

func paymentRows(methods []string) [][]render.Choice {
	choices := make([]render.Choice, 0, len(methods)+1)
	for _, m := range methods {
		choices = append(choices, buttonArg("payment_"+m, ActionPayment, m))
	}
	choices = append(choices, button("back_to_settings", ActionBackToSettings))
	return render.Column(choices...)
}

func amountRows() [][]render.Choice {
	return render.Column(button("back_to_settings", ActionBackToSettings))
}

func catalogRows(p catalog.Page) [][]render.Choice {
	items := make([]render.Choice, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, buttonArg(it.LabelKey, ActionTemplate, strconv.Itoa(it.ID)))
	}
	fixed := []render.Choice{
		button("custom_prompt", ActionCustomPrompt),
		button("back_to_menu", ActionBackToMenu),
	}
	var nav []render.Choice
	if p.HasPrev {
		nav = append(nav, buttonArg("prev_page", ActionTemplatesPage, strconv.Itoa(p.Index-1)))
	}
	if p.HasNext {
		nav = append(nav, buttonArg("next_page", ActionTemplatesPage, strconv.Itoa(p.Index+1)))
	}
	return render.Layout(items, fixed, nav, 2)
}

func backToTemplatesRows() [][]render.Choice {
	return render.Column(button("back_to_templates", ActionBackToTemplates))
}

func reviewRows() [][]render.Choice {
	return render.Column(
		button("improve_prompt", ActionImprovePrompt),
		button("keep_my_prompt", ActionKeepPrompt),
		button("back_to_templates", ActionBackToTemplates),
	)
}

func resultRows() [][]render.Choice {
	return render.Column(
		button("try_again", ActionTryAgain),
		button("send_another_photo", ActionSendAnother),
		button("menu", ActionBackToMenu),
	)
}

func insufficientRows() [][]render.Choice {
	return render.Column(
		button("top_up_balance_button", ActionTopUp),
		button("main_menu_button", ActionBackToMenu),
	)
}
