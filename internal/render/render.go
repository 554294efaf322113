// Package render describes outbound messages independently of the transport.
// The engine produces Requests; the bot adapter resolves their texts and
// turns choices into inline keyboards.
package render

// Action is what a choice triggers when pressed.
type Action struct {
	Name string
	Arg  string
}

// Encode returns the callback payload form "name" or "name:arg".
func (a Action) Encode() string {
	if a.Arg == "" {
		return a.Name
	}
	return a.Name + ":" + a.Arg
}

// Choice is one button. Label wins over LabelKey when both are set.
type Choice struct {
	Label    string
	LabelKey string
	Action   Action
}

// Text is one paragraph of a message, either a bundle key with params or a literal.
// ParamKeys are params whose values are bundle keys resolved in the same language.
type Text struct {
	Key       string
	Literal   string
	Params    map[string]string
	ParamKeys map[string]string
}

// WithParamKey returns t with param name bound to the text of key.
func (t Text) WithParamKey(name, key string) Text {
	keys := make(map[string]string, len(t.ParamKeys)+1)
	for k, v := range t.ParamKeys {
		keys[k] = v
	}
	keys[name] = key
	t.ParamKeys = keys
	return t
}

// Key builds a bundle text.
func Key(key string, params ...string) Text {
	t := Text{Key: key}
	if len(params) > 1 {
		t.Params = make(map[string]string, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			t.Params[params[i]] = params[i+1]
		}
	}
	return t
}

// Literal builds a text shown verbatim.
func Literal(s string) Text { return Text{Literal: s} }

// Request is one outbound message.
type Request struct {
	UserID int64
	Lang   string
	Texts  []Text
	Rows   [][]Choice
	// Photo is a transport file reference sent as a photo with the texts as caption.
	Photo string
	// Edit asks the adapter to replace the message that carried the pressed button.
	Edit bool
}

// Column puts every choice on its own row.
func Column(choices ...Choice) [][]Choice {
	rows := make([][]Choice, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, []Choice{c})
	}
	return rows
}

// Grid splits choices into rows of up to n.
func Grid(choices []Choice, n int) [][]Choice {
	if n <= 1 {
		return Column(choices...)
	}
	var rows [][]Choice
	for i := 0; i < len(choices); i += n {
		rows = append(rows, choices[i:min(i+n, len(choices))])
	}
	return rows
}

// Layout renders list keyboards: items one per row, then fixed choices
// fixedPerRow to a row, then nav as a single row when present.
func Layout(items, fixed, nav []Choice, fixedPerRow int) [][]Choice {
	rows := Column(items...)
	if len(fixed) > 0 {
		if fixedPerRow <= 0 {
			fixedPerRow = len(fixed)
		}
		rows = append(rows, Grid(fixed, fixedPerRow)...)
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return rows
}
