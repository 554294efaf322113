// Package texts resolves user-facing strings from the embedded locale bundles.
package texts

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fallback is used when a language or key is missing.
const Fallback = "ru"

//go:embed locales/*.yaml
var bundles embed.FS

// Resolver holds every loaded bundle keyed by language code.
type Resolver struct {
	bundles map[string]map[string]string
}

// Load reads every embedded locales/<lang>.yaml bundle.
func Load() (*Resolver, error) {
	entries, err := bundles.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	r := &Resolver{bundles: make(map[string]map[string]string, len(entries))}
	for _, e := range entries {
		lang := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := bundles.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", lang, err)
		}
		var m map[string]string
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", lang, err)
		}
		r.bundles[lang] = m
	}
	if _, ok := r.bundles[Fallback]; !ok {
		return nil, fmt.Errorf("fallback locale %q missing", Fallback)
	}
	return r, nil
}

// MustLoad is Load for program start-up.
func MustLoad() *Resolver {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Text returns key in lang with {param} placeholders substituted. Missing
// keys fall back to the ru bundle and then to the key itself.
func (r *Resolver) Text(lang, key string, params map[string]string) string {
	s, ok := r.bundles[lang][key]
	if !ok {
		s, ok = r.bundles[Fallback][key]
	}
	if !ok {
		s = key
	}
	if len(params) == 0 {
		return s
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Has reports whether lang defines key without falling back.
func (r *Resolver) Has(lang, key string) bool {
	_, ok := r.bundles[lang][key]
	return ok
}

// Languages lists the loaded language codes in order.
func (r *Resolver) Languages() []string {
	out := make([]string, 0, len(r.bundles))
	for lang := range r.bundles {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Keys lists the keys of lang in order.
func (r *Resolver) Keys(lang string) []string {
	out := make([]string, 0, len(r.bundles[lang]))
	for k := range r.bundles[lang] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
