// Package i18n serves the storefront's message catalogs.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

// Bundle holds one flattened catalog per language.
type Bundle struct {
	dict     map[string]map[string]string
	fallback string
	tags     []language.Tag
	names    []string
	matcher  language.Matcher
}

// Load reads the embedded catalogs for supported. The fallback catalog must exist; other
// missing catalogs are skipped.
func Load(fallback string, supported []string) (*Bundle, error) {
	return LoadFS(embedded, "locales", fallback, supported)
}

// LoadFS reads <dir>/<lang>.yaml catalogs from fsys.
func LoadFS(fsys fs.FS, dir, fallback string, supported []string) (*Bundle, error) {
	fallback = strings.ToLower(strings.TrimSpace(fallback))
	if len(supported) == 0 {
		supported = []string{fallback}
	}
	b := &Bundle{dict: map[string]map[string]string{}, fallback: fallback}

	// The fallback goes first so the matcher returns it when nothing matches.
	ordered := []string{fallback}
	for _, l := range supported {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" && l != fallback {
			ordered = append(ordered, l)
		}
	}

	for _, l := range ordered {
		raw, err := fs.ReadFile(fsys, path.Join(dir, l+".yaml"))
		if err != nil {
			if l == fallback {
				return nil, fmt.Errorf("i18n: load locale %s: %w", l, err)
			}
			continue
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("i18n: parse locale %s: %w", l, err)
		}
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("i18n: locale %s: %w", l, err)
		}
		flat := map[string]string{}
		flatten("", tree, flat)
		b.dict[l] = flat
		b.tags = append(b.tags, tag)
		b.names = append(b.names, l)
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

// Supported returns the loaded languages in sorted order.
func (b *Bundle) Supported() []string {
	out := append([]string(nil), b.names...)
	sort.Strings(out)
	return out
}

// Fallback returns the configured fallback language.
func (b *Bundle) Fallback() string { return b.fallback }

// T returns the message for key in lang, falling back to the default language and finally to key.
func (b *Bundle) T(lang, key string) string {
	if m, ok := b.dict[lang]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := b.dict[b.fallback][key]; ok {
		return v
	}
	return key
}

// Has reports whether key exists in the fallback catalog.
func (b *Bundle) Has(key string) bool {
	_, ok := b.dict[b.fallback][key]
	return ok
}

// Resolve picks the best loaded language for an Accept-Language header value or a single
// language tag.
func (b *Bundle) Resolve(acceptLang string) string {
	prefs, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(prefs) == 0 {
		return b.fallback
	}
	_, idx, conf := b.matcher.Match(prefs...)
	if conf == language.No || idx < 0 || idx >= len(b.names) {
		return b.fallback
	}
	return b.names[idx]
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
