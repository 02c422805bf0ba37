// Package i18n renders console messages in the caller's language. Formatters
// are created per request and passed to the code that needs them.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Formatter renders a message by id with template data.
type Formatter interface {
	Message(id string, data map[string]any) string
	Locale() string
}

// Catalog holds the loaded message files.
type Catalog struct {
	bundle  *goi18n.Bundle
	matcher language.Matcher
}

// NewCatalog loads the embedded English and Japanese catalogs.
func NewCatalog() (*Catalog, error) {
	return NewCatalogFS(localeFS, "locales")
}

// NewCatalogFS loads every *.yaml message file in dir of fsys. English is the
// fallback language.
func NewCatalogFS(fsys fs.FS, dir string) (*Catalog, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.Glob(fsys, dir+"/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("i18n: listing message files: %w", err)
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(fsys, f); err != nil {
			return nil, fmt.Errorf("i18n: loading %s: %w", f, err)
		}
	}

	return &Catalog{
		bundle:  bundle,
		matcher: language.NewMatcher(bundle.LanguageTags()),
	}, nil
}

// Languages returns the languages with a loaded catalog.
func (c *Catalog) Languages() []string {
	tags := c.bundle.LanguageTags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

// Formatter returns a formatter for the best match of the given language
// preferences, each either a tag ("ja") or an Accept-Language header value.
func (c *Catalog) Formatter(prefs ...string) Formatter {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	tag, _, _ := c.matcher.Match(tags...)
	base, _ := tag.Base()

	return &localizedFormatter{
		localizer: goi18n.NewLocalizer(c.bundle, base.String()),
		locale:    base.String(),
	}
}

type localizedFormatter struct {
	localizer *goi18n.Localizer
	locale    string
}

// Message renders id. Unknown ids render as the id itself.
func (f *localizedFormatter) Message(id string, data map[string]any) string {
	msg, err := f.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil || msg == "" {
		return id
	}
	return msg
}

func (f *localizedFormatter) Locale() string {
	return f.locale
}

// Static is a Formatter backed by a fixed map, for tests and tools.
type Static map[string]string

// Message returns the mapped text, or id when unmapped. Template data is not
// applied.
func (s Static) Message(id string, _ map[string]any) string {
	if m, ok := s[id]; ok {
		return m
	}
	return id
}

// Locale returns "und".
func (s Static) Locale() string {
	return "und"
}
