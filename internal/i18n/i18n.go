// Package i18n localizes the condition messages the API returns alongside its
// outcome codes (empty section, section loading, hint limit, and so on).
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator resolves message IDs against the embedded catalogs for one
// configured UI language. A nil Translator is usable and returns message IDs
// untranslated.
type Translator struct {
	loc *goi18n.Localizer
}

// New builds a Translator for the given language tag. All embedded locale
// files are loaded so a message missing from the requested language falls
// back to English.
func New(lang string) (*Translator, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := goi18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
	}

	return &Translator{loc: goi18n.NewLocalizer(bundle, lang, "en")}, nil
}

// T resolves a plain message.
func (t *Translator) T(msgID string) string {
	return t.localize(&goi18n.LocalizeConfig{MessageID: msgID})
}

// Td resolves a message with template data.
func (t *Translator) Td(msgID string, data map[string]any) string {
	return t.localize(&goi18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
}

// Tp resolves a pluralized message for a count.
func (t *Translator) Tp(msgID string, count int) string {
	return t.localize(&goi18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

func (t *Translator) localize(cfg *goi18n.LocalizeConfig) string {
	if t == nil || t.loc == nil {
		return cfg.MessageID
	}
	s, err := t.loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

type ctxKey struct{}

// NewContext attaches a translator to a context.
func NewContext(ctx context.Context, t *Translator) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the request's translator. A context without one yields
// a nil Translator, which resolves every message to its ID.
func FromContext(ctx context.Context) *Translator {
	t, _ := ctx.Value(ctxKey{}).(*Translator)
	return t
}

// Middleware attaches the translator to every request context.
func (t *Translator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), t)))
	})
}
