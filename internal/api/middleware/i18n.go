package middleware

import (
	"fmt"

	"facegate/internal/core/session"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Kontextschlüssel für die gewählte Sprache
const LanguageKey = "language"

// Nachrichten-IDs der Statuszeile
const (
	msgCollecting = "status.collecting"
	msgPass       = "status.pass"
	msgFail       = "status.fail"
	msgAborted    = "status.aborted"
	msgStopped    = "status.stopped"
)

var catalogs = map[language.Tag][]*i18n.Message{
	language.English: {
		{ID: msgCollecting, Other: "capturing: {{.Collected}}/{{.Required}}"},
		{ID: msgPass, Other: "verified"},
		{ID: msgFail, Other: "not verified"},
		{ID: msgAborted, Other: "aborted"},
		{ID: msgStopped, Other: "stopped"},
	},
	language.German: {
		{ID: msgCollecting, Other: "Aufnahme: {{.Collected}}/{{.Required}}"},
		{ID: msgPass, Other: "verifiziert"},
		{ID: msgFail, Other: "nicht verifiziert"},
		{ID: msgAborted, Other: "abgebrochen"},
		{ID: msgStopped, Other: "gestoppt"},
	},
	language.Chinese: {
		{ID: msgCollecting, Other: "采集中: {{.Collected}}/{{.Required}}"},
		{ID: msgPass, Other: "已验证"},
		{ID: msgFail, Other: "未验证"},
		{ID: msgAborted, Other: "已中止"},
		{ID: msgStopped, Other: "已停止"},
	},
}

// Translator hält die Übersetzungsfunktionalität
type Translator struct {
	bundle          *i18n.Bundle
	localizer       map[string]*i18n.Localizer
	defaultLanguage string
}

// NewTranslator erstellt einen Übersetzer mit den eingebauten Katalogen (en, de, zh)
func NewTranslator(defaultLanguage string) (*Translator, error) {
	bundle := i18n.NewBundle(language.English)

	t := &Translator{
		bundle:    bundle,
		localizer: make(map[string]*i18n.Localizer),
	}
	for tag, messages := range catalogs {
		if err := bundle.AddMessages(tag, messages...); err != nil {
			return nil, fmt.Errorf("failed to add %s messages: %w", tag, err)
		}
		base, _ := tag.Base()
		t.localizer[base.String()] = i18n.NewLocalizer(bundle, tag.String())
	}

	if _, ok := t.localizer[defaultLanguage]; !ok {
		if defaultLanguage != "" {
			log.Warnf("Unsupported default language %q, falling back to en", defaultLanguage)
		}
		defaultLanguage = "en"
	}
	t.defaultLanguage = defaultLanguage
	return t, nil
}

// DefaultLanguage liefert die Sprache, die ohne Auswahl verwendet wird
func (t *Translator) DefaultLanguage() string {
	return t.defaultLanguage
}

// Supports meldet, ob für lang ein Katalog existiert
func (t *Translator) Supports(lang string) bool {
	_, ok := t.localizer[lang]
	return ok
}

// Resolve wählt eine unterstützte Sprache; Accept-Language-Listen wie
// "de-CH,de;q=0.9" werden dabei berücksichtigt.
func (t *Translator) Resolve(lang string) string {
	if t.Supports(lang) {
		return lang
	}
	tags, _, err := language.ParseAcceptLanguage(lang)
	if err == nil {
		for _, tag := range tags {
			base, _ := tag.Base()
			if t.Supports(base.String()) {
				return base.String()
			}
		}
	}
	return t.defaultLanguage
}

// StatusText übersetzt die Statuszeile eines Frames
func (t *Translator) StatusText(lang string, st session.Status) string {
	var id string
	switch st.Kind {
	case session.StatusCollecting, session.StatusCompleted:
		id = msgCollecting
	case session.StatusPass:
		id = msgPass
	case session.StatusFail:
		id = msgFail
	case session.StatusAborted:
		id = msgAborted
	case session.StatusStopped:
		id = msgStopped
	default:
		return ""
	}

	loc, ok := t.localizer[t.Resolve(lang)]
	if !ok {
		return st.Text()
	}
	text, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID: id,
		TemplateData: map[string]int{
			"Collected": st.Collected,
			"Required":  st.Required,
		},
	})
	if err != nil {
		log.Debugf("Missing translation %s for %s: %v", id, lang, err)
		return st.Text()
	}
	return text
}

// I18n erstellt eine Middleware, die die Sprache aus ?lang= oder der Session
// übernimmt und im Kontext ablegt
func I18n(t *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		lang := c.Query("lang")

		// Wenn ein gültiger Sprachparameter vorliegt, diesen in der Session speichern
		if lang != "" && t.Supports(lang) {
			sess.Set(LanguageKey, lang)
			if err := sess.Save(); err != nil {
				log.Warnf("Failed to store language in session: %v", err)
			}
		} else if stored, ok := sess.Get(LanguageKey).(string); ok && t.Supports(stored) {
			lang = stored
		} else {
			lang = t.Resolve(c.GetHeader("Accept-Language"))
		}

		c.Set(LanguageKey, lang)
		c.Next()
	}
}

// Language liefert die von I18n gewählte Sprache
func Language(c *gin.Context) string {
	return c.GetString(LanguageKey)
}
