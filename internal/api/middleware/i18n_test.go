package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"facegate/internal/core/session"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusText(t *testing.T) {
	tr, err := NewTranslator("en")
	require.NoError(t, err)

	collecting := session.Status{Kind: session.StatusCollecting, Collected: 3, Required: 20}
	tests := []struct {
		lang   string
		status session.Status
		want   string
	}{
		{"en", collecting, "capturing: 3/20"},
		{"de", collecting, "Aufnahme: 3/20"},
		{"zh", collecting, "采集中: 3/20"},
		{"de", session.Status{Kind: session.StatusPass}, "verifiziert"},
		{"zh", session.Status{Kind: session.StatusFail}, "未验证"},
		{"fr", session.Status{Kind: session.StatusFail}, "not verified"},
		{"en", session.Status{Kind: session.StatusPending}, ""},
		{"de-CH,de;q=0.9", session.Status{Kind: session.StatusAborted}, "abgebrochen"},
	}

	for _, tt := range tests {
		t.Run(tt.lang+"/"+string(tt.status.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tr.StatusText(tt.lang, tt.status))
		})
	}
}

func TestUnsupportedDefaultLanguage(t *testing.T) {
	tr, err := NewTranslator("xx")
	require.NoError(t, err)
	assert.Equal(t, "en", tr.DefaultLanguage())
	assert.True(t, tr.Supports("zh"))
	assert.False(t, tr.Supports("xx"))
}

func TestI18nMiddlewareRemembersLanguage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tr, err := NewTranslator("en")
	require.NoError(t, err)

	r := gin.New()
	r.Use(sessions.Sessions("facegate", cookie.NewStore([]byte("secret"))))
	r.Use(I18n(tr))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Language(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?lang=de", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "de", w.Body.String())
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "de", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.8")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "zh", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?lang=xx", nil))
	assert.Equal(t, "en", w.Body.String())
}
