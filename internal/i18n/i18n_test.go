package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func newTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := New("en")
	require.NoError(t, err)
	return tr
}

func TestNegotiate(t *testing.T) {
	tr := newTranslator(t)

	tests := []struct {
		header string
		want   language.Tag
	}{
		{"", English},
		{"es-MX,es;q=0.9,en;q=0.5", Spanish},
		{"fr-CA", French},
		{"de", German},
		{"ja-JP", English},
		{"garbage;;q=", English},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Negotiate(tt.header))
		})
	}
}

func TestSprintf(t *testing.T) {
	tr := newTranslator(t)
	assert.Equal(t, "Resource not found", tr.Sprintf(English, ErrNotFound))
	assert.Equal(t, "Recurso no encontrado", tr.Sprintf(Spanish, ErrNotFound))
	assert.Equal(t, "ana hat Sie erwähnt", tr.Sprintf(German, NotifyMentionTitle, "ana"))
}

func TestEveryKeyHasAllLocales(t *testing.T) {
	for key, byLang := range messages {
		for _, tag := range Supported {
			assert.NotEmpty(t, byLang[tag], "%s missing %s", key, tag)
		}
	}
}

func TestTFallsBackWithoutPrinter(t *testing.T) {
	tr := newTranslator(t)
	assert.Equal(t, "Authentication required", tr.T(context.Background(), ErrUnauthorized))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tr := newTranslator(t)

	r := gin.New()
	r.Use(tr.Middleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, tr.T(c.Request.Context(), ErrForbidden))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "fr")
	r.ServeHTTP(w, req)
	assert.Equal(t, "Vous n'avez pas la permission d'effectuer cette action", w.Body.String())
	assert.Equal(t, "fr", w.Header().Get("Content-Language"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/?lang=es", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, "No tienes permiso para realizar esta acción", w.Body.String())
}
