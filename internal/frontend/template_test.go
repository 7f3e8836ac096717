package frontend

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/fairscan/internal/security"
)

func TestLoadIndexTemplateInjectsNoncePlaceholders(t *testing.T) {
	distFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte(
			`<html><head><link rel="stylesheet" href="/app.css"></head>` +
				`<body><script src="/app.js"></script></body></html>`,
		)},
	}

	tmpl, err := LoadIndexTemplate(distFS)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	require.NoError(t, RenderIndex(c, tmpl, "test-nonce-value"))

	body := w.Body.String()
	assert.Contains(t, body, `<script nonce="test-nonce-value" src="/app.js">`)
	assert.Contains(t, body, `<link nonce="test-nonce-value" rel="stylesheet" href="/app.css">`)
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
}

func TestLoadIndexTemplateMissingIndex(t *testing.T) {
	_, err := LoadIndexTemplate(fstest.MapFS{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.html")
}

func TestEmbeddedIndexLoads(t *testing.T) {
	distFS, err := GetDistFS()
	require.NoError(t, err)

	tmpl, err := LoadIndexTemplate(distFS)
	require.NoError(t, err)
	assert.NotNil(t, tmpl)
}

func TestSPAHandlerFallsBackToIndex(t *testing.T) {
	distFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte(`<html><body><script>app()</script></body></html>`)},
		"app.css":    &fstest.MapFile{Data: []byte(`body {}`)},
	}

	tmpl, err := LoadIndexTemplate(distFS)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(security.CSPMiddleware())
	r.NoRoute(NewSPAHandler(distFS, tmpl))

	// A client-side route falls back to the rendered index
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/history/abc123", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<script nonce=")

	// A real file is served as-is
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/app.css", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "body {}")
}
