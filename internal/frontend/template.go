package frontend

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// The embedded page is static HTML, but the CSP nonce changes per request.
// At load time every script and stylesheet tag gets a {{.Nonce}} placeholder
// so the page can be re-rendered cheaply with the request's nonce.
var (
	scriptTagRegex = regexp.MustCompile(`<script([^>]*)>`)
	styleTagRegex  = regexp.MustCompile(`<link([^>]*rel=["']stylesheet["'][^>]*)>`)
)

// LoadIndexTemplate reads index.html from the embedded filesystem and
// prepares it as a nonce-aware template
func LoadIndexTemplate(distFS fs.FS) (*template.Template, error) {
	indexFile, err := distFS.Open("index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to open index.html: %w", err)
	}
	defer indexFile.Close()

	htmlContent, err := io.ReadAll(indexFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read index.html: %w", err)
	}

	page := injectNoncePlaceholders(string(htmlContent))

	tmpl, err := template.New("index").Parse(page)
	if err != nil {
		return nil, fmt.Errorf("failed to parse demo page template: %w", err)
	}

	return tmpl, nil
}

func injectNoncePlaceholders(html string) string {
	html = scriptTagRegex.ReplaceAllString(html, `<script nonce="{{.Nonce}}"$1>`)
	html = styleTagRegex.ReplaceAllString(html, `<link nonce="{{.Nonce}}"$1>`)
	return html
}

// RenderIndex writes the demo page with the request's CSP nonce filled in.
// The response is uncacheable: a cached copy would carry a stale nonce.
func RenderIndex(c *gin.Context, tmpl *template.Template, nonce string) error {
	var buf bytes.Buffer

	if err := tmpl.Execute(&buf, map[string]interface{}{"Nonce": nonce}); err != nil {
		return fmt.Errorf("failed to execute demo page template: %w", err)
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")

	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	return nil
}
