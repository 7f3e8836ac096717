package frontend

import (
	"embed"
	"io/fs"
)

// The demo page is compiled into the binary so the service ships as a
// single artifact with no asset directory to deploy alongside it.
//
//go:embed dist
var distFS embed.FS

// GetDistFS returns the embedded demo page filesystem rooted at dist/
func GetDistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}
