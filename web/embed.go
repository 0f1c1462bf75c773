// Package web holds the HTML templates of the catalog pages.
package web

import "embed"

//go:embed templates/*.html
var FS embed.FS
