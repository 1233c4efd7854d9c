// Package web embeds the HTML templates and static assets served by
// the HTTP layer.
package web

import "embed"

//go:embed templates/*.html static/*
var FS embed.FS
