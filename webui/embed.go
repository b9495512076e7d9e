// Package webui exposes the embedded dashboard page.
// It lives at the module root so go:embed can reach the sibling web/ directory;
// internal/server/embed.go serves it.
package webui

import "embed"

// FS holds web/index.html, web/app.js and web/style.css.
//
//go:embed web
var FS embed.FS
