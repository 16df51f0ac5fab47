package config

const (
	HCType        = "Content-Type"
	HETag         = "ETag"
	HCacheControl = "Cache-Control"
	HConnection   = "Connection"

	CTypeCSS         = "text/css"
	CTypeJSON        = "application/json"
	CTypeEventStream = "text/event-stream"
)

const (
	CookieTheme       = "theme"
	CookieSyntaxTheme = "syntax-theme"
)
