// Package theme picks the UI and code themes a request renders with and builds the stylesheet
// for each code theme.
package theme

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/debemdeboas/markedit/internal/cache"
	"github.com/debemdeboas/markedit/internal/config"
	"github.com/debemdeboas/markedit/internal/routes"
)

var ErrUnknownSyntaxTheme = errors.New("unknown syntax theme")

// Selection is the pair of themes one request renders with.
type Selection struct {
	UI     string `json:"ui"`
	Syntax string `json:"syntax"`
}

// Resolve picks the request's themes. The syntax theme comes from the ?syntax query, then the
// syntax cookie, then the UI theme's default. Values that name no known theme are skipped.
func Resolve(r *http.Request) Selection {
	sel := Selection{UI: config.AppConfig.Theme.Default}
	if c, err := r.Cookie(config.CookieTheme); err == nil && IsUITheme(c.Value) {
		sel.UI = c.Value
	}

	sel.Syntax = SyntaxDefault(sel.UI)
	if c, err := r.Cookie(config.CookieSyntaxTheme); err == nil && IsSyntaxTheme(c.Value) {
		sel.Syntax = c.Value
	}
	if q := r.URL.Query().Get("syntax"); IsSyntaxTheme(q) {
		sel.Syntax = q
	}
	return sel
}

// Validate reports whether both halves of the selection name known themes.
func (s Selection) Validate() error {
	if !IsUITheme(s.UI) {
		return fmt.Errorf("unknown UI theme %q", s.UI)
	}
	if !IsSyntaxTheme(s.Syntax) {
		return fmt.Errorf("%w: %q", ErrUnknownSyntaxTheme, s.Syntax)
	}
	return nil
}

// Stylesheet is the path serving the selection's code theme.
func (s Selection) Stylesheet() string {
	return strings.Replace(routes.SyntaxThemeGet, "{theme}", url.PathEscape(s.Syntax), 1)
}

// Remember stores the selection in the cookies Resolve reads.
func (s Selection) Remember(w http.ResponseWriter) {
	for name, value := range map[string]string{
		config.CookieTheme:       s.UI,
		config.CookieSyntaxTheme: s.Syntax,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   365 * 24 * 60 * 60,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func IsUITheme(name string) bool {
	return name == config.LightTheme || name == config.DarkTheme
}

// SyntaxDefault maps a UI theme to its configured syntax theme; anything but light gets the
// dark one.
func SyntaxDefault(ui string) string {
	if ui == config.LightTheme {
		return config.AppConfig.Theme.SyntaxHighlighting.DefaultLight
	}
	return config.AppConfig.Theme.SyntaxHighlighting.DefaultDark
}

// SyntaxThemes lists the registered chroma styles by name.
func SyntaxThemes() []string {
	names := styles.Names()
	slices.Sort(names)
	return names
}

func IsSyntaxTheme(name string) bool {
	_, ok := styles.Registry[name]
	return ok
}

// Formatter is the class-based formatter shared by the highlighter and Stylesheet, so
// highlighted blocks pick their colours up from whichever stylesheet the page links.
func Formatter() *html.Formatter {
	return html.New(
		html.WithClasses(true),
		html.TabWidth(4),
		html.WithLineNumbers(false),
		html.WrapLongLines(true),
	)
}

// StylesheetCSS returns the CSS for a registered chroma style, building it once per name.
func StylesheetCSS(name string) (template.CSS, error) {
	if !IsSyntaxTheme(name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownSyntaxTheme, name)
	}
	if css, ok := cache.GetSyntaxCSS(name); ok {
		return css, nil
	}

	css, err := buildCSS(styles.Get(name))
	if err != nil {
		return "", fmt.Errorf("building %q stylesheet: %w", name, err)
	}
	cache.SetSyntaxCSS(name, css)
	return css, nil
}

func buildCSS(style *chroma.Style) (template.CSS, error) {
	var b strings.Builder
	// Styles without a text colour would leave code unreadable on a light background.
	if bg := style.Get(chroma.Background); !bg.Colour.IsSet() && luminance(bg.Background) > 0.5 {
		b.WriteString(".chroma { color: #181818; }\n")
	}
	if err := Formatter().WriteCSS(&b, style); err != nil {
		return "", err
	}
	return template.CSS(b.String()), nil
}

// luminance is the perceived brightness of c in [0, 1].
func luminance(c chroma.Colour) float64 {
	return (0.299*float64(c.Red()) + 0.587*float64(c.Green()) + 0.114*float64(c.Blue())) / 255
}
