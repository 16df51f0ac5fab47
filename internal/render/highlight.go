package render

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/debemdeboas/markedit/internal/theme"
)

// Highlighter renders a code block to HTML. It never fails: on any error it returns the code
// escaped inside a plain pre block.
type Highlighter interface {
	Highlight(code, language string) string
}

// ChromaHighlighter highlights with chroma lexers and the class-based formatter, so colours
// come from the syntax theme stylesheet.
type ChromaHighlighter struct {
	style string
}

func NewChromaHighlighter(style string) *ChromaHighlighter {
	return &ChromaHighlighter{style: style}
}

func (h *ChromaHighlighter) Highlight(code, language string) (out string) {
	language = normalizeLanguage(language)

	defer func() {
		if r := recover(); r != nil {
			renderLogger.Warn().Str("language", language).Interface("panic", r).Msg("Highlighter panicked, falling back to plain code")
			out = PlainCode(code, language)
		}
	}()

	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		renderLogger.Warn().Err(err).Str("language", language).Msg("Failed to tokenise code block")
		return PlainCode(code, language)
	}

	var buf strings.Builder
	if err := theme.Formatter().Format(&buf, styles.Get(h.style), iterator); err != nil {
		renderLogger.Warn().Err(err).Str("language", language).Msg("Failed to format code block")
		return PlainCode(code, language)
	}

	return `<div class="highlight">` + buf.String() + `</div>`
}

// PlainCode is the unhighlighted rendition of a code block.
func PlainCode(code, language string) string {
	var b strings.Builder
	b.WriteString("<pre><code")
	if language != "" {
		b.WriteString(` class="language-`)
		b.WriteString(html.EscapeString(language))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(html.EscapeString(code))
	b.WriteString("</code></pre>")
	return b.String()
}

// normalizeLanguage keeps the first word of a fence info string.
func normalizeLanguage(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(fields[0]), ".")
}

// highlightBlock runs h on a single block and falls back to plain code if it panics, so one
// bad block never fails the whole render.
func highlightBlock(h Highlighter, code, language string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			renderLogger.Warn().Str("language", language).Interface("panic", r).Msg("Highlighter panicked, falling back to plain code")
			out = PlainCode(code, normalizeLanguage(language))
		}
	}()
	return h.Highlight(code, language)
}

type plainHighlighter struct{}

func (plainHighlighter) Highlight(code, language string) string {
	return PlainCode(code, normalizeLanguage(language))
}
