package render

import (
	"fmt"
	"io"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Classic renders with gomarkdown. Raw HTML blocks are passed through whole, so markdown
// inside a callout container is not parsed by this backend.
type Classic struct {
	highlighter Highlighter
}

func NewClassic(h Highlighter) *Classic {
	return &Classic{highlighter: h}
}

func (c *Classic) Render(src []byte, opts Options) ([]byte, error) {
	return protect("classic", func() ([]byte, error) {
		md := markdown.NormalizeNewlines(src)

		var h Highlighter = plainHighlighter{}
		if opts.Highlight && c.highlighter != nil {
			h = c.highlighter
		}

		htmlOpts := md_html.RendererOptions{
			Flags: md_html.CommonFlags | md_html.HrefTargetBlank | md_html.FootnoteReturnLinks,
			RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
				if code, ok := node.(*ast.CodeBlock); ok && entering {
					var lang string
					if info := code.Info; info != nil {
						lang = string(info)
					}
					fmt.Fprint(w, highlightBlock(h, string(code.Literal), lang))
					return ast.GoToNext, true
				}
				return ast.GoToNext, false
			},
		}

		extensions := parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough |
			parser.SpaceHeadings | parser.HeadingIDs | parser.AutoHeadingIDs | parser.Footnotes |
			parser.NoIntraEmphasis | parser.DefinitionLists | parser.BackslashLineBreak
		if opts.Breaks {
			extensions |= parser.HardLineBreak
		}

		doc := parser.NewWithExtensions(extensions).Parse(md)
		out := markdown.Render(doc, md_html.NewRenderer(htmlOpts))
		return finish(out, opts), nil
	})
}
