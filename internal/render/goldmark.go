package render

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Goldmark renders CommonMark with the GFM extensions and automatic heading ids.
type Goldmark struct {
	highlighter Highlighter
	engines     sync.Map // Options -> goldmark.Markdown
}

func NewGoldmark(h Highlighter) *Goldmark {
	return &Goldmark{highlighter: h}
}

func (g *Goldmark) engine(opts Options) goldmark.Markdown {
	key := Options{Breaks: opts.Breaks, Highlight: opts.Highlight}
	if md, ok := g.engines.Load(key); ok {
		return md.(goldmark.Markdown)
	}

	var h Highlighter = plainHighlighter{}
	if opts.Highlight && g.highlighter != nil {
		h = g.highlighter
	}

	rendererOpts := []renderer.Option{
		html.WithUnsafe(),
		renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{highlighter: h}, 100)),
	}
	if opts.Breaks {
		rendererOpts = append(rendererOpts, html.WithHardWraps())
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(rendererOpts...),
	)
	actual, _ := g.engines.LoadOrStore(key, md)
	return actual.(goldmark.Markdown)
}

func (g *Goldmark) Render(src []byte, opts Options) ([]byte, error) {
	return protect("goldmark", func() ([]byte, error) {
		var buf bytes.Buffer
		if err := g.engine(opts).Convert(src, &buf); err != nil {
			return nil, err
		}
		return finish(buf.Bytes(), opts), nil
	})
}

// codeBlockRenderer sends fenced and indented code blocks through the highlighter.
type codeBlockRenderer struct {
	highlighter Highlighter
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	var language string
	if l := n.Language(source); l != nil {
		language = string(l)
	}
	_, _ = w.WriteString(highlightBlock(r.highlighter, blockText(n, source), language))
	_ = w.WriteByte('\n')
	return ast.WalkSkipChildren, nil
}

func (r *codeBlockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(highlightBlock(r.highlighter, blockText(node, source), ""))
	_ = w.WriteByte('\n')
	return ast.WalkSkipChildren, nil
}

func blockText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}
