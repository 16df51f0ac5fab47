package preview

import (
	"fmt"

	"github.com/debemdeboas/markedit/internal/outline"
	"github.com/debemdeboas/markedit/internal/render"
	"github.com/debemdeboas/markedit/internal/transform"
)

// Result is everything a preview refresh produces.
type Result struct {
	HTML    string          `json:"html"`
	Outline []outline.Entry `json:"outline"`
}

// Pipeline is source text in, preview out: transforms, markdown rendering, then the outline
// pass which also stamps heading anchors.
type Pipeline struct {
	transform *transform.Pipeline
	renderer  render.Renderer
	opts      render.Options
}

func NewPipeline(t *transform.Pipeline, r render.Renderer, opts render.Options) *Pipeline {
	return &Pipeline{transform: t, renderer: r, opts: opts}
}

func (p *Pipeline) Run(src string) (Result, error) {
	text := p.transform.Apply(src)

	html, err := p.renderer.Render([]byte(text), p.opts)
	if err != nil {
		return Result{}, fmt.Errorf("render: %w", err)
	}

	entries, html, err := outline.Build(html)
	if err != nil {
		return Result{}, fmt.Errorf("outline: %w", err)
	}
	if entries == nil {
		entries = []outline.Entry{}
	}

	return Result{HTML: string(html), Outline: entries}, nil
}
