package render

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/debemdeboas/markedit/internal/transform"
)

type panicHighlighter struct{}

func (panicHighlighter) Highlight(code, language string) string {
	panic("boom")
}

type countingRenderer struct {
	calls atomic.Int32
}

func (c *countingRenderer) Render(src []byte, opts Options) ([]byte, error) {
	c.calls.Add(1)
	return []byte(fmt.Sprintf("<p>%s|%s</p>", src, opts.Key())), nil
}

type failingRenderer struct{}

func (failingRenderer) Render(src []byte, opts Options) ([]byte, error) {
	return nil, errors.New("parse failed")
}

func renderString(t *testing.T, r Renderer, src string, opts Options) string {
	t.Helper()
	out, err := r.Render([]byte(src), opts)
	if err != nil {
		t.Fatalf("Render(%q) returned error: %v", src, err)
	}
	return string(out)
}

func TestGoldmarkRender(t *testing.T) {
	r := NewGoldmark(NewChromaHighlighter("github"))

	tests := []struct {
		name     string
		markdown string
		opts     Options
		contains []string
		excludes []string
	}{
		{
			name:     "heading gets an id",
			markdown: "# Hello",
			opts:     DefaultOptions(),
			contains: []string{`<h1 id="hello">Hello</h1>`},
		},
		{
			name:     "duplicate headings are disambiguated",
			markdown: "## Intro\n\n## Intro",
			opts:     DefaultOptions(),
			contains: []string{`id="intro"`, `id="intro-1"`},
		},
		{
			name:     "soft breaks become br",
			markdown: "one\ntwo",
			opts:     DefaultOptions(),
			contains: []string{"<br"},
		},
		{
			name:     "soft breaks kept without breaks flag",
			markdown: "one\ntwo",
			opts:     Options{Sanitize: true},
			excludes: []string{"<br"},
		},
		{
			name:     "gfm strikethrough and table",
			markdown: "~~gone~~\n\n| a | b |\n|---|---|\n| 1 | 2 |",
			opts:     DefaultOptions(),
			contains: []string{"<del>gone</del>", "<table>", "<td>1</td>"},
		},
		{
			name:     "task list",
			markdown: "- [x] done\n- [ ] todo",
			opts:     DefaultOptions(),
			contains: []string{`type="checkbox"`, "done", "todo"},
		},
		{
			name:     "inline code keeps text",
			markdown: "use `:smile:` here",
			opts:     DefaultOptions(),
			contains: []string{"<code>:smile:</code>"},
		},
		{
			name:     "code block highlighted",
			markdown: "```go\nfunc main() {}\n```",
			opts:     DefaultOptions(),
			contains: []string{`class="highlight"`, "chroma"},
		},
		{
			name:     "highlight disabled",
			markdown: "```go\nfunc main() {}\n```",
			opts:     Options{Sanitize: true},
			contains: []string{`<pre><code class="language-go">func main() {}`},
			excludes: []string{"chroma"},
		},
		{
			name:     "scripts removed",
			markdown: "hi <script>alert(1)</script> <a href=\"javascript:alert(1)\">x</a>",
			opts:     DefaultOptions(),
			excludes: []string{"<script", "javascript:"},
		},
		{
			name:     "attached image survives sanitising",
			markdown: "![cat](/images/3f2b8c4e-1d9a-4e6b-9c1f-2a7d5e8b0c13/1740830400000.png)",
			opts:     DefaultOptions(),
			contains: []string{`src="/images/3f2b8c4e-1d9a-4e6b-9c1f-2a7d5e8b0c13/1740830400000.png"`, `alt="cat"`},
		},
		{
			name:     "unknown image scheme stripped",
			markdown: "![cat](app-images://images/x/1.png)",
			opts:     DefaultOptions(),
			excludes: []string{"app-images:"},
		},
		{
			name:     "unsanitised output keeps raw html",
			markdown: "<span onclick=\"x()\">raw</span>",
			opts:     Options{},
			contains: []string{`onclick="x()"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderString(t, r, tt.markdown, tt.opts)
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("Expected output to contain %q, got %q", want, out)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(out, unwanted) {
					t.Errorf("Expected output not to contain %q, got %q", unwanted, out)
				}
			}
		})
	}
}

func TestGoldmarkRenderCallout(t *testing.T) {
	r := NewGoldmark(NewChromaHighlighter("github"))
	src := transform.NewPipeline(transform.DefaultOptions()).Apply("> [!TIP]\n> use **this**")

	out := renderString(t, r, src, DefaultOptions())

	if !strings.Contains(out, `data-callout="TIP"`) {
		t.Errorf("Expected TIP container, got %q", out)
	}
	if !strings.Contains(out, "<strong>this</strong>") {
		t.Errorf("Expected callout body to be parsed as markdown, got %q", out)
	}
	if strings.Contains(out, "<blockquote>") {
		t.Errorf("Expected no blockquote, got %q", out)
	}
}

func TestRenderFallsBackWhenHighlighterPanics(t *testing.T) {
	renderers := map[string]Renderer{
		"goldmark": NewGoldmark(panicHighlighter{}),
		"classic":  NewClassic(panicHighlighter{}),
	}

	for name, r := range renderers {
		t.Run(name, func(t *testing.T) {
			out, err := r.Render([]byte("# T\n\n```go\nx := 1\n```"), DefaultOptions())
			if err != nil {
				t.Fatalf("Render() error = %v, want nil", err)
			}
			if !strings.Contains(string(out), `<pre><code class="language-go">x := 1`) {
				t.Errorf("Expected plain code fallback, got %q", out)
			}
			if !strings.Contains(string(out), "<h1") {
				t.Errorf("Expected rest of document rendered, got %q", out)
			}
		})
	}
}

type panicRenderer struct{}

func (panicRenderer) Render(src []byte, opts Options) ([]byte, error) {
	return protect("panic", func() ([]byte, error) {
		panic("parser exploded")
	})
}

func TestRenderRecoversParserPanics(t *testing.T) {
	out, err := panicRenderer{}.Render([]byte("x"), DefaultOptions())
	if !errors.Is(err, ErrRenderPanic) {
		t.Fatalf("Expected ErrRenderPanic, got %v", err)
	}
	if out != nil {
		t.Errorf("Expected no output, got %q", out)
	}
}

func TestClassicRender(t *testing.T) {
	r := NewClassic(NewChromaHighlighter("github"))

	out := renderString(t, r, "# Title\n\n```python\nprint(1)\n```\n\n~~x~~", DefaultOptions())

	if !strings.Contains(out, `id="title"`) {
		t.Errorf("Expected heading id, got %q", out)
	}
	if !strings.Contains(out, "chroma") {
		t.Errorf("Expected highlighted code, got %q", out)
	}
	if !strings.Contains(out, "<del>x</del>") {
		t.Errorf("Expected strikethrough, got %q", out)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"goldmark", "*render.Goldmark", false},
		{"", "*render.Goldmark", false},
		{"classic", "*render.Classic", false},
		{"pandoc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.name, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error for unknown renderer")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := fmt.Sprintf("%T", r); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCached(t *testing.T) {
	t.Run("Hit skips the renderer", func(t *testing.T) {
		next := &countingRenderer{}
		c := NewCached(next, 10)

		first, _ := c.Render([]byte("# a"), DefaultOptions())
		second, _ := c.Render([]byte("# a"), DefaultOptions())

		if next.calls.Load() != 1 {
			t.Errorf("Expected 1 underlying render, got %d", next.calls.Load())
		}
		if string(first) != string(second) {
			t.Errorf("Expected identical output, got %q and %q", first, second)
		}
	})

	t.Run("Options are part of the key", func(t *testing.T) {
		next := &countingRenderer{}
		c := NewCached(next, 10)

		c.Render([]byte("# a"), DefaultOptions())
		c.Render([]byte("# a"), Options{})

		if next.calls.Load() != 2 {
			t.Errorf("Expected 2 underlying renders, got %d", next.calls.Load())
		}
	})

	t.Run("Errors are not cached", func(t *testing.T) {
		c := NewCached(failingRenderer{}, 10)
		if _, err := c.Render([]byte("x"), DefaultOptions()); err == nil {
			t.Error("Expected error to propagate")
		}
		if c.Len() != 0 {
			t.Errorf("Expected empty cache, got %d entries", c.Len())
		}
	})

	t.Run("Bounded", func(t *testing.T) {
		c := NewCached(&countingRenderer{}, 3)
		for i := 0; i < 10; i++ {
			c.Render([]byte(fmt.Sprintf("doc %d", i)), DefaultOptions())
		}
		if c.Len() != 3 {
			t.Errorf("Expected 3 cached renders, got %d", c.Len())
		}
	})

	t.Run("Concurrent renders", func(t *testing.T) {
		next := &countingRenderer{}
		c := NewCached(next, 100)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					c.Render([]byte(fmt.Sprintf("doc %d", j)), DefaultOptions())
				}
			}()
		}
		wg.Wait()

		if next.calls.Load() != 10 {
			t.Errorf("Expected each document rendered once, got %d renders", next.calls.Load())
		}
	})
}

func BenchmarkGoldmarkRender(b *testing.B) {
	r := NewGoldmark(NewChromaHighlighter("github"))
	src := []byte("# Title\n\nSome *text* with `code`.\n\n```go\nfunc main() {}\n```\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Render(src, DefaultOptions())
	}
}

func BenchmarkCachedRender(b *testing.B) {
	c := NewCached(NewGoldmark(NewChromaHighlighter("github")), 10)
	src := []byte("# Title\n\nSome *text* with `code`.\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Render(src, DefaultOptions())
	}
}
