package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/markedit/internal/config"
	"github.com/debemdeboas/markedit/internal/outline"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/render"
	"github.com/debemdeboas/markedit/internal/transform"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	anchorStyle = lipgloss.NewStyle().Faint(true)
	levelStyles = []lipgloss.Style{
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

// main renders one markdown file through the preview pipeline and prints its outline or HTML.
func main() {
	rendererName := flag.String("renderer", config.RendererGoldmark, "markdown renderer: goldmark or classic")
	printHTML := flag.Bool("html", false, "print the rendered HTML fragment instead of the outline")
	plain := flag.Bool("plain", false, "disable callout and emoji transforms")
	flag.Parse()

	render.SetLogger(zerolog.New(os.Stderr).Level(zerolog.WarnLevel))

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: outline [-renderer name] [-html] [-plain] <file.md|->")
		os.Exit(2)
	}

	src, err := readSource(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	p, err := newPipeline(*rendererName, !*plain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	res, err := p.Run(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering: %v\n", err)
		os.Exit(1)
	}

	if *printHTML {
		fmt.Println(res.HTML)
		return
	}
	fmt.Print(formatOutline(flag.Arg(0), res.Outline))
}

func readSource(name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(name)
	return string(data), err
}

func newPipeline(rendererName string, transforms bool) (*preview.Pipeline, error) {
	r, err := render.New(rendererName, render.NewChromaHighlighter(config.DefaultDarkSyntaxTheme))
	if err != nil {
		return nil, err
	}
	t := transform.NewPipeline(transform.Options{Callouts: transforms, Emoji: transforms})
	return preview.NewPipeline(t, r, render.DefaultOptions()), nil
}

// formatOutline draws entries as a tree under a title line, one indent step per nesting depth.
func formatOutline(name string, entries []outline.Entry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(name))
	b.WriteString("\n")
	if len(entries) == 0 {
		b.WriteString(anchorStyle.Render("  (no headings)"))
		b.WriteString("\n")
		return b.String()
	}

	var walk func(nodes []*outline.Node, depth int)
	walk = func(nodes []*outline.Node, depth int) {
		for _, n := range nodes {
			style := levelStyles[min(max(n.Level, 1), len(levelStyles))-1]
			b.WriteString(strings.Repeat("  ", depth+1))
			b.WriteString(style.Render(n.Text))
			b.WriteString(" ")
			b.WriteString(anchorStyle.Render("#" + n.AnchorID))
			b.WriteString("\n")
			walk(n.Children, depth+1)
		}
	}
	walk(outline.Tree(entries), 0)
	return b.String()
}
