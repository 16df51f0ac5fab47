package preview

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

var ErrUnknownFormat = errors.New("unknown export format")

const (
	FormatMarkdown = "md"
	FormatText     = "txt"
	FormatHTML     = "html"
)

// Exported is a document rendered to a downloadable file.
type Exported struct {
	Filename    string
	ContentType string
	Body        []byte
}

var exportTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 800px; margin: 40px auto; padding: 20px; line-height: 1.6; }
    pre { background: #f6f8fa; padding: 12px; overflow-x: auto; }
    .callout { border-left: 4px solid #888; padding: 4px 12px; margin: 12px 0; }
  </style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Export renders title and content in format. Markdown and text are the raw source; HTML is
// a standalone page around the preview fragment.
func (p *Pipeline) Export(title, content, format string) (Exported, error) {
	name := exportName(title)

	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case FormatMarkdown, "":
		return Exported{Filename: name + ".md", ContentType: "text/markdown; charset=utf-8", Body: []byte(content)}, nil
	case FormatText:
		return Exported{Filename: name + ".txt", ContentType: "text/plain; charset=utf-8", Body: []byte(content)}, nil
	case FormatHTML:
		res, err := p.Run(content)
		if err != nil {
			return Exported{}, err
		}
		var buf bytes.Buffer
		err = exportTemplate.Execute(&buf, struct {
			Title string
			Body  template.HTML
		}{Title: name, Body: template.HTML(res.HTML)})
		if err != nil {
			return Exported{}, fmt.Errorf("export template: %w", err)
		}
		return Exported{Filename: name + ".html", ContentType: "text/html; charset=utf-8", Body: buf.Bytes()}, nil
	}
	return Exported{}, fmt.Errorf("%w %q", ErrUnknownFormat, format)
}

// exportName turns a title into a file name stem, "document" when nothing usable is left.
func exportName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, ". ")
	if name == "" {
		return "document"
	}
	return name
}
