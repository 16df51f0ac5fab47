package transform

import (
	"html"
	"regexp"
	"strings"
)

// CalloutKinds lists the recognised admonition kinds.
var CalloutKinds = []string{"NOTE", "TIP", "IMPORTANT", "WARNING", "CAUTION"}

var (
	calloutMarker  = regexp.MustCompile(`^ {0,3}> ?\[!([A-Za-z]+)\](?:[ \t]+(.*?))?[ \t]*$`)
	trailingMarker = regexp.MustCompile(`^(.*\S)[ \t]+> ?\[!([A-Za-z]+)\][ \t]*$`)
	quoteLine      = regexp.MustCompile(`^ {0,3}>`)
)

func calloutKind(s string) (string, bool) {
	k := strings.ToUpper(s)
	for _, known := range CalloutKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// RewriteCallouts turns blockquotes whose first line is a [!KIND] marker into callout
// containers. Unknown kinds and fenced code are left untouched.
//
// A marker may also close a line of ordinary text ("intro > [!TIP]"); the text before it
// is kept as its own paragraph.
func RewriteCallouts(src string) string {
	if !strings.Contains(src, "[!") {
		return src
	}

	lines := strings.Split(src, "\n")
	var out strings.Builder
	out.Grow(len(src) + 128)

	// quoteFence follows fences opened inside a blockquote; inQuote is whether the previous
	// line was a quote line, in which case a marker is mid-quote and not a callout.
	var fence, quoteFence fenceTracker
	inQuote := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		last := i == len(lines)-1

		if fence.inFence(line) {
			writeLine(&out, line, last)
			inQuote = false
			continue
		}

		isQuote := quoteLine.MatchString(line)
		if !isQuote {
			quoteFence = fenceTracker{}
		} else if quoteFence.inFence(stripQuote(line)) {
			writeLine(&out, line, last)
			inQuote = true
			continue
		}

		kind, title, prefix, ok := matchMarker(line)
		if !ok || inQuote {
			writeLine(&out, line, last)
			inQuote = isQuote
			continue
		}

		var body []string
		for i+1 < len(lines) && quoteLine.MatchString(lines[i+1]) {
			i++
			body = append(body, stripQuote(lines[i]))
		}
		inQuote = len(body) > 0 || isQuote

		if prefix != "" {
			out.WriteString(prefix)
			out.WriteString("\n\n")
		}
		writeCallout(&out, kind, title, body)
	}
	return out.String()
}

func matchMarker(line string) (kind, title, prefix string, ok bool) {
	if m := calloutMarker.FindStringSubmatch(line); m != nil {
		if k, known := calloutKind(m[1]); known {
			return k, m[2], "", true
		}
		return "", "", "", false
	}
	if m := trailingMarker.FindStringSubmatch(line); m != nil {
		if quoteLine.MatchString(m[1]) {
			return "", "", "", false
		}
		if k, known := calloutKind(m[2]); known {
			return k, "", m[1], true
		}
	}
	return "", "", "", false
}

func stripQuote(line string) string {
	idx := strings.IndexByte(line, '>')
	rest := line[idx+1:]
	if strings.HasPrefix(rest, " ") {
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "\t") {
		rest = "  " + rest[1:]
	}
	return rest
}

func writeCallout(out *strings.Builder, kind, title string, body []string) {
	if title == "" {
		title = kind[:1] + strings.ToLower(kind[1:])
	}
	lower := strings.ToLower(kind)

	out.WriteString(`<div class="callout callout-`)
	out.WriteString(lower)
	out.WriteString(`" data-callout="`)
	out.WriteString(kind)
	out.WriteString("\">\n")
	out.WriteString(`<p class="callout-title">`)
	out.WriteString(html.EscapeString(title))
	out.WriteString("</p>\n\n")

	inner := strings.TrimRight(RewriteCallouts(strings.Join(body, "\n")), "\n")
	if strings.TrimSpace(inner) != "" {
		out.WriteString(inner)
		out.WriteString("\n\n")
	}
	out.WriteString("</div>\n\n")
}

func writeLine(out *strings.Builder, line string, last bool) {
	out.WriteString(line)
	if !last {
		out.WriteByte('\n')
	}
}
