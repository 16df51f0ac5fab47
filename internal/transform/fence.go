package transform

import "strings"

// fenceTracker follows fenced code blocks line by line.
type fenceTracker struct {
	open bool
	char byte
	size int
}

// fenceRun returns the fence character and run length opening line, if any.
func fenceRun(line string) (byte, int, string) {
	indent := 0
	for indent < len(line) && indent < 4 && line[indent] == ' ' {
		indent++
	}
	if indent > 3 || indent >= len(line) {
		return 0, 0, ""
	}
	c := line[indent]
	if c != '`' && c != '~' {
		return 0, 0, ""
	}
	n := 0
	for indent+n < len(line) && line[indent+n] == c {
		n++
	}
	if n < 3 {
		return 0, 0, ""
	}
	return c, n, line[indent+n:]
}

// inFence consumes one line and reports whether it is part of a fenced block, fences included.
func (f *fenceTracker) inFence(line string) bool {
	c, n, rest := fenceRun(line)
	if !f.open {
		if n == 0 || (c == '`' && strings.ContainsRune(rest, '`')) {
			return false
		}
		f.open, f.char, f.size = true, c, n
		return true
	}
	if n > 0 && c == f.char && n >= f.size && strings.TrimSpace(rest) == "" {
		f.open = false
	}
	return true
}
