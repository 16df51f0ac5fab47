package transform

import (
	"strings"
	"sync"

	"github.com/enescakir/emoji"
)

// Smileys maps classic punctuation smileys to glyphs. Unlike colon shortcodes they only match
// as whole words.
var Smileys = map[string]string{
	":)":  emoji.SlightlySmilingFace.String(),
	":-)": emoji.SlightlySmilingFace.String(),
	":(":  emoji.SlightlyFrowningFace.String(),
	":-(": emoji.SlightlyFrowningFace.String(),
	";)":  emoji.WinkingFace.String(),
	";-)": emoji.WinkingFace.String(),
	":D":  emoji.GrinningFaceWithBigEyes.String(),
	":-D": emoji.GrinningFaceWithBigEyes.String(),
	":P":  emoji.FaceWithTongue.String(),
	":-P": emoji.FaceWithTongue.String(),
	":p":  emoji.FaceWithTongue.String(),
	":'(": emoji.CryingFace.String(),
	":O":  emoji.FaceWithOpenMouth.String(),
	":o":  emoji.FaceWithOpenMouth.String(),
	":o)": emoji.ClownFace.String(),
	":*":  emoji.FaceBlowingAKiss.String(),
	"8-)": emoji.SmilingFaceWithSunglasses.String(),
	">:(": emoji.AngryFace.String(),
	"<3":  emoji.RedHeart.String(),
	"</3": emoji.BrokenHeart.String(),
}

type token struct {
	glyph  string
	smiley bool
}

// EmojiReplacer substitutes shortcodes and smileys with glyphs. At every position the
// longest known token wins. Fenced code blocks and inline code spans are left alone.
type EmojiReplacer struct {
	tokens map[string]token
	first  [256]bool
	minLen int
	maxLen int
}

// NewEmojiReplacer builds a replacer from colon shortcodes (":name:") and bare smileys.
// Shortcodes that are not delimited by colons or contain non-ASCII bytes or spaces are ignored.
func NewEmojiReplacer(shortcodes, smileys map[string]string) *EmojiReplacer {
	r := &EmojiReplacer{tokens: make(map[string]token, len(shortcodes)+len(smileys))}
	for code, glyph := range shortcodes {
		if !validShortcode(code) {
			continue
		}
		r.add(code, token{glyph: glyph})
	}
	for s, glyph := range smileys {
		if s == "" {
			continue
		}
		r.add(s, token{glyph: glyph, smiley: true})
	}
	return r
}

func (r *EmojiReplacer) add(code string, t token) {
	r.tokens[code] = t
	r.first[code[0]] = true
	if r.minLen == 0 || len(code) < r.minLen {
		r.minLen = len(code)
	}
	if len(code) > r.maxLen {
		r.maxLen = len(code)
	}
}

func validShortcode(code string) bool {
	if len(code) < 3 || code[0] != ':' || code[len(code)-1] != ':' {
		return false
	}
	for i := 1; i < len(code)-1; i++ {
		c := code[i]
		if c <= ' ' || c >= 0x7f || c == ':' {
			return false
		}
	}
	return true
}

var defaultEmoji = sync.OnceValue(func() *EmojiReplacer {
	return NewEmojiReplacer(emoji.Map(), Smileys)
})

// DefaultEmoji returns the replacer backed by the full shortcode table.
func DefaultEmoji() *EmojiReplacer {
	return defaultEmoji()
}

// Len returns the number of known tokens.
func (r *EmojiReplacer) Len() int {
	return len(r.tokens)
}

// Replace substitutes every known token in src.
func (r *EmojiReplacer) Replace(src string) string {
	if len(r.tokens) == 0 {
		return src
	}

	var out strings.Builder
	out.Grow(len(src))

	var fence fenceTracker
	start := 0
	for start <= len(src) {
		end := strings.IndexByte(src[start:], '\n')
		last := end < 0
		if last {
			end = len(src)
		} else {
			end += start
		}

		line := src[start:end]
		if fence.inFence(line) {
			out.WriteString(line)
		} else {
			r.replaceLine(&out, line)
		}
		if last {
			break
		}
		out.WriteByte('\n')
		start = end + 1
	}
	return out.String()
}

func (r *EmojiReplacer) replaceLine(out *strings.Builder, line string) {
	i := 0
	for i < len(line) {
		c := line[i]

		if c == '`' {
			n := backtickRun(line, i)
			if closeAt := closingRun(line, i+n, n); closeAt >= 0 {
				out.WriteString(line[i : closeAt+n])
				i = closeAt + n
				continue
			}
			out.WriteString(line[i : i+n])
			i += n
			continue
		}

		if r.first[c] {
			if code, t, ok := r.match(line, i); ok {
				out.WriteString(t.glyph)
				i += len(code)
				continue
			}
		}

		out.WriteByte(c)
		i++
	}
}

func (r *EmojiReplacer) match(line string, i int) (string, token, bool) {
	max := r.maxLen
	if rem := len(line) - i; rem < max {
		max = rem
	}
	for n := max; n >= r.minLen; n-- {
		code := line[i : i+n]
		t, ok := r.tokens[code]
		if !ok {
			continue
		}
		if t.smiley && !(leftBoundary(line, i) && rightBoundary(line, i+n)) {
			continue
		}
		return code, t, true
	}
	return "", token{}, false
}

func leftBoundary(line string, i int) bool {
	return i == 0 || line[i-1] == ' ' || line[i-1] == '\t'
}

func rightBoundary(line string, j int) bool {
	if j >= len(line) {
		return true
	}
	switch line[j] {
	case ' ', '\t', '\r', '.', ',', '!', '?', ';':
		return true
	}
	return false
}

func backtickRun(line string, i int) int {
	n := 0
	for i+n < len(line) && line[i+n] == '`' {
		n++
	}
	return n
}

// closingRun finds a backtick run of exactly n starting at or after from.
func closingRun(line string, from, n int) int {
	for j := from; j < len(line); {
		if line[j] != '`' {
			j++
			continue
		}
		m := backtickRun(line, j)
		if m == n {
			return j
		}
		j += m
	}
	return -1
}
