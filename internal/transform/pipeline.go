// Package transform rewrites raw editor text into parser-ready markdown.
package transform

import "strings"

// Options selects which rewrites run.
type Options struct {
	Callouts bool
	Emoji    bool
}

func DefaultOptions() Options {
	return Options{Callouts: true, Emoji: true}
}

// Pipeline rewrites legacy image links, then applies callout rewriting and emoji substitution.
type Pipeline struct {
	opts  Options
	emoji *EmojiReplacer
}

func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{opts: opts, emoji: DefaultEmoji()}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Apply runs the enabled rewrites over src. Callouts change block structure and run first.
func (p *Pipeline) Apply(src string) string {
	out := strings.ReplaceAll(src, "\r\n", "\n")
	out = RewriteImageLinks(out)
	if p.opts.Callouts {
		out = RewriteCallouts(out)
	}
	if p.opts.Emoji && p.emoji != nil {
		out = p.emoji.Replace(out)
	}
	return out
}
