// Package render turns transformed markdown into sanitised HTML fragments.
package render

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"

	"github.com/debemdeboas/markedit/internal/config"
)

// ErrRenderPanic wraps a panic raised while parsing or rendering.
var ErrRenderPanic = errors.New("markdown renderer panicked")

// Options controls a single render.
type Options struct {
	// Breaks turns soft line breaks into <br>.
	Breaks    bool
	Highlight bool
	Sanitize  bool
}

func DefaultOptions() Options {
	return Options{Breaks: true, Highlight: true, Sanitize: true}
}

// Key fingerprints the options for caching.
func (o Options) Key() string {
	return strconv.FormatBool(o.Breaks) + "," + strconv.FormatBool(o.Highlight) + "," + strconv.FormatBool(o.Sanitize)
}

// Renderer converts markdown to an HTML fragment. Implementations never panic; a failing parse
// is reported as an error and the caller keeps its previous output.
type Renderer interface {
	Render(src []byte, opts Options) ([]byte, error)
}

// New returns the renderer registered under name.
func New(name string, h Highlighter) (Renderer, error) {
	switch name {
	case config.RendererGoldmark, "":
		return NewGoldmark(h), nil
	case config.RendererClassic:
		return NewClassic(h), nil
	default:
		return nil, fmt.Errorf("unknown markdown renderer %q", name)
	}
}

// protect runs fn and converts a panic into ErrRenderPanic.
func protect(name string, fn func() ([]byte, error)) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			renderLogger.Error().
				Str("renderer", name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from renderer panic")
			out, err = nil, fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()
	return fn()
}

// finish applies the post-render steps shared by every backend.
func finish(out []byte, opts Options) []byte {
	if opts.Sanitize {
		return DefaultSanitizer().Sanitize(out)
	}
	return out
}
