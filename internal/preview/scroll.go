// Package preview keeps the rendered pane in step with the source pane: proportional scroll
// sync in both directions, active heading tracking, and the render pipeline feeding them.
package preview

import (
	"fmt"
	"math"
	"time"
)

type Pane string

const (
	Source  Pane = "source"
	Preview Pane = "preview"
)

func (p Pane) Other() Pane {
	if p == Source {
		return Preview
	}
	return Source
}

func ParsePane(s string) (Pane, error) {
	switch Pane(s) {
	case Source, Preview:
		return Pane(s), nil
	}
	return "", fmt.Errorf("unknown pane %q", s)
}

// Metrics describes one scrollable pane.
type Metrics struct {
	ScrollTop      float64 `json:"scrollTop"`
	ScrollHeight   float64 `json:"scrollHeight"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// MaxScroll is the largest valid ScrollTop, never negative.
func (m Metrics) MaxScroll() float64 {
	return math.Max(0, m.ScrollHeight-m.ViewportHeight)
}

// Ratio is how far through its scroll range the pane is, in [0, 1]. A pane that cannot scroll
// is at 0.
func (m Metrics) Ratio() float64 {
	max := m.MaxScroll()
	if max <= 0 || math.IsNaN(m.ScrollTop) {
		return 0
	}
	return clamp(m.ScrollTop/max, 0, 1)
}

// OffsetFor maps ratio onto this pane's scroll range.
func (m Metrics) OffsetFor(ratio float64) float64 {
	if math.IsNaN(ratio) {
		ratio = 0
	}
	return clamp(ratio, 0, 1) * m.MaxScroll()
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// ScrollSync mirrors one pane's scroll onto the other. Applying an offset makes the target pane
// emit its own scroll event; that echo is ignored until the cooldown has passed.
type ScrollSync struct {
	cooldown time.Duration
	now      func() time.Time

	muted      Pane
	mutedUntil time.Time
}

func NewScrollSync(cooldown time.Duration, now func() time.Time) *ScrollSync {
	return &ScrollSync{cooldown: cooldown, now: now}
}

// OnScroll handles a scroll of pane from and returns the offset to apply to the other pane.
// ok is false when the event is an echo of a sync this ScrollSync just performed.
func (s *ScrollSync) OnScroll(from Pane, src, dst Metrics) (offset float64, ok bool) {
	now := s.now()
	if from == s.muted && now.Before(s.mutedUntil) {
		return 0, false
	}

	s.muted = from.Other()
	s.mutedUntil = now.Add(s.cooldown)
	return dst.OffsetFor(src.Ratio()), true
}

// Reset forgets any active cooldown.
func (s *ScrollSync) Reset() {
	s.muted = ""
	s.mutedUntil = time.Time{}
}
