package preview

import "slices"

// DefaultThresholds are the visible fractions at which a heading counts as intersecting.
var DefaultThresholds = []float64{0, 0.25, 0.5, 0.75, 1}

// Box is a heading's vertical extent in preview content coordinates.
type Box struct {
	AnchorID string  `json:"anchorId"`
	Text     string  `json:"text"`
	Top      float64 `json:"top"`
	Bottom   float64 `json:"bottom"`

	// Visible is the highest threshold the heading crossed when it became active; zero when it
	// is active only because it is the last heading above the viewport.
	Visible float64 `json:"visible,omitempty"`
}

// HeadingTracker picks the heading to show as "current" for a preview viewport.
type HeadingTracker struct {
	thresholds []float64
	boxes      []Box
	active     Box
}

func NewHeadingTracker(thresholds ...float64) *HeadingTracker {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	t := slices.Clone(thresholds)
	slices.Sort(t)
	return &HeadingTracker{thresholds: t}
}

// Reset replaces the tracked headings. A re-render produces new heading nodes, so the active
// heading is forgotten too.
func (h *HeadingTracker) Reset(boxes []Box) {
	h.boxes = slices.Clone(boxes)
	slices.SortStableFunc(h.boxes, func(a, b Box) int {
		switch {
		case a.Top < b.Top:
			return -1
		case a.Top > b.Top:
			return 1
		}
		return 0
	})
	h.active = Box{}
}

func (h *HeadingTracker) Active() Box {
	return h.active
}

// crossed returns the highest threshold met by the share of b inside [top, bottom).
func (h *HeadingTracker) crossed(b Box, top, bottom float64) (float64, bool) {
	height := b.Bottom - b.Top
	if height <= 0 {
		if b.Top >= top && b.Top < bottom {
			return h.thresholds[len(h.thresholds)-1], true
		}
		return 0, false
	}
	overlap := min(b.Bottom, bottom) - max(b.Top, top)
	if overlap <= 0 {
		return 0, false
	}

	ratio := overlap / height
	level, ok := 0.0, false
	for _, t := range h.thresholds {
		if ratio < t {
			break
		}
		level, ok = t, true
	}
	return level, ok
}

// Update recomputes the active heading for a viewport starting at viewTop. It returns the
// topmost intersecting heading, else the last heading above the viewport, else none, and
// whether that differs from the previous answer.
func (h *HeadingTracker) Update(viewTop, viewHeight float64) (Box, bool) {
	bottom := viewTop + viewHeight

	var next Box
	found := false
	for _, b := range h.boxes {
		if level, ok := h.crossed(b, viewTop, bottom); ok {
			next, found = b, true
			next.Visible = level
			break
		}
	}
	if !found {
		for _, b := range h.boxes {
			if b.Top >= viewTop {
				break
			}
			next = b
		}
		next.Visible = 0
	}

	changed := next.AnchorID != h.active.AnchorID
	h.active = next
	return next, changed
}
