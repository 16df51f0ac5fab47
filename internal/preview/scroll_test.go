package preview

import (
	"math"
	"testing"
	"time"
)

func TestPaneOther(t *testing.T) {
	if Source.Other() != Preview || Preview.Other() != Source {
		t.Error("Other() is not symmetric")
	}
	if _, err := ParsePane("sidebar"); err == nil {
		t.Error("ParsePane(sidebar) should fail")
	}
	if p, err := ParsePane("preview"); err != nil || p != Preview {
		t.Errorf("ParsePane(preview) = %v, %v", p, err)
	}
}

func TestMetrics(t *testing.T) {
	tests := []struct {
		name      string
		m         Metrics
		wantMax   float64
		wantRatio float64
	}{
		{"middle", Metrics{ScrollTop: 250, ScrollHeight: 1000, ViewportHeight: 500}, 500, 0.5},
		{"top", Metrics{ScrollTop: 0, ScrollHeight: 1000, ViewportHeight: 500}, 500, 0},
		{"bottom", Metrics{ScrollTop: 500, ScrollHeight: 1000, ViewportHeight: 500}, 500, 1},
		{"overscroll", Metrics{ScrollTop: 900, ScrollHeight: 1000, ViewportHeight: 500}, 500, 1},
		{"negative bounce", Metrics{ScrollTop: -40, ScrollHeight: 1000, ViewportHeight: 500}, 500, 0},
		{"cannot scroll", Metrics{ScrollTop: 10, ScrollHeight: 300, ViewportHeight: 500}, 0, 0},
		{"exactly fits", Metrics{ScrollTop: 0, ScrollHeight: 500, ViewportHeight: 500}, 0, 0},
		{"nan", Metrics{ScrollTop: math.NaN(), ScrollHeight: 1000, ViewportHeight: 500}, 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.MaxScroll(); got != tt.wantMax {
				t.Errorf("MaxScroll() = %v, want %v", got, tt.wantMax)
			}
			if got := tt.m.Ratio(); got != tt.wantRatio {
				t.Errorf("Ratio() = %v, want %v", got, tt.wantRatio)
			}
		})
	}
}

func TestOffsetForIsBounded(t *testing.T) {
	panes := []Metrics{
		{ScrollHeight: 2000, ViewportHeight: 400},
		{ScrollHeight: 100, ViewportHeight: 400},
		{ScrollHeight: 0, ViewportHeight: 0},
	}
	ratios := []float64{-1, 0, 0.1, 0.5, 0.999, 1, 2, math.NaN(), math.Inf(1)}

	for _, m := range panes {
		for _, r := range ratios {
			off := m.OffsetFor(r)
			if off < 0 || off > m.MaxScroll() || math.IsNaN(off) {
				t.Errorf("OffsetFor(%v) on %+v = %v, outside [0, %v]", r, m, off, m.MaxScroll())
			}
		}
	}
}

func TestScrollSync(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewScrollSync(100*time.Millisecond, clock)

	src := Metrics{ScrollTop: 500, ScrollHeight: 2000, ViewportHeight: 1000}
	dst := Metrics{ScrollTop: 0, ScrollHeight: 5000, ViewportHeight: 1000}

	off, ok := s.OnScroll(Source, src, dst)
	if !ok || off != 2000 {
		t.Fatalf("OnScroll(source) = %v, %v; want 2000, true", off, ok)
	}

	// The preview reports the scroll we just applied: an echo.
	echo := Metrics{ScrollTop: 2000, ScrollHeight: 5000, ViewportHeight: 1000}
	if _, ok := s.OnScroll(Preview, echo, src); ok {
		t.Error("echo from preview within cooldown was not suppressed")
	}

	// The source pane itself keeps syncing during the cooldown.
	now = now.Add(10 * time.Millisecond)
	src.ScrollTop = 1000
	if off, ok := s.OnScroll(Source, src, dst); !ok || off != 4000 {
		t.Errorf("OnScroll(source) during cooldown = %v, %v; want 4000, true", off, ok)
	}

	// After the cooldown the preview may lead again.
	now = now.Add(200 * time.Millisecond)
	if off, ok := s.OnScroll(Preview, Metrics{ScrollTop: 0, ScrollHeight: 5000, ViewportHeight: 1000}, src); !ok || off != 0 {
		t.Errorf("OnScroll(preview) after cooldown = %v, %v; want 0, true", off, ok)
	}
}

func TestScrollSyncNoPingPong(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScrollSync(100*time.Millisecond, func() time.Time { return now })

	panes := map[Pane]Metrics{
		Source:  {ScrollTop: 300, ScrollHeight: 1300, ViewportHeight: 300},
		Preview: {ScrollTop: 0, ScrollHeight: 3300, ViewportHeight: 300},
	}

	// Simulate the UI: every applied offset triggers a scroll event on the target pane.
	from := Source
	applied := 0
	for i := 0; i < 10; i++ {
		to := from.Other()
		off, ok := s.OnScroll(from, panes[from], panes[to])
		if !ok {
			break
		}
		applied++
		m := panes[to]
		m.ScrollTop = off
		panes[to] = m
		from = to
	}

	if applied != 1 {
		t.Errorf("applied %d syncs, want 1", applied)
	}

	s.Reset()
	if _, ok := s.OnScroll(Preview, panes[Preview], panes[Source]); !ok {
		t.Error("Reset() did not clear the cooldown")
	}
}
