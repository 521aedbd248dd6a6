// Package viewport implements pan, zoom and pin-to-end over a candle series.
package viewport

import (
	"math"
	"sort"

	"cryptoterm/internal/fetcher"
	"cryptoterm/internal/models"
)

var visibleDayBase = []int{1, 2, 3, 5, 7, 14, 30, 60, 90, 180, 365, 730, 1825, 3650, 7300}

type drag struct {
	active     bool
	startX     float64
	startEnd   int
	startCount int
}

// Controller holds the viewport state for one series. It is not safe for
// concurrent use.
type Controller struct {
	barsPerDay  int
	fetchLimit  int
	total       int
	visibleDays int
	end         int
	pinned      bool
	drag        drag
}

// New returns a controller pinned to the end showing visibleDays.
func New(tf models.Timeframe, fetchLimit, visibleDays int) *Controller {
	c := &Controller{pinned: true, visibleDays: max(1, visibleDays)}
	c.Configure(tf, fetchLimit)
	return c
}

// Configure updates the timeframe and request limit the series was fetched with.
func (c *Controller) Configure(tf models.Timeframe, fetchLimit int) {
	c.barsPerDay = fetcher.BarsPerDay(tf)
	c.fetchLimit = max(1, fetchLimit)
	c.clampVisibleDays()
}

// SetTotal records a new series length. A pinned view follows the end;
// otherwise the end is kept inside the series.
func (c *Controller) SetTotal(n int) {
	c.total = max(0, n)
	if c.pinned {
		c.end = c.total
	} else {
		c.end = clamp(c.end, 0, c.total)
	}
	c.clampVisibleDays()
}

// SliderMaxDays is the widest zoom the loaded data can fill.
func (c *Controller) SliderMaxDays() int {
	maxBars := c.fetchLimit
	if c.total > 0 {
		maxBars = min(c.fetchLimit, c.total)
	}
	days := max(1, maxBars/c.barsPerDay)
	return clamp(days, 1, fetcher.MaxHistoryDays)
}

// VisibleDayOptions lists the zoom stops, including SliderMaxDays.
func (c *Controller) VisibleDayOptions() []int {
	limit := c.SliderMaxDays()
	opts := make([]int, 0, len(visibleDayBase)+1)
	found := false
	for _, d := range visibleDayBase {
		if d <= limit {
			opts = append(opts, d)
			found = found || d == limit
		}
	}
	if !found {
		opts = append(opts, limit)
	}
	sort.Ints(opts)
	return opts
}

// VisibleDays returns the current zoom in days.
func (c *Controller) VisibleDays() int { return c.visibleDays }

// SetVisibleDays zooms to days, clamped to [1, SliderMaxDays].
func (c *Controller) SetVisibleDays(days int) {
	c.visibleDays = clamp(days, 1, c.SliderMaxDays())
}

// VisibleCount is the number of bars the zoom level covers.
func (c *Controller) VisibleCount() int {
	bars := c.visibleDays * c.barsPerDay
	if c.total == 0 {
		return max(1, bars)
	}
	return max(1, min(bars, c.total))
}

// Pinned reports whether the view follows the newest bar.
func (c *Controller) Pinned() bool { return c.pinned }

// PanStart begins a drag at x and unpins the view.
func (c *Controller) PanStart(x float64) {
	end := c.end
	if end == 0 {
		end = c.total
	}
	c.drag = drag{
		active:     true,
		startX:     x,
		startEnd:   clamp(end, 0, c.total),
		startCount: max(1, c.VisibleCount()),
	}
	c.pinned = false
}

// PanMove shifts the view by the bars x has moved since PanStart, for a chart
// width pixels wide. Dragging right reveals older bars.
func (c *Controller) PanMove(x, width float64) {
	if !c.drag.active {
		return
	}
	pxPerBar := 1.0
	if width > 0 {
		pxPerBar = width / float64(c.drag.startCount)
	}
	delta := int(math.Round((x - c.drag.startX) / pxPerBar))
	next := clamp(c.drag.startEnd-delta, c.drag.startCount, c.total)
	c.end = next
	c.pinned = next >= c.total
}

// PanEnd finishes the drag. A drag released at the newest bar pins the view.
func (c *Controller) PanEnd() {
	if !c.drag.active {
		return
	}
	c.drag.active = false
	c.pinned = c.end == 0 || c.end >= c.total
}

// Zoom steps one visible-day option in dir: negative zooms in, positive out.
func (c *Controller) Zoom(dir int) {
	switch {
	case dir < 0:
		dir = -1
	case dir > 0:
		dir = 1
	default:
		return
	}
	next := stepOption(c.VisibleDayOptions(), c.visibleDays, dir)
	if next != c.visibleDays {
		c.SetVisibleDays(next)
	}
}

// Reset pins the view to the newest bar.
func (c *Controller) Reset() {
	c.pinned = true
	c.end = c.total
	c.drag.active = false
}

// Window returns the visible bar range [start, end).
func (c *Controller) Window() (start, end int) {
	if c.total == 0 {
		return 0, 0
	}
	count := c.VisibleCount()
	end = c.end
	if end == 0 {
		end = c.total
	}
	end = clamp(end, count, c.total)
	return max(0, end-count), end
}

// State returns the presentation view of the controller.
func (c *Controller) State() models.Viewport {
	start, end := c.Window()
	return models.Viewport{
		VisibleBarCount:   end - start,
		StartIndex:        start,
		EndIndex:          end,
		PinnedToEnd:       c.pinned,
		VisibleDays:       c.visibleDays,
		SliderMaxDays:     c.SliderMaxDays(),
		VisibleDayOptions: c.VisibleDayOptions(),
	}
}

func (c *Controller) clampVisibleDays() {
	if limit := c.SliderMaxDays(); c.visibleDays > limit {
		c.visibleDays = limit
	}
	if c.visibleDays < 1 {
		c.visibleDays = 1
	}
}

// stepOption moves one slot from current, starting at the nearest option when
// current is not listed.
func stepOption(opts []int, current, dir int) int {
	if len(opts) == 0 {
		return current
	}
	idx := -1
	for i, v := range opts {
		if v == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		best := math.MaxInt
		for i, v := range opts {
			dist := v - current
			if dist < 0 {
				dist = -dist
			}
			if dist < best {
				best = dist
				idx = i
			}
		}
	}
	return opts[clamp(idx+dir, 0, len(opts)-1)]
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
