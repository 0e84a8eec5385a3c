// Package availability maintains the per-property set of definitely-free windows.
package availability

import (
	"sort"

	"staybook/internal/models"
)

// Calendar is an ordered set of pairwise disjoint, non-adjacent windows.
// Because a property may have several units, a window means "at least one unit
// is guaranteed free"; admission is decided by counting overlaps, not here.
type Calendar struct {
	windows []models.DateRange
}

// New builds a calendar from arbitrary windows, normalizing them.
func New(windows ...models.DateRange) *Calendar {
	c := &Calendar{}
	c.Merge(windows...)
	return c
}

// Windows returns a copy of the windows in ascending order.
func (c *Calendar) Windows() []models.DateRange {
	out := make([]models.DateRange, len(c.windows))
	copy(out, c.windows)
	return out
}

func (c *Calendar) Len() int { return len(c.windows) }

// Subtract removes r from every window, splitting or trimming as needed.
func (c *Calendar) Subtract(r models.DateRange) {
	r = models.NewDateRange(r.Start, r.End)
	if !r.Valid() {
		return
	}
	out := make([]models.DateRange, 0, len(c.windows)+1)
	for _, w := range c.windows {
		out = append(out, w.Subtract(r)...)
	}
	c.windows = out
}

// Restore puts r back, merging it with every overlapping or adjacent window.
func (c *Calendar) Restore(r models.DateRange) {
	c.Merge(r)
}

// Merge inserts windows and coalesces the whole set.
func (c *Calendar) Merge(windows ...models.DateRange) {
	all := make([]models.DateRange, 0, len(c.windows)+len(windows))
	all = append(all, c.windows...)
	for _, w := range windows {
		w = models.NewDateRange(w.Start, w.End)
		if w.Valid() {
			all = append(all, w)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Start.Equal(all[j].Start) {
			return all[i].End.Before(all[j].End)
		}
		return all[i].Start.Before(all[j].Start)
	})

	merged := make([]models.DateRange, 0, len(all))
	for _, w := range all {
		if n := len(merged); n > 0 && !w.Start.After(merged[n-1].End) {
			if w.End.After(merged[n-1].End) {
				merged[n-1].End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	c.windows = merged
}

// Covers reports whether r lies entirely inside a single free window.
func (c *Calendar) Covers(r models.DateRange) bool {
	for _, w := range c.windows {
		if w.Contains(r) {
			return true
		}
	}
	return false
}

// Equal compares two calendars window by window.
func (c *Calendar) Equal(o *Calendar) bool {
	if len(c.windows) != len(o.windows) {
		return false
	}
	for i := range c.windows {
		if !c.windows[i].Equal(o.windows[i]) {
			return false
		}
	}
	return true
}
