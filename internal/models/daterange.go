package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts YYYY-MM-DD or RFC3339 and returns the UTC-midnight day.
func ParseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return Day(t), nil
}

// DateRange is a half-open [Start, End) interval of whole days.
// Adjacent ranges [a,b) and [b,c) do not overlap.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalizes both bounds to UTC midnight.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Valid reports whether Start is strictly before End.
func (r DateRange) Valid() bool {
	return r.Start.Before(r.End)
}

// Nights is the number of whole days covered by the range.
func (r DateRange) Nights() int {
	if !r.Valid() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Intersects uses half-open semantics: a.start < b.end && b.start < a.end.
func (r DateRange) Intersects(o DateRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Contains reports whether o lies entirely inside r.
func (r DateRange) Contains(o DateRange) bool {
	return !o.Start.Before(r.Start) && !o.End.After(r.End)
}

// ContainsDay reports whether the day of t falls inside r.
func (r DateRange) ContainsDay(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.Start) && d.Before(r.End)
}

// Adjacent reports whether the ranges touch without overlapping.
func (r DateRange) Adjacent(o DateRange) bool {
	return r.End.Equal(o.Start) || o.End.Equal(r.Start)
}

// Equal compares bounds at day granularity.
func (r DateRange) Equal(o DateRange) bool {
	return Day(r.Start).Equal(Day(o.Start)) && Day(r.End).Equal(Day(o.End))
}

// Subtract returns what is left of r after removing o: zero, one or two ranges,
// in ascending order.
func (r DateRange) Subtract(o DateRange) []DateRange {
	if !r.Intersects(o) {
		return []DateRange{r}
	}
	var out []DateRange
	if r.Start.Before(o.Start) {
		out = append(out, DateRange{Start: r.Start, End: o.Start})
	}
	if o.End.Before(r.End) {
		out = append(out, DateRange{Start: o.End, End: r.End})
	}
	return out
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{
		Start: r.Start.Format(DateLayout),
		End:   r.End.Format(DateLayout),
	})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := ParseDay(raw.Start)
	if err != nil {
		return err
	}
	end, err := ParseDay(raw.End)
	if err != nil {
		return err
	}
	r.Start, r.End = start, end
	return nil
}
