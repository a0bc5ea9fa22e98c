package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Window is a rolling trailing interval anchored on the computation time.
type Window struct {
	Label  string        `json:"label"`
	Length time.Duration `json:"length"`
}

var (
	DailyWindow  = Window{Label: "last 24h", Length: 24 * time.Hour}
	WeeklyWindow = Window{Label: "last 7d", Length: 7 * 24 * time.Hour}
)

// TimeRange is the half-open interval [Start, End) over UTC instants.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// CurrentAndPrevious returns [now-L, now) and [now-2L, now-L).
func (w Window) CurrentAndPrevious(now time.Time) (TimeRange, TimeRange) {
	now = now.UTC()
	start := now.Add(-w.Length)
	return TimeRange{Start: start, End: now},
		TimeRange{Start: start.Add(-w.Length), End: start}
}

type LinkCount struct {
	ShortCode string `json:"short_code"`
	Title     string `json:"title,omitempty"`
	Count     int64  `json:"count"`
}

// WindowCounts is one consistent read of a time range.
type WindowCounts struct {
	Range     TimeRange   `json:"range"`
	Total     int64       `json:"total"`
	Breakdown []LinkCount `json:"breakdown"`
}

// SortBreakdown orders by count descending, ties by short code ascending.
func SortBreakdown(b []LinkCount) {
	sort.SliceStable(b, func(i, j int) bool {
		if b[i].Count != b[j].Count {
			return b[i].Count > b[j].Count
		}
		return b[i].ShortCode < b[j].ShortCode
	})
}

// PercentChange is either a number or the "new activity" sentinel, which is
// used when the previous window is empty and the current one is not.
type PercentChange struct {
	Value       float64
	NewActivity bool
}

func NewPercentChange(current, previous int64) PercentChange {
	switch {
	case previous > 0:
		return PercentChange{Value: float64(current-previous) / float64(previous) * 100}
	case current > 0:
		return PercentChange{NewActivity: true}
	default:
		return PercentChange{}
	}
}

func (p PercentChange) MarshalJSON() ([]byte, error) {
	if p.NewActivity {
		return json.Marshal("new activity")
	}
	return json.Marshal(p.Value)
}

func (p *PercentChange) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "new activity" {
			return fmt.Errorf("percent change: unexpected %q", s)
		}
		*p = PercentChange{NewActivity: true}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = PercentChange{Value: v}
	return nil
}

// LinkMove is a per-link comparison between the two windows.
type LinkMove struct {
	ShortCode string        `json:"short_code"`
	Title     string        `json:"title,omitempty"`
	Current   int64         `json:"current"`
	Previous  int64         `json:"previous"`
	Change    PercentChange `json:"change"`
}

func (m LinkMove) Delta() int64 {
	return m.Current - m.Previous
}

type WindowStats struct {
	Window    Window        `json:"window"`
	Now       time.Time     `json:"now"`
	Current   TimeRange     `json:"current_range"`
	Previous  TimeRange     `json:"previous_range"`
	Count     int64         `json:"count"`
	PrevCount int64         `json:"previous_count"`
	Change    PercentChange `json:"percent_change"`
	AvgPerDay float64       `json:"avg_per_day"`
	Breakdown []LinkCount   `json:"breakdown"`
	// Links maps every link active in either window to its comparison,
	// ordered like Breakdown and followed by links only seen previously.
	Links  []LinkMove `json:"links"`
	Movers []LinkMove `json:"top_movers"`
}
