// Package report turns window statistics into Telegram HTML messages.
package report

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

const separator = "━━━━━━━━━━━━━━━━━━━━"

// MaxNameLength caps a link name in characters before escaping, so a single
// report line always fits in one message.
const MaxNameLength = 256

type Options struct {
	// Location is used for the dates in the header, UTC when nil.
	Location *time.Location
	// TopN limits the movers section, 0 hides it.
	TopN int
}

// FormatChange renders a percent change, keeping "new activity" apart from numbers.
func FormatChange(p entity.PercentChange) string {
	v := math.Round(p.Value)
	switch {
	case p.NewActivity:
		return "new activity 🆕"
	case v > 0:
		return fmt.Sprintf("+%.0f%% 📈", v)
	case v < 0:
		return fmt.Sprintf("%.0f%% 📉", v)
	default:
		return "0% ➡️"
	}
}

func title(kind entity.ReportKind) string {
	if kind == entity.ReportWeekly {
		return "📈 <b>Weekly report</b>"
	}
	return "📊 <b>Daily report</b>"
}

func displayName(title, code string) string {
	name := title
	if strings.TrimSpace(name) == "" {
		name = code
	}
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength-1]) + "…"
	}
	return html.EscapeString(name)
}

func days(w entity.Window) float64 {
	return w.Length.Hours() / 24
}

// Render is a pure function of its arguments.
func Render(kind entity.ReportKind, stats *entity.WindowStats, opts Options) string {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	const layout = "02.01.2006 15:04"

	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s · %s", title(kind), html.EscapeString(stats.Window.Label))
	line("📅 %s – %s (%s)",
		stats.Current.Start.In(loc).Format(layout),
		stats.Current.End.In(loc).Format(layout),
		html.EscapeString(loc.String()))
	line(separator)
	line("<b>Clicks:</b> %d (previous period %d) %s", stats.Count, stats.PrevCount, FormatChange(stats.Change))
	if days(stats.Window) > 1 {
		line("<b>Per day:</b> ~%.1f", stats.AvgPerDay)
	}
	line("")

	if len(stats.Links) == 0 {
		line("No clicks in either period.")
		line("")
	}

	for _, m := range stats.Links {
		line("🔗 <b>%s</b>", displayName(m.Title, m.ShortCode))
		line("├─ Clicks: <b>%d</b> (previous %d)", m.Current, m.Previous)
		if d := days(stats.Window); d > 1 {
			line("├─ Per day: ~%.1f", float64(m.Current)/d)
		}
		line("└─ %s", FormatChange(m.Change))
		line("")
	}

	if opts.TopN > 0 && len(stats.Movers) > 0 {
		line(separator)
		line("🏆 <b>Top movers:</b>")
		for i, m := range stats.Movers {
			if i == opts.TopN {
				break
			}
			line("%d. %s %+d (%d vs %d)", i+1, displayName(m.Title, m.ShortCode), m.Delta(), m.Current, m.Previous)
		}
		line("")
	}

	line(separator)
	b.WriteString(fmt.Sprintf("<b>Total:</b> %d clicks", stats.Count))
	return b.String()
}
