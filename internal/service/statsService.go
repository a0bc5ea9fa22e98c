package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ds124wfegd/linktracker/internal/database/sqlstore"
	"github.com/ds124wfegd/linktracker/internal/entity"
)

type statsService struct {
	clicks sqlstore.ClickRepository
	topN   int
}

func NewStatsService(clicks sqlstore.ClickRepository, topN int) StatsService {
	return &statsService{clicks: clicks, topN: topN}
}

// ComputeWindow reads both windows in one snapshot, so a click written while
// it runs is either in both reads or in neither.
func (s *statsService) ComputeWindow(ctx context.Context, now time.Time, window entity.Window) (*entity.WindowStats, error) {
	if window.Length <= 0 {
		return nil, fmt.Errorf("%w: window length %s", entity.ErrInvalidInput, window.Length)
	}

	current, previous := window.CurrentAndPrevious(now)
	counts, err := s.clicks.Snapshot(ctx, current, previous)
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", window.Label, err)
	}

	return BuildWindowStats(window, now, counts[0], counts[1], s.topN), nil
}

// BuildWindowStats derives the comparison from two raw window reads.
func BuildWindowStats(window entity.Window, now time.Time, current, previous entity.WindowCounts, topN int) *entity.WindowStats {
	stats := &entity.WindowStats{
		Window:    window,
		Now:       now.UTC(),
		Current:   current.Range,
		Previous:  previous.Range,
		Count:     current.Total,
		PrevCount: previous.Total,
		Change:    entity.NewPercentChange(current.Total, previous.Total),
		AvgPerDay: float64(current.Total) / (window.Length.Hours() / 24),
		Breakdown: append([]entity.LinkCount{}, current.Breakdown...),
		Links:     []entity.LinkMove{},
		Movers:    []entity.LinkMove{},
	}

	prevByCode := make(map[string]int64, len(previous.Breakdown))
	for _, lc := range previous.Breakdown {
		prevByCode[lc.ShortCode] = lc.Count
	}

	seen := make(map[string]bool, len(current.Breakdown))
	for _, lc := range stats.Breakdown {
		seen[lc.ShortCode] = true
		prev := prevByCode[lc.ShortCode]
		stats.Links = append(stats.Links, entity.LinkMove{
			ShortCode: lc.ShortCode,
			Title:     lc.Title,
			Current:   lc.Count,
			Previous:  prev,
			Change:    entity.NewPercentChange(lc.Count, prev),
		})
	}
	// previous breakdown is already ordered by count desc, code asc
	for _, lc := range previous.Breakdown {
		if seen[lc.ShortCode] {
			continue
		}
		stats.Links = append(stats.Links, entity.LinkMove{
			ShortCode: lc.ShortCode,
			Title:     lc.Title,
			Previous:  lc.Count,
			Change:    entity.NewPercentChange(0, lc.Count),
		})
	}

	for _, m := range stats.Links {
		if m.Delta() != 0 {
			stats.Movers = append(stats.Movers, m)
		}
	}
	sort.SliceStable(stats.Movers, func(i, j int) bool {
		di, dj := abs(stats.Movers[i].Delta()), abs(stats.Movers[j].Delta())
		if di != dj {
			return di > dj
		}
		return stats.Movers[i].ShortCode < stats.Movers[j].ShortCode
	})
	if topN >= 0 && len(stats.Movers) > topN {
		stats.Movers = stats.Movers[:topN]
	}

	return stats
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
