package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

// DLQHandler keeps report outcomes that were not delivered.
type DLQHandler interface {
	HandleFailedReport(ctx context.Context, outcome entity.Outcome) error
	GetFailedReports(ctx context.Context, limit int) ([]*FailedReport, error)
	DeleteFailedReport(ctx context.Context, jobID string) error
	GetDLQStats(ctx context.Context) (*DLQStats, error)
	PurgeDLQ(ctx context.Context) (int64, error)
}

type FailedReport struct {
	Outcome  entity.Outcome `json:"outcome"`
	FailedAt time.Time      `json:"failed_at"`
}

// DLQStats contains statistics about the Dead Letter Queue
type DLQStats struct {
	OldestFailure time.Time `json:"oldest_failure,omitempty"`
	NewestFailure time.Time `json:"newest_failure,omitempty"`
	QueueSize     int64     `json:"queue_size"`
}

// RedisDLQHandler stores failed reports in a sorted set scored by failure time.
type RedisDLQHandler struct {
	client redis.Cmdable
	dlq    string
}

func NewRedisDLQHandler(client redis.Cmdable, dlq string) *RedisDLQHandler {
	return &RedisDLQHandler{
		client: client,
		dlq:    dlq,
	}
}

func (d *RedisDLQHandler) HandleFailedReport(ctx context.Context, outcome entity.Outcome) error {
	failed := &FailedReport{
		Outcome:  outcome,
		FailedAt: outcome.FinishedAt,
	}
	if failed.FailedAt.IsZero() {
		failed.FailedAt = time.Now()
	}

	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("failed to marshal failed report: %w", err)
	}

	score := float64(failed.FailedAt.UnixNano()) / 1e9
	if err := d.client.ZAdd(ctx, d.dlq, redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to send report to DLQ: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id": outcome.JobID,
		"kind":   outcome.Kind,
	}).Warn("Report moved to DLQ")
	return nil
}

// GetFailedReports returns the newest failures first.
func (d *RedisDLQHandler) GetFailedReports(ctx context.Context, limit int) ([]*FailedReport, error) {
	if limit <= 0 {
		limit = 50
	}

	members, err := d.client.ZRevRangeByScore(ctx, d.dlq, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get failed reports: %w", err)
	}

	reports := make([]*FailedReport, 0, len(members))
	for _, member := range members {
		var report FailedReport
		if err := json.Unmarshal([]byte(member), &report); err != nil {
			logrus.Errorf("Failed to unmarshal failed report: %v", err)
			continue
		}
		reports = append(reports, &report)
	}

	return reports, nil
}

func (d *RedisDLQHandler) DeleteFailedReport(ctx context.Context, jobID string) error {
	members, err := d.client.ZRange(ctx, d.dlq, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get DLQ reports: %w", err)
	}

	for _, member := range members {
		var report FailedReport
		if err := json.Unmarshal([]byte(member), &report); err != nil {
			continue
		}
		if report.Outcome.JobID != jobID {
			continue
		}

		if err := d.client.ZRem(ctx, d.dlq, member).Err(); err != nil {
			return fmt.Errorf("failed to delete report from DLQ: %w", err)
		}
		logrus.WithField("job_id", jobID).Info("Report deleted from DLQ")
		return nil
	}

	return fmt.Errorf("report %s: %w", jobID, entity.ErrReportNotFound)
}

func (d *RedisDLQHandler) GetDLQStats(ctx context.Context) (*DLQStats, error) {
	count, err := d.client.ZCard(ctx, d.dlq).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ count: %w", err)
	}

	stats := &DLQStats{QueueSize: count}
	if count == 0 {
		return stats, nil
	}

	oldest, err := d.client.ZRangeWithScores(ctx, d.dlq, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest report: %w", err)
	}
	newest, err := d.client.ZRevRangeWithScores(ctx, d.dlq, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get newest report: %w", err)
	}

	if len(oldest) > 0 {
		stats.OldestFailure = scoreTime(oldest[0].Score)
	}
	if len(newest) > 0 {
		stats.NewestFailure = scoreTime(newest[0].Score)
	}
	return stats, nil
}

func (d *RedisDLQHandler) PurgeDLQ(ctx context.Context) (int64, error) {
	count, err := d.client.ZCard(ctx, d.dlq).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get DLQ count: %w", err)
	}

	if err := d.client.Del(ctx, d.dlq).Err(); err != nil {
		return 0, fmt.Errorf("failed to purge DLQ: %w", err)
	}

	logrus.Infof("DLQ purged, removed %d reports", count)
	return count, nil
}

func scoreTime(score float64) time.Time {
	sec := int64(score)
	nsec := int64((score - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Truncate(time.Millisecond)
}
