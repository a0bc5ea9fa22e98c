package service

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/internal/metrics"
	"github.com/ds124wfegd/linktracker/pkg/kafka"
	"github.com/ds124wfegd/linktracker/pkg/queue"
)

// AuditLogRecorder writes one structured line per outcome.
type AuditLogRecorder struct{}

func (AuditLogRecorder) Record(ctx context.Context, out entity.Outcome) {
	change := strconv.FormatFloat(out.Change.Value, 'f', 1, 64)
	if out.Change.NewActivity {
		change = "new activity"
	}

	entry := logrus.WithFields(logrus.Fields{
		"audit":        true,
		"job_id":       out.JobID,
		"kind":         out.Kind,
		"scheduled_at": out.ScheduledAt,
		"finished_at":  out.FinishedAt,
		"status":       out.Status,
		"attempts":     out.Attempts,
		"chunks":       out.Chunks,
		"current":      out.Count,
		"previous":     out.PrevCount,
		"change":       change,
	})

	if out.Delivered() {
		entry.Info("Report delivered")
		return
	}
	entry.WithField("reason", out.Reason).Error("Report failed")
}

type MetricsRecorder struct {
	m *metrics.Metrics
}

func NewMetricsRecorder(m *metrics.Metrics) *MetricsRecorder {
	return &MetricsRecorder{m: m}
}

func (r *MetricsRecorder) Record(ctx context.Context, out entity.Outcome) {
	kind, status := string(out.Kind), string(out.Status)
	r.m.Reports.WithLabelValues(kind, status).Inc()
	r.m.ReportLastRun.WithLabelValues(kind, status).Set(float64(out.FinishedAt.Unix()))
	if out.Attempts > 0 {
		r.m.ReportAttempts.WithLabelValues(kind).Observe(float64(out.Attempts))
	}
	r.m.ReportClicks.WithLabelValues(kind).Set(float64(out.Count))
}

// EventRecorder publishes every outcome to Kafka keyed by report kind.
type EventRecorder struct {
	producer kafka.Producer
}

func NewEventRecorder(producer kafka.Producer) *EventRecorder {
	return &EventRecorder{producer: producer}
}

func (r *EventRecorder) Record(ctx context.Context, out entity.Outcome) {
	if err := r.producer.SendMessage(ctx, string(out.Kind), out); err != nil {
		logrus.WithField("job_id", out.JobID).Errorf("Failed to publish report outcome: %v", err)
	}
}

// DLQRecorder keeps failed outcomes for later inspection.
type DLQRecorder struct {
	dlq queue.DLQHandler
}

func NewDLQRecorder(dlq queue.DLQHandler) *DLQRecorder {
	return &DLQRecorder{dlq: dlq}
}

func (r *DLQRecorder) Record(ctx context.Context, out entity.Outcome) {
	if out.Delivered() {
		return
	}
	if err := r.dlq.HandleFailedReport(ctx, out); err != nil {
		logrus.WithField("job_id", out.JobID).Errorf("Failed to store report in DLQ: %v", err)
	}
}

// MultiRecorder fans an outcome out to every recorder. One recorder
// panicking does not stop the others.
type MultiRecorder []OutcomeRecorder

func (m MultiRecorder) Record(ctx context.Context, out entity.Outcome) {
	for _, r := range m {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logrus.Errorf("Outcome recorder %T panicked: %v", r, p)
				}
			}()
			r.Record(ctx, out)
		}()
	}
}
