package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/internal/report"
	"github.com/ds124wfegd/linktracker/pkg/queue"
)

type ReportSettings struct {
	TopN         int
	MessageLimit int
	Location     *time.Location
}

type reportService struct {
	stats     StatsService
	transport Transport
	retry     *queue.RetryManager
	recorder  OutcomeRecorder
	settings  ReportSettings
	now       func() time.Time
}

// NewReportService builds the dispatcher. transport may be nil, every
// dispatch then fails with entity.ErrNoTransport.
func NewReportService(
	stats StatsService,
	transport Transport,
	retry *queue.RetryManager,
	recorder OutcomeRecorder,
	settings ReportSettings,
) ReportService {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &reportService{
		stats:     stats,
		transport: transport,
		retry:     retry,
		recorder:  recorder,
		settings:  settings,
		now:       time.Now,
	}
}

func (s *reportService) Dispatch(ctx context.Context, kind entity.ReportKind, scheduledAt time.Time) (out entity.Outcome) {
	if scheduledAt.IsZero() {
		scheduledAt = s.now()
	}
	job := entity.ReportJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		ScheduledAt: scheduledAt,
		Status:      entity.StatusPending,
	}
	out = entity.Outcome{
		JobID:       job.ID,
		Kind:        kind,
		ScheduledAt: scheduledAt,
		Status:      job.Status,
	}

	defer func() {
		if r := recover(); r != nil {
			out.Status = entity.StatusFailed
			out.Reason = fmt.Sprintf("panic: %v", r)
		}
		out.FinishedAt = s.now().UTC()
		s.record(ctx, out)
	}()

	fail := func(format string, args ...interface{}) entity.Outcome {
		out.Status = entity.StatusFailed
		out.Reason = fmt.Sprintf(format, args...)
		return out
	}

	if s.transport == nil {
		return fail("%v", entity.ErrNoTransport)
	}

	stats, err := s.stats.ComputeWindow(ctx, scheduledAt, kind.Window())
	if err != nil {
		return fail("compute stats: %v", err)
	}
	out.Count, out.PrevCount, out.Change = stats.Count, stats.PrevCount, stats.Change

	text := report.Render(kind, stats, report.Options{Location: s.settings.Location, TopN: s.settings.TopN})
	chunks := report.Split(text, s.settings.MessageLimit)
	out.Chunks = len(chunks)

	job.Status = entity.StatusSending
	out.Status = job.Status
	logrus.WithFields(logrus.Fields{
		"job_id": job.ID,
		"kind":   kind,
		"chunks": len(chunks),
	}).Debug("Sending report")

	for i, chunk := range chunks {
		attempts, err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
			return s.transport.Send(ctx, chunk)
		})
		out.Attempts += attempts
		if err != nil {
			if len(chunks) > 1 {
				return fail("chunk %d/%d: %v", i+1, len(chunks), err)
			}
			return fail("%v", err)
		}
	}

	out.Status = entity.StatusDelivered
	return out
}

func (s *reportService) record(ctx context.Context, out entity.Outcome) {
	if s.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Outcome recorder panicked: %v", r)
		}
	}()
	s.recorder.Record(ctx, out)
}

// Preview renders the report as it would be sent now, without sending it.
func (s *reportService) Preview(ctx context.Context, kind entity.ReportKind, now time.Time) (string, error) {
	stats, err := s.stats.ComputeWindow(ctx, now, kind.Window())
	if err != nil {
		return "", err
	}
	return report.Render(kind, stats, report.Options{Location: s.settings.Location, TopN: s.settings.TopN}), nil
}

func (s *reportService) SendTestMessage(ctx context.Context, text string) error {
	if s.transport == nil {
		return entity.ErrNoTransport
	}
	_, err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		return s.transport.Send(ctx, text)
	})
	return err
}
