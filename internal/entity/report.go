package entity

import (
	"fmt"
	"strings"
	"time"
)

type ReportKind string

const (
	ReportDaily  ReportKind = "daily"
	ReportWeekly ReportKind = "weekly"
)

func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(strings.ToLower(strings.TrimSpace(s))) {
	case ReportDaily:
		return ReportDaily, nil
	case ReportWeekly:
		return ReportWeekly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReportKind, s)
}

// Window is the aggregation window a report of this kind covers.
func (k ReportKind) Window() Window {
	if k == ReportWeekly {
		return WeeklyWindow
	}
	return DailyWindow
}

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusSending   JobStatus = "sending"
	StatusDelivered JobStatus = "delivered"
	StatusFailed    JobStatus = "failed"
)

// ReportJob lives for a single fire: created by the clock, consumed by the
// dispatcher, dropped once the outcome is recorded.
type ReportJob struct {
	ID          string     `json:"id"`
	Kind        ReportKind `json:"kind"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      JobStatus  `json:"status"`
}

type Outcome struct {
	JobID       string        `json:"job_id"`
	Kind        ReportKind    `json:"kind"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Status      JobStatus     `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Attempts    int           `json:"attempts"`
	Chunks      int           `json:"chunks"`
	Count       int64         `json:"count"`
	PrevCount   int64         `json:"previous_count"`
	Change      PercentChange `json:"percent_change"`
}

func (o Outcome) Delivered() bool {
	return o.Status == StatusDelivered
}
