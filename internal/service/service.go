package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

type LinkService interface {
	CreateLink(ctx context.Context, req *entity.CreateLinkRequest) (*entity.Link, error)
	GetLink(ctx context.Context, code string) (*entity.Link, error)
	UpdateLink(ctx context.Context, code string, req *entity.UpdateLinkRequest) (*entity.Link, error)
	DeleteLink(ctx context.Context, code string) error
	ListLinks(ctx context.Context, limit int) ([]*entity.LinkWithClicks, error)

	// RecordClick resolves the code and durably records (or queues) one click
	// before returning the link to redirect to.
	RecordClick(ctx context.Context, code string, meta entity.ClickMeta) (*entity.Link, error)
	// StoreClick writes a click taken from the click queue.
	StoreClick(ctx context.Context, msg *entity.ClickMessage) error
	ResetClicks(ctx context.Context, code string) (int64, error)
	GetClicks(ctx context.Context, code string, limit int) ([]*entity.Click, error)
	GetLinkStats(ctx context.Context, code string, days int) (*entity.LinkStats, error)
}

type StatsService interface {
	// ComputeWindow compares [now-L, now) with [now-2L, now-L).
	ComputeWindow(ctx context.Context, now time.Time, window entity.Window) (*entity.WindowStats, error)
}

type ReportService interface {
	// Dispatch never panics and never returns an error: failures are part of the outcome.
	Dispatch(ctx context.Context, kind entity.ReportKind, scheduledAt time.Time) entity.Outcome
	Preview(ctx context.Context, kind entity.ReportKind, now time.Time) (string, error)
	SendTestMessage(ctx context.Context, text string) error
}

// Transport delivers one message. Errors wrapped with queue.Permanent are fatal.
type Transport interface {
	Send(ctx context.Context, text string) error
}

type OutcomeRecorder interface {
	Record(ctx context.Context, outcome entity.Outcome)
}

// ClickPublisher puts clicks on the click queue.
type ClickPublisher interface {
	Publish(ctx context.Context, message interface{}) error
}

// LinkCache returns entity.ErrCacheMiss when the code is not cached.
type LinkCache interface {
	GetLink(ctx context.Context, code string) (*entity.Link, error)
	SetLink(ctx context.Context, link *entity.Link) error
	DeleteLink(ctx context.Context, code string) error
}

// ClickCounter receives the mode ("direct" or "queued") of every recorded click.
type ClickCounter interface {
	ClickRecorded(mode string)
}
