package sqlstore

import (
	"context"
	"time"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

// AllLinks selects every link in CountInWindow.
const AllLinks int64 = 0

// LinkRepository is the Link Directory.
type LinkRepository interface {
	Create(ctx context.Context, link *entity.Link) error
	GetByCode(ctx context.Context, code string) (*entity.Link, error)
	Update(ctx context.Context, code string, req *entity.UpdateLinkRequest, now time.Time) (*entity.Link, error)
	Delete(ctx context.Context, code string) error
	List(ctx context.Context, limit int) ([]*entity.LinkWithClicks, error)
}

// ClickRepository is the append-only Event Store.
type ClickRepository interface {
	Append(ctx context.Context, linkID int64, at time.Time, meta entity.ClickMeta) (int64, error)
	CountInWindow(ctx context.Context, linkID int64, start, end time.Time) (int64, error)
	BreakdownInWindow(ctx context.Context, start, end time.Time) ([]entity.LinkCount, error)
	// Snapshot reads total and breakdown of every range inside one read transaction.
	Snapshot(ctx context.Context, ranges ...entity.TimeRange) ([]entity.WindowCounts, error)
	CountTotal(ctx context.Context, linkID int64) (int64, error)
	ListByLink(ctx context.Context, linkID int64, limit int) ([]*entity.Click, error)
	DeleteByLink(ctx context.Context, linkID int64) (int64, error)
}
