package sqlstore

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

type clickRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewClickRepository(db *sql.DB, dialect Dialect) ClickRepository {
	return &clickRepository{db: db, dialect: dialect}
}

// Append writes one click. Every call is its own durable statement, nothing is buffered.
func (r *clickRepository) Append(ctx context.Context, linkID int64, at time.Time, meta entity.ClickMeta) (int64, error) {
	query, args, err := r.dialect.builder.
		Insert("clicks").
		Columns("link_id", "clicked_at", "user_agent", "ip_address", "referer").
		Values(linkID, r.dialect.timeArg(at), meta.UserAgent, meta.IPAddress, meta.Referer).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, storageErr("append click", err)
	}
	return id, nil
}

func (r *clickRepository) CountInWindow(ctx context.Context, linkID int64, start, end time.Time) (int64, error) {
	return r.countInWindow(ctx, r.db, linkID, start, end)
}

func (r *clickRepository) countInWindow(ctx context.Context, q querier, linkID int64, start, end time.Time) (int64, error) {
	builder := r.dialect.builder.
		Select("COUNT(*)").
		From("clicks").
		Where(sq.GtOrEq{"clicked_at": r.dialect.timeArg(start)}).
		Where(sq.Lt{"clicked_at": r.dialect.timeArg(end)})
	if linkID != AllLinks {
		builder = builder.Where(sq.Eq{"link_id": linkID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, storageErr("count clicks", err)
	}
	return count, nil
}

func (r *clickRepository) BreakdownInWindow(ctx context.Context, start, end time.Time) ([]entity.LinkCount, error) {
	return r.breakdownInWindow(ctx, r.db, start, end)
}

func (r *clickRepository) breakdownInWindow(ctx context.Context, q querier, start, end time.Time) ([]entity.LinkCount, error) {
	query, args, err := r.dialect.builder.
		Select("l.short_code", "l.title", "COUNT(c.id) AS clicks").
		From("clicks c").
		Join("links l ON l.id = c.link_id").
		Where(sq.GtOrEq{"c.clicked_at": r.dialect.timeArg(start)}).
		Where(sq.Lt{"c.clicked_at": r.dialect.timeArg(end)}).
		GroupBy("l.id", "l.short_code", "l.title").
		OrderBy("clicks DESC", "l.short_code ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("click breakdown", err)
	}
	defer rows.Close()

	breakdown := make([]entity.LinkCount, 0)
	for rows.Next() {
		var lc entity.LinkCount
		if err := rows.Scan(&lc.ShortCode, &lc.Title, &lc.Count); err != nil {
			return nil, storageErr("click breakdown", err)
		}
		breakdown = append(breakdown, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("click breakdown", err)
	}

	// collation may differ between drivers
	entity.SortBreakdown(breakdown)
	return breakdown, nil
}

func (r *clickRepository) Snapshot(ctx context.Context, ranges ...entity.TimeRange) ([]entity.WindowCounts, error) {
	tx, err := r.db.BeginTx(ctx, r.dialect.txOptions)
	if err != nil {
		return nil, storageErr("begin snapshot", err)
	}
	defer rollback(tx)

	out := make([]entity.WindowCounts, 0, len(ranges))
	for _, rng := range ranges {
		total, err := r.countInWindow(ctx, tx, AllLinks, rng.Start, rng.End)
		if err != nil {
			return nil, err
		}
		breakdown, err := r.breakdownInWindow(ctx, tx, rng.Start, rng.End)
		if err != nil {
			return nil, err
		}
		out = append(out, entity.WindowCounts{Range: rng, Total: total, Breakdown: breakdown})
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit snapshot", err)
	}
	return out, nil
}

func (r *clickRepository) CountTotal(ctx context.Context, linkID int64) (int64, error) {
	query, args, err := r.dialect.builder.
		Select("COUNT(*)").
		From("clicks").
		Where(sq.Eq{"link_id": linkID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, storageErr("count total clicks", err)
	}
	return count, nil
}

func (r *clickRepository) ListByLink(ctx context.Context, linkID int64, limit int) ([]*entity.Click, error) {
	builder := r.dialect.builder.
		Select("id", "link_id", "clicked_at", "user_agent", "ip_address", "referer").
		From("clicks").
		Where(sq.Eq{"link_id": linkID}).
		OrderBy("clicked_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list clicks", err)
	}
	defer rows.Close()

	var clicks []*entity.Click
	for rows.Next() {
		var (
			c         entity.Click
			clickedAt entity.DBTime
		)
		if err := rows.Scan(&c.ID, &c.LinkID, &clickedAt, &c.UserAgent, &c.IPAddress, &c.Referer); err != nil {
			return nil, storageErr("list clicks", err)
		}
		c.ClickedAt = clickedAt.Time
		clicks = append(clicks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list clicks", err)
	}

	return clicks, nil
}

func (r *clickRepository) DeleteByLink(ctx context.Context, linkID int64) (int64, error) {
	query, args, err := r.dialect.builder.
		Delete("clicks").
		Where(sq.Eq{"link_id": linkID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageErr("delete clicks", err)
	}
	return result.RowsAffected()
}
