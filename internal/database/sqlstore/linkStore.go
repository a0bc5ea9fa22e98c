package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

type linkRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewLinkRepository(db *sql.DB, dialect Dialect) LinkRepository {
	return &linkRepository{db: db, dialect: dialect}
}

var linkColumns = []string{"id", "short_code", "target_url", "title", "created_at", "updated_at"}

func (r *linkRepository) Create(ctx context.Context, link *entity.Link) error {
	query, args, err := r.dialect.builder.
		Insert("links").
		Columns("short_code", "target_url", "title", "created_at", "updated_at").
		Values(link.ShortCode, link.TargetURL, link.Title,
			r.dialect.timeArg(link.CreatedAt), r.dialect.timeArg(link.UpdatedAt)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&link.ID); err != nil {
		if r.dialect.isUniqueViolation(err) {
			return entity.ErrLinkExists
		}
		return storageErr("create link", err)
	}
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*entity.Link, error) {
	return r.getByCode(ctx, r.db, code)
}

func (r *linkRepository) getByCode(ctx context.Context, q querier, code string) (*entity.Link, error) {
	query, args, err := r.dialect.builder.
		Select(linkColumns...).
		From("links").
		Where(sq.Eq{"short_code": code}).
		ToSql()
	if err != nil {
		return nil, err
	}

	link, err := scanLink(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrLinkNotFound
		}
		return nil, storageErr("get link", err)
	}
	return link, nil
}

func (r *linkRepository) Update(ctx context.Context, code string, req *entity.UpdateLinkRequest, now time.Time) (*entity.Link, error) {
	update := r.dialect.builder.
		Update("links").
		Set("updated_at", r.dialect.timeArg(now)).
		Where(sq.Eq{"short_code": code})
	if req.TargetURL != nil {
		update = update.Set("target_url", *req.TargetURL)
	}
	if req.Title != nil {
		update = update.Set("title", *req.Title)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("update link", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, storageErr("update link", err)
	}
	if rowsAffected == 0 {
		return nil, entity.ErrLinkNotFound
	}

	return r.GetByCode(ctx, code)
}

// Delete removes the link together with its clicks.
func (r *linkRepository) Delete(ctx context.Context, code string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete link", err)
	}
	defer rollback(tx)

	link, err := r.getByCode(ctx, tx, code)
	if err != nil {
		return err
	}

	for _, stmt := range []sq.DeleteBuilder{
		r.dialect.builder.Delete("clicks").Where(sq.Eq{"link_id": link.ID}),
		r.dialect.builder.Delete("links").Where(sq.Eq{"id": link.ID}),
	} {
		query, args, err := stmt.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return storageErr("delete link", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete link", err)
	}
	return nil
}

func (r *linkRepository) List(ctx context.Context, limit int) ([]*entity.LinkWithClicks, error) {
	builder := r.dialect.builder.
		Select("l.id", "l.short_code", "l.target_url", "l.title", "l.created_at", "l.updated_at",
			"COUNT(c.id) AS clicks").
		From("links l").
		LeftJoin("clicks c ON c.link_id = l.id").
		GroupBy("l.id", "l.short_code", "l.target_url", "l.title", "l.created_at", "l.updated_at").
		OrderBy("l.created_at DESC", "l.id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list links", err)
	}
	defer rows.Close()

	var links []*entity.LinkWithClicks
	for rows.Next() {
		var (
			l                    entity.LinkWithClicks
			createdAt, updatedAt entity.DBTime
		)
		if err := rows.Scan(&l.ID, &l.ShortCode, &l.TargetURL, &l.Title, &createdAt, &updatedAt, &l.Clicks); err != nil {
			return nil, storageErr("list links", err)
		}
		l.CreatedAt, l.UpdatedAt = createdAt.Time, updatedAt.Time
		links = append(links, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list links", err)
	}

	return links, nil
}

func scanLink(row *sql.Row) (*entity.Link, error) {
	var (
		link                 entity.Link
		createdAt, updatedAt entity.DBTime
	)
	if err := row.Scan(&link.ID, &link.ShortCode, &link.TargetURL, &link.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	link.CreatedAt, link.UpdatedAt = createdAt.Time, updatedAt.Time
	return &link, nil
}
