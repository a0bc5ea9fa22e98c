package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/internal/database/sqlstore"
	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/pkg/queue"
)

const (
	ClickModeDirect = "direct"
	ClickModeQueued = "queued"
)

type linkService struct {
	links     sqlstore.LinkRepository
	clicks    sqlstore.ClickRepository
	cache     LinkCache
	publisher ClickPublisher
	counter   ClickCounter
	now       func() time.Time
}

type LinkOption func(*linkService)

// WithCache puts a cache in front of short code lookups.
func WithCache(cache LinkCache) LinkOption {
	return func(s *linkService) { s.cache = cache }
}

// WithClickQueue makes RecordClick publish clicks instead of writing them.
// A failed publish falls back to a direct write.
func WithClickQueue(publisher ClickPublisher) LinkOption {
	return func(s *linkService) { s.publisher = publisher }
}

func WithClickCounter(counter ClickCounter) LinkOption {
	return func(s *linkService) { s.counter = counter }
}

func WithLinkClock(now func() time.Time) LinkOption {
	return func(s *linkService) { s.now = now }
}

func NewLinkService(links sqlstore.LinkRepository, clicks sqlstore.ClickRepository, opts ...LinkOption) LinkService {
	s := &linkService{
		links:  links,
		clicks: clicks,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *linkService) CreateLink(ctx context.Context, req *entity.CreateLinkRequest) (*entity.Link, error) {
	code := strings.TrimSpace(req.ShortCode)
	if err := entity.ValidateShortCode(code); err != nil {
		return nil, err
	}
	if err := entity.ValidateTargetURL(req.TargetURL); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	link := &entity.Link{
		ShortCode: code,
		TargetURL: req.TargetURL,
		Title:     strings.TrimSpace(req.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"code": link.ShortCode, "target": link.TargetURL}).Info("Link created")
	return link, nil
}

// GetLink resolves a short code, cache first.
func (s *linkService) GetLink(ctx context.Context, code string) (*entity.Link, error) {
	if s.cache != nil {
		link, err := s.cache.GetLink(ctx, code)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, entity.ErrCacheMiss) {
			logrus.Warnf("Link cache read failed for %s: %v", code, err)
		}
	}

	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetLink(ctx, link); err != nil {
			logrus.Warnf("Link cache write failed for %s: %v", code, err)
		}
	}
	return link, nil
}

func (s *linkService) UpdateLink(ctx context.Context, code string, req *entity.UpdateLinkRequest) (*entity.Link, error) {
	if req.TargetURL == nil && req.Title == nil {
		return nil, entity.ErrNothingToUpdate
	}
	if req.TargetURL != nil {
		if err := entity.ValidateTargetURL(*req.TargetURL); err != nil {
			return nil, err
		}
	}

	link, err := s.links.Update(ctx, code, req, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, code)

	logrus.WithField("code", code).Info("Link updated")
	return link, nil
}

func (s *linkService) DeleteLink(ctx context.Context, code string) error {
	if err := s.links.Delete(ctx, code); err != nil {
		return err
	}
	s.invalidate(ctx, code)

	logrus.WithField("code", code).Info("Link deleted")
	return nil
}

func (s *linkService) invalidate(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteLink(ctx, code); err != nil {
		logrus.Warnf("Link cache invalidation failed for %s: %v", code, err)
	}
}

func (s *linkService) ListLinks(ctx context.Context, limit int) ([]*entity.LinkWithClicks, error) {
	return s.links.List(ctx, limit)
}

func (s *linkService) RecordClick(ctx context.Context, code string, meta entity.ClickMeta) (*entity.Link, error) {
	link, err := s.GetLink(ctx, code)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	// a click never precedes its link, even with a skewed clock
	if at.Before(link.CreatedAt) {
		at = link.CreatedAt
	}

	if s.publisher != nil {
		msg := &entity.ClickMessage{LinkID: link.ID, ShortCode: link.ShortCode, ClickedAt: at, ClickMeta: meta}
		err := s.publisher.Publish(ctx, msg)
		if err == nil {
			s.count(ClickModeQueued)
			return link, nil
		}
		logrus.Warnf("Click queue publish failed for %s, writing directly: %v", code, err)
	}

	if _, err := s.clicks.Append(ctx, link.ID, at, meta); err != nil {
		return nil, err
	}
	s.count(ClickModeDirect)
	return link, nil
}

func (s *linkService) count(mode string) {
	if s.counter != nil {
		s.counter.ClickRecorded(mode)
	}
}

func (s *linkService) StoreClick(ctx context.Context, msg *entity.ClickMessage) error {
	link, err := s.links.GetByCode(ctx, msg.ShortCode)
	if errors.Is(err, entity.ErrLinkNotFound) || (err == nil && link.ID != msg.LinkID) {
		return queue.Permanent(fmt.Errorf("click for %s: %w", msg.ShortCode, entity.ErrLinkNotFound))
	}
	if err != nil {
		return err
	}
	if msg.ClickedAt.Before(link.CreatedAt) {
		return queue.Permanent(fmt.Errorf("click for %s at %s: %w", msg.ShortCode, msg.ClickedAt, entity.ErrClickBeforeLink))
	}

	_, err = s.clicks.Append(ctx, link.ID, msg.ClickedAt, msg.ClickMeta)
	return err
}

func (s *linkService) ResetClicks(ctx context.Context, code string) (int64, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return 0, err
	}

	deleted, err := s.clicks.DeleteByLink(ctx, link.ID)
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{"code": code, "deleted": deleted}).Info("Link clicks reset")
	return deleted, nil
}

func (s *linkService) GetClicks(ctx context.Context, code string, limit int) ([]*entity.Click, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.clicks.ListByLink(ctx, link.ID, limit)
}

func (s *linkService) GetLinkStats(ctx context.Context, code string, days int) (*entity.LinkStats, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", entity.ErrInvalidInput)
	}

	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	period, err := s.clicks.CountInWindow(ctx, link.ID, now.Add(-time.Duration(days)*24*time.Hour), now)
	if err != nil {
		return nil, err
	}
	total, err := s.clicks.CountTotal(ctx, link.ID)
	if err != nil {
		return nil, err
	}

	return &entity.LinkStats{
		ShortCode:   link.ShortCode,
		Title:       link.Title,
		Days:        days,
		Clicks:      period,
		TotalClicks: total,
		AvgPerDay:   float64(period) / float64(days),
	}, nil
}
