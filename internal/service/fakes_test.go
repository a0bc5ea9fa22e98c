package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/linktracker/internal/database/sqlstore"
	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/pkg/migrations"
	"github.com/ds124wfegd/linktracker/pkg/queue"
	"github.com/ds124wfegd/linktracker/pkg/sqlite"
)

var testNow = time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)

func newStores(t *testing.T) (sqlstore.LinkRepository, sqlstore.ClickRepository) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewSQLiteDB(ctx, filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(db, "sqlite"))

	return sqlstore.NewLinkRepository(db, sqlstore.SQLite), sqlstore.NewClickRepository(db, sqlstore.SQLite)
}

func seedLink(t *testing.T, links sqlstore.LinkRepository, code, title string) *entity.Link {
	t.Helper()
	created := testNow.Add(-30 * 24 * time.Hour)
	link := &entity.Link{ShortCode: code, TargetURL: "https://example.com/" + code, Title: title,
		CreatedAt: created, UpdatedAt: created}
	require.NoError(t, links.Create(context.Background(), link))
	return link
}

func seedClicks(t *testing.T, clicks sqlstore.ClickRepository, linkID int64, ago ...time.Duration) {
	t.Helper()
	for _, d := range ago {
		_, err := clicks.Append(context.Background(), linkID, testNow.Add(-d), entity.ClickMeta{})
		require.NoError(t, err)
	}
}

// fakeTransport returns the scripted errors in order, then succeeds.
type fakeTransport struct {
	mu     sync.Mutex
	errs   []error
	always error
	sent   []string
}

func (f *fakeTransport) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	if f.always != nil {
		return f.always
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []entity.Outcome
}

func (f *fakeRecorder) Record(ctx context.Context, out entity.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, out)
}

type panicRecorder struct{}

func (panicRecorder) Record(context.Context, entity.Outcome) { panic("recorder down") }

type stubStats struct {
	stats *entity.WindowStats
	err   error
	panic bool
	nows  []time.Time
}

func (s *stubStats) ComputeWindow(ctx context.Context, now time.Time, window entity.Window) (*entity.WindowStats, error) {
	s.nows = append(s.nows, now)
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	st := *s.stats
	st.Window = window
	return &st, nil
}

type fakeCache struct {
	mu    sync.Mutex
	links map[string]*entity.Link
	gets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{links: make(map[string]*entity.Link)}
}

func (c *fakeCache) GetLink(ctx context.Context, code string) (*entity.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	link, ok := c.links[code]
	if !ok {
		return nil, entity.ErrCacheMiss
	}
	cp := *link
	return &cp, nil
}

func (c *fakeCache) SetLink(ctx context.Context, link *entity.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *link
	c.links[link.ShortCode] = &cp
	return nil
}

func (c *fakeCache) DeleteLink(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, code)
	return nil
}

type fakePublisher struct {
	err      error
	messages []*entity.ClickMessage
}

func (p *fakePublisher) Publish(ctx context.Context, message interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message.(*entity.ClickMessage))
	return nil
}

type fakeCounter map[string]int

func (c fakeCounter) ClickRecorded(mode string) { c[mode]++ }

type recordedSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newRetry(attempts int) (*queue.RetryManager, *recordedSleep) {
	rec := &recordedSleep{}
	rm := queue.NewRetryManager(attempts, time.Second)
	rm.SetJitter(false)
	rm.SetSleep(rec.sleep)
	return rm, rec
}
