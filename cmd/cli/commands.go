package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"html"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ds124wfegd/linktracker/config"
	"github.com/ds124wfegd/linktracker/internal/appServer"
	"github.com/ds124wfegd/linktracker/internal/entity"
)

const timeLayout = "2006-01-02 15:04:05"

type CLI struct {
	cfg *config.Config
	out io.Writer
	in  io.Reader
	now func() time.Time
}

func (c *CLI) Run(ctx context.Context, command string, args []string) error {
	if c.now == nil {
		c.now = time.Now
	}

	if command == "init-db" {
		return c.initDB(ctx)
	}

	handlers := map[string]func(context.Context, *appServer.Components, []string) error{
		"create":       c.create,
		"update":       c.update,
		"delete":       c.delete,
		"reset-clicks": c.resetClicks,
		"list":         c.list,
		"stats":        c.stats,
		"clicks":       c.clicks,
		"send-report":  c.sendReport,
		"preview":      c.preview,
		"test-message": c.testMessage,
	}
	handler, ok := handlers[command]
	if !ok {
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	components, err := appServer.NewComponents(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	return handler(ctx, components, args)
}

// parse accepts flags before, between and after positional arguments.
func parse(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
	if len(positional) < want {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", fs.Name(), want, len(positional))
	}
	return positional, nil
}

func (c *CLI) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func (c *CLI) initDB(ctx context.Context) error {
	db, _, err := appServer.OpenDB(ctx, &c.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	fmt.Fprintln(c.out, "✓ Database initialized successfully")
	return nil
}

func (c *CLI) create(ctx context.Context, app *appServer.Components, args []string) error {
	fs := c.flagSet("create")
	title := fs.String("title", "", "link title")
	pos, err := parse(fs, args, 2)
	if err != nil {
		return err
	}

	link, err := app.LinkService.CreateLink(ctx, &entity.CreateLinkRequest{ShortCode: pos[0], TargetURL: pos[1], Title: *title})
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	fmt.Fprintf(c.out, "✓ Created: %s → %s\n", link.ShortCode, link.TargetURL)
	if link.Title != "" {
		fmt.Fprintf(c.out, "  Title: %s\n", link.Title)
	}
	return nil
}

func (c *CLI) update(ctx context.Context, app *appServer.Components, args []string) error {
	fs := c.flagSet("update")
	title := fs.String("title", "", "new link title")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	var req entity.UpdateLinkRequest
	if len(pos) > 1 {
		req.TargetURL = &pos[1]
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "title" {
			req.Title = title
		}
	})

	link, err := app.LinkService.UpdateLink(ctx, pos[0], &req)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	fmt.Fprintf(c.out, "✓ Updated: %s → %s\n", link.ShortCode, link.TargetURL)
	return nil
}

func (c *CLI) delete(ctx context.Context, app *appServer.Components, args []string) error {
	pos, err := parse(c.flagSet("delete"), args, 1)
	if err != nil {
		return err
	}

	if err := app.LinkService.DeleteLink(ctx, pos[0]); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	fmt.Fprintf(c.out, "✓ Deleted: %s\n", pos[0])
	return nil
}

func (c *CLI) resetClicks(ctx context.Context, app *appServer.Components, args []string) error {
	fs := c.flagSet("reset-clicks")
	force := fs.Bool("force", false, "skip the confirmation prompt")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	code := pos[0]

	stats, err := app.LinkService.GetLinkStats(ctx, code, 1)
	if err != nil {
		return err
	}
	if stats.TotalClicks == 0 {
		fmt.Fprintf(c.out, "Link %s already has 0 clicks\n", code)
		return nil
	}

	if !*force {
		fmt.Fprintf(c.out, "⚠️  This will delete %d click records for %s. Continue? [y/N] ", stats.TotalClicks, code)
		answer, _ := bufio.NewReader(c.in).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Fprintln(c.out, "Operation cancelled")
			return nil
		}
	}

	deleted, err := app.LinkService.ResetClicks(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to reset clicks: %w", err)
	}

	fmt.Fprintf(c.out, "✓ Reset clicks for %s: %d records removed\n", code, deleted)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (c *CLI) list(ctx context.Context, app *appServer.Components, args []string) error {
	fs := c.flagSet("list")
	limit := fs.Int("limit", 50, "maximum number of links to show")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	links, err := app.LinkService.ListLinks(ctx, *limit)
	if err != nil {
		return fmt.Errorf("failed to list links: %w", err)
	}
	if len(links) == 0 {
		fmt.Fprintln(c.out, "No links found")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tURL\tTITLE\tCLICKS\tCREATED")
	for _, l := range links {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			l.ShortCode,
			truncate(l.TargetURL, 60),
			truncate(orDash(l.Title), 30),
			l.Clicks,
			l.CreatedAt.In(app.Location).Format("2006-01-02"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\nTotal links: %d\n", len(links))
	return nil
}

func (c *CLI) stats(ctx context.Context, app *appServer.Components, args []string) error {
	fs := c.flagSet("stats")
	days := fs.Int("days", 7, "number of days to analyze")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	s, err := app.LinkService.GetLinkStats(ctx, pos[0], *days)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	fmt.Fprintf(c.out, "📊 Statistics: %s\n", s.ShortCode)
	if s.Title != "" {
		fmt.Fprintf(c.out, "   Title: %s\n", s.Title)
	}
	fmt.Fprintf(c.out, "\nLast %d days: %d clicks\n", s.Days, s.Clicks)
	fmt.Fprintf(c.out, "Total all time: %d clicks\n", s.TotalClicks)
	fmt.Fprintf(c.out, "Average per day: %.1f clicks\n", s.AvgPerDay)
	return nil
}

func (c *CLI) clicks(ctx context.Context, app *appServer.Components, args []string) error {
	fs := c.flagSet("clicks")
	limit := fs.Int("limit", 20, "number of recent clicks to show")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	clicks, err := app.LinkService.GetClicks(ctx, pos[0], *limit)
	if err != nil {
		return fmt.Errorf("failed to get click details: %w", err)
	}
	if len(clicks) == 0 {
		fmt.Fprintf(c.out, "No clicks found for %s\n", pos[0])
		return nil
	}

	fmt.Fprintf(c.out, "🖱️  Recent clicks for %s:\n\n", pos[0])
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tIP ADDRESS\tUSER AGENT\tREFERER")
	for _, cl := range clicks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			cl.ClickedAt.In(app.Location).Format(timeLayout),
			orDash(cl.IPAddress),
			truncate(orDash(cl.UserAgent), 80),
			truncate(orDash(cl.Referer), 40))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\nTotal clicks shown: %d\n", len(clicks))
	return nil
}

func reportKind(pos []string) (entity.ReportKind, error) {
	if len(pos) == 0 {
		return entity.ReportDaily, nil
	}
	return entity.ParseReportKind(pos[0])
}

func (c *CLI) sendReport(ctx context.Context, app *appServer.Components, args []string) error {
	pos, err := parse(c.flagSet("send-report"), args, 0)
	if err != nil {
		return err
	}
	kind, err := reportKind(pos)
	if err != nil {
		return err
	}

	out := app.ReportService.Dispatch(ctx, kind, c.now())
	if !out.Delivered() {
		return fmt.Errorf("failed to send report: %s", out.Reason)
	}

	name := string(kind)
	fmt.Fprintf(c.out, "✓ %s report sent to Telegram (%d clicks, %d attempt(s))\n",
		strings.ToUpper(name[:1])+name[1:], out.Count, out.Attempts)
	return nil
}

func (c *CLI) preview(ctx context.Context, app *appServer.Components, args []string) error {
	pos, err := parse(c.flagSet("preview"), args, 0)
	if err != nil {
		return err
	}
	kind, err := reportKind(pos)
	if err != nil {
		return err
	}

	text, err := app.ReportService.Preview(ctx, kind, c.now())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, text)
	return nil
}

// configSummary is the body of the test message.
func configSummary(cfg *config.Config, next map[string]time.Time, loc *time.Location) string {
	const layout = "02.01.2006 15:04"
	var b strings.Builder
	b.WriteString("✅ <b>Link tracker is configured</b>\n\n")
	fmt.Fprintf(&b, "📊 Daily report: %s, next %s\n",
		html.EscapeString(cfg.Report.DailyTime), next[string(entity.ReportDaily)].In(loc).Format(layout))
	fmt.Fprintf(&b, "📈 Weekly report: %s %s, next %s\n",
		html.EscapeString(cfg.Report.WeeklyDay), html.EscapeString(cfg.Report.WeeklyTime),
		next[string(entity.ReportWeekly)].In(loc).Format(layout))
	fmt.Fprintf(&b, "🌍 Timezone: %s\n", html.EscapeString(loc.String()))
	fmt.Fprintf(&b, "🗄 Database: %s", html.EscapeString(cfg.Database.Driver))
	return b.String()
}

func (c *CLI) testMessage(ctx context.Context, app *appServer.Components, args []string) error {
	if _, err := parse(c.flagSet("test-message"), args, 0); err != nil {
		return err
	}

	supervisor, err := appServer.NewReportSupervisor(&c.cfg.Report, app.ReportService)
	if err != nil {
		return err
	}

	text := configSummary(c.cfg, supervisor.NextFires(c.now()), app.Location)
	if err := app.ReportService.SendTestMessage(ctx, text); err != nil {
		if errors.Is(err, entity.ErrNoTransport) {
			return errors.New("telegram bot token and chat id must be configured")
		}
		return fmt.Errorf("failed to send test message: %w", err)
	}

	fmt.Fprintln(c.out, "✓ Test message sent to Telegram")
	return nil
}
