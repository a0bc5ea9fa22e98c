package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/config"
)

const usage = `usage: linktracker-cli <command> [flags] [args]

commands:
  init-db                      create or migrate the database
  create <code> <url>          create a link (-title)
  update <code> [url]          change target URL and/or title (-title)
  delete <code>                delete a link and its clicks
  reset-clicks <code>          delete all clicks of a link (-force)
  list                         list links with click totals (-limit)
  stats <code>                 clicks of a link over the last days (-days)
  clicks <code>                recent clicks of a link (-limit)
  send-report [daily|weekly]   send a report to Telegram now
  preview [daily|weekly]       print a report without sending it
  test-message                 send a configuration summary to Telegram
`

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.WarnLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &CLI{cfg: cfg, out: os.Stdout, in: os.Stdin}
	if err := cli.Run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		stop()
		os.Exit(1)
	}
}
