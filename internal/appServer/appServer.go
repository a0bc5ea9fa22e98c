package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/config"
	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/internal/service"
	"github.com/ds124wfegd/linktracker/internal/transport"
	"github.com/ds124wfegd/linktracker/internal/worker"
	"github.com/ds124wfegd/linktracker/pkg/logger"
	"github.com/ds124wfegd/linktracker/pkg/scheduler"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// NewReportSupervisor parses the configured schedules and binds each report
// kind to the dispatcher. A bad time, weekday or timezone is an error here,
// before anything is scheduled.
func NewReportSupervisor(cfg *config.ReportConfig, reports service.ReportService, opts ...scheduler.ClockOption) (*scheduler.Supervisor, error) {
	daily, err := scheduler.ParseRule(cfg.DailyTime, "", cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("daily report schedule: %w", err)
	}
	weekly, err := scheduler.ParseRule(cfg.WeeklyTime, cfg.WeeklyDay, cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("weekly report schedule: %w", err)
	}

	dispatch := func(kind entity.ReportKind) scheduler.RunFunc {
		return func(ctx context.Context, scheduledAt time.Time) {
			reports.Dispatch(ctx, kind, scheduledAt)
		}
	}

	return scheduler.NewSupervisor(cfg.ShutdownTimeout, []scheduler.Job{
		{Name: string(entity.ReportDaily), Rule: daily, Run: dispatch(entity.ReportDaily)},
		{Name: string(entity.ReportWeekly), Rule: weekly, Run: dispatch(entity.ReportWeekly)},
	}, opts...)
}

// NewServer runs the redirect API, the report scheduler and the click
// consumer until SIGINT or SIGTERM.
func NewServer(cfg *config.Config) error {
	logCloser, err := logger.Setup(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	components, err := NewComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logrus.Errorf("error occurred while closing resources: %v", err)
		}
	}()

	supervisor, err := NewReportSupervisor(&cfg.Report, components.ReportService)
	if err != nil {
		return err
	}
	for name, at := range supervisor.NextFires(time.Now()) {
		logrus.WithFields(logrus.Fields{
			"schedule": name,
			"next_run": at.In(components.Location),
		}).Info("Report scheduled")
	}

	var wg sync.WaitGroup
	var schedulerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		schedulerErr = supervisor.Run(ctx)
	}()

	if components.ClickQueue != nil {
		consumer := worker.NewClickConsumer(components.ClickQueue, components.LinkService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				logrus.Errorf("Click consumer error: %v", err)
			}
		}()
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	linkHandler := transport.NewLinkHandler(components.LinkService)
	router := transport.InitRoutes(
		transport.RouterOptions{
			Version:        cfg.Server.AppVersion,
			RequestTimeout: cfg.Server.RequestTimeout,
			Metrics:        components.Metrics,
			Checks:         components.HealthChecks(),
		},
		linkHandler,
		linkHandler,
		transport.NewReportHandler(components.StatsService, components.ReportService, components.DLQ),
	)

	srv := new(Server)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logrus.WithField("addr", cfg.ServerAddress()).Print("App Started")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logrus.Errorf("error occurred while running http server: %s", err.Error())
		stop()
	}

	logrus.Print("App Shutting Down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Report.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occurred on server shutting down: %s", err.Error())
	}

	wg.Wait()
	return schedulerErr
}
