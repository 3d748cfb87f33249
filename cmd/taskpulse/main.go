package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"taskpulse/internal/api"
	"taskpulse/internal/config"
	"taskpulse/internal/notify"
	"taskpulse/internal/store"
	"taskpulse/internal/sweep"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep tick and exit (for external cron)")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.Database.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	st := store.NewSQLiteStore(db, store.Options{
		OverdueExempt:    cfg.Sweep.OverdueExempt,
		ReminderEligible: cfg.Sweep.ReminderEligible,
	})

	var sink notify.Sink = notify.LogSink{}
	if cfg.SMTP.Host != "" {
		sink = notify.NewSMTPSink(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	}

	sweeper := sweep.New(st, sink, cfg.Sweep.UpcomingWindow)

	if *once {
		sweeper.RunOnce(context.Background(), time.Now())
		return
	}

	var driver sweep.Driver
	if cfg.Sweep.CronExpr != "" {
		driver, err = sweep.NewCronDriver(cfg.Sweep.CronExpr)
		if err != nil {
			log.Fatal().Err(err).Str("cron", cfg.Sweep.CronExpr).Msg("invalid sweep cron expression")
		}
	} else {
		driver = sweep.NewIntervalDriver(cfg.Sweep.Interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go driver.Start(ctx, sweeper.RunOnce)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: api.NewServer(st)}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	driver.Stop()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
