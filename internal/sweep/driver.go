package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// TickFunc is one sweep execution.
type TickFunc func(ctx context.Context, now time.Time)

// Driver owns the schedule that fires sweep ticks. Start blocks until the
// context is canceled or Stop is called; callers run it on its own goroutine
// so ticks never share an execution context with request handling.
type Driver interface {
	Start(ctx context.Context, fn TickFunc)
	Stop()
}

// IntervalDriver fires on a fixed ticker.
type IntervalDriver struct {
	interval time.Duration
	stop     chan struct{}
}

func NewIntervalDriver(interval time.Duration) *IntervalDriver {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalDriver{interval: interval, stop: make(chan struct{})}
}

func (d *IntervalDriver) Start(ctx context.Context, fn TickFunc) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", d.interval).Msg("sweep driver started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case now := <-ticker.C:
			fn(ctx, now)
		}
	}
}

func (d *IntervalDriver) Stop() {
	close(d.stop)
}

// CronDriver fires on a standard cron expression, for operators who want
// sweeps aligned to wall-clock boundaries rather than process start.
type CronDriver struct {
	expr string
	c    *cron.Cron
	stop chan struct{}
}

func NewCronDriver(expr string) (*CronDriver, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, err
	}
	return &CronDriver{expr: expr, c: cron.New(), stop: make(chan struct{})}, nil
}

func (d *CronDriver) Start(ctx context.Context, fn TickFunc) {
	// Expression validated in the constructor.
	_, _ = d.c.AddFunc(d.expr, func() {
		fn(ctx, time.Now())
	})
	d.c.Start()

	log.Info().Str("cron", d.expr).Msg("sweep driver started")

	select {
	case <-ctx.Done():
	case <-d.stop:
	}
	<-d.c.Stop().Done()
}

func (d *CronDriver) Stop() {
	close(d.stop)
}
