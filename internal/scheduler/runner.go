package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Handler executes a job. A returned error schedules a retry.
type Handler func(ctx context.Context, job Job) error

type route struct {
	prefix  string
	handler Handler
}

// Runner polls for due jobs and dispatches them by key prefix.
type Runner struct {
	sched  *Scheduler
	cfg    *config.SchedulerConfig
	routes []route
	now    func() time.Time
}

// NewRunner creates a runner. Register handlers with Handle before Run.
func NewRunner(sched *Scheduler, cfg *config.SchedulerConfig) *Runner {
	validation.AssertNotNil(sched, "scheduler: scheduler")
	validation.AssertNotNil(cfg, "scheduler: config")
	return &Runner{sched: sched, cfg: cfg, now: time.Now}
}

// Handle routes jobs whose key starts with prefix to h.
func (r *Runner) Handle(prefix string, h Handler) {
	r.routes = append(r.routes, route{prefix: prefix, handler: h})
}

// Run polls until ctx is cancelled. It always returns nil on cancellation;
// failed polls are logged and retried on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("scheduler runner started",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Duration("lease", r.cfg.Lease),
		slog.Int("routes", len(r.routes)),
	)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler runner stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil && ctx.Err() == nil {
				log.Error("scheduler poll failed", slog.Any("error", err))
			}
		}
	}
}

// Poll performs one cycle: requeue expired leases, claim due jobs, run them.
// It returns the number of jobs dispatched to a handler.
func (r *Runner) Poll(ctx context.Context) (int, error) {
	now := r.now()

	if n, err := r.sched.requeueExpired(ctx, now, r.cfg.BatchSize); err != nil {
		return 0, err
	} else if n > 0 {
		logger.FromContext(ctx).Warn("requeued jobs with expired leases", slog.Int("count", n))
	}

	jobs, err := r.sched.claim(ctx, now, now.Add(r.cfg.Lease), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, c := range jobs {
		if ctx.Err() != nil {
			// Unprocessed claims go back to the due set once their lease expires.
			break
		}
		if r.execute(ctx, now, c) {
			dispatched++
		}
	}

	if depth, err := r.sched.Depth(ctx); err == nil {
		observability.SchedulerQueueDepth.Set(float64(depth))
	}
	return dispatched, nil
}

func (r *Runner) execute(ctx context.Context, now time.Time, c claimed) bool {
	log := logger.FromContext(ctx).With(slog.String("job_key", c.job.Key))

	if late := now.Sub(c.job.RunAt); late > r.cfg.MisfireGrace {
		log.Warn("dropping misfired job",
			slog.Time("run_at", c.job.RunAt),
			slog.Duration("late_by", late),
		)
		observability.SchedulerJobs.WithLabelValues("misfire").Inc()
		r.ack(ctx, c)
		return false
	}

	h := r.handlerFor(c.job.Key)
	if h == nil {
		log.Error("no handler for job, dropping")
		observability.SchedulerJobs.WithLabelValues("unroutable").Inc()
		r.ack(ctx, c)
		return false
	}

	if err := r.invoke(ctx, h, *c.job); err != nil {
		retryAt := r.now().Add(r.cfg.RetryDelay)
		outcome, rerr := r.sched.retry(ctx, c, retryAt)
		switch {
		case rerr != nil:
			log.Error("failed to requeue job, lease expiry will retry it", slog.Any("error", rerr))
		case outcome == retryScheduled:
			log.Warn("job failed, retry scheduled", slog.Any("error", err), slog.Time("retry_at", retryAt))
		case outcome == retrySuperseded:
			log.Warn("job failed, superseded by a newer schedule", slog.Any("error", err))
		default:
			log.Warn("job failed after its lease was lost, not requeued", slog.Any("error", err))
		}
		observability.SchedulerJobs.WithLabelValues("retry").Inc()
		return true
	}

	observability.SchedulerJobs.WithLabelValues("success").Inc()
	r.ack(ctx, c)
	return true
}

// invoke runs h and turns a panic into an error so one job cannot kill the runner.
func (r *Runner) invoke(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, job)
}

func (r *Runner) ack(ctx context.Context, c claimed) {
	if err := r.sched.ack(ctx, c); err != nil {
		logger.FromContext(ctx).Error("failed to ack job",
			slog.String("job_key", c.job.Key),
			slog.Any("error", err),
		)
	}
}

func (r *Runner) handlerFor(key string) Handler {
	for _, rt := range r.routes {
		if strings.HasPrefix(key, rt.prefix) {
			return rt.handler
		}
	}
	return nil
}
