package workers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"tourney-service/models"
	"tourney-service/provider"
	"tourney-service/services"
)

// Engine is the slice of the game lifecycle engine the poller drives.
type Engine interface {
	PendingGames(ctx context.Context) ([]models.GameInstance, error)
	Reconcile(ctx context.Context, gameID string) (services.Transition, error)
	SweepStaleGames(ctx context.Context) (int, error)
}

// Options tune the reconciliation loop.
type Options struct {
	Interval       time.Duration
	MaxConcurrency int
	PollTimeout    time.Duration // per game, covers the lobby and result calls
}

// CycleReport summarizes one RunOnce.
type CycleReport struct {
	Games    int
	Advanced int
	Failed   int
	Swept    int
}

// ReconcileWorker periodically reconciles every pending game with the
// provider. It is also the entry point for on-demand reconciles, so a game is
// never reconciled by two callers at once.
type ReconcileWorker struct {
	engine  Engine
	opts    Options
	clock   clockwork.Clock
	log     *zap.Logger
	metrics *Metrics

	flight    singleflight.Group
	scheduler gocron.Scheduler
	running   atomic.Bool
}

func NewReconcileWorker(engine Engine, opts Options, clock clockwork.Clock, metrics *Metrics, logger *zap.Logger) *ReconcileWorker {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 20 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &ReconcileWorker{
		engine:  engine,
		opts:    opts,
		clock:   clock,
		log:     logger.Named("poller"),
		metrics: metrics,
	}
}

// Start schedules RunOnce every Interval, first run immediately. Cycles never
// overlap: a cycle still running when the next is due causes a skip.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(w.clock))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(w.opts.Interval),
		gocron.NewTask(func() {
			if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error("reconcile cycle failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("reconcile-pending-games"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule reconcile job: %w", err)
	}

	w.scheduler = sched
	sched.Start()
	w.log.Info("✅ reconcile poller started",
		zap.Duration("interval", w.opts.Interval),
		zap.Int("concurrency", w.opts.MaxConcurrency),
	)
	return nil
}

// Stop waits for the running cycle and stops scheduling new ones.
func (w *ReconcileWorker) Stop() error {
	if w.scheduler == nil {
		return nil
	}
	return w.scheduler.Shutdown()
}

// RunOnce sweeps stale games, then reconciles every pending game with at
// most MaxConcurrency calls in flight. A failing game is logged and counted;
// it does not stop the others. Only a failure to list games is returned.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	if !w.running.CompareAndSwap(false, true) {
		w.log.Debug("reconcile cycle already running, skipping")
		return report, nil
	}
	defer w.running.Store(false)

	start := w.clock.Now()
	defer func() {
		w.metrics.Cycles.Inc()
		w.metrics.CycleDuration.Observe(w.clock.Since(start).Seconds())
	}()

	swept, err := w.engine.SweepStaleGames(ctx)
	if err != nil {
		w.log.Warn("stale sweep failed", zap.Error(err))
	}
	report.Swept = swept
	w.metrics.StaleSwept.Add(float64(swept))

	games, err := w.engine.PendingGames(ctx)
	if err != nil {
		return report, fmt.Errorf("load pending games: %w", err)
	}
	report.Games = len(games)

	var advanced, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.opts.MaxConcurrency)
	for _, game := range games {
		if ctx.Err() != nil {
			break
		}
		gameID := game.ID
		g.Go(func() error {
			tr, err := w.Reconcile(ctx, gameID)
			if err != nil {
				failed.Add(1)
				return nil
			}
			if tr.Changed() {
				advanced.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Advanced = int(advanced.Load())
	report.Failed = int(failed.Load())
	if report.Games > 0 {
		w.log.Info("reconcile cycle finished",
			zap.Int("games", report.Games),
			zap.Int("advanced", report.Advanced),
			zap.Int("failed", report.Failed),
			zap.Int("swept", report.Swept),
		)
	}
	return report, ctx.Err()
}

// Reconcile runs one bounded reconcile of gameID. Concurrent callers for the
// same game share the in-flight call.
func (w *ReconcileWorker) Reconcile(ctx context.Context, gameID string) (services.Transition, error) {
	v, err, _ := w.flight.Do(gameID, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, w.opts.PollTimeout)
		defer cancel()
		tr, err := w.engine.Reconcile(callCtx, gameID)
		w.record(gameID, tr, err)
		return tr, err
	})
	tr, _ := v.(services.Transition)
	return tr, err
}

func (w *ReconcileWorker) record(gameID string, tr services.Transition, err error) {
	if tr.Started {
		w.metrics.Transitions.WithLabelValues(string(models.GameStatusActive)).Inc()
	}
	if tr.Finished {
		w.metrics.Transitions.WithLabelValues(string(models.GameStatusFinished)).Inc()
	}

	switch {
	case err == nil && tr.Changed():
		w.metrics.Polls.WithLabelValues(OutcomeAdvanced).Inc()
	case err == nil:
		w.metrics.Polls.WithLabelValues(OutcomeUnchanged).Inc()
	case provider.IsTransient(err) || errors.Is(err, context.DeadlineExceeded):
		w.metrics.Polls.WithLabelValues(OutcomeTransient).Inc()
		w.log.Warn("game reconcile deferred", zap.String("game_id", gameID), zap.Error(err))
	default:
		w.metrics.Polls.WithLabelValues(OutcomeFailed).Inc()
		w.log.Error("game reconcile failed", zap.String("game_id", gameID), zap.Error(err))
	}
}
