package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/progress"
)

// Deps are the collaborators an Engine drives.
type Deps struct {
	Store   catalog.Store
	Details DetailFetcher
	// Filter is consulted only when Config.NameFilter is set.
	Filter    NameFilter
	Publisher Publisher
	// Sync is required by Serve only.
	Sync    *Synchronizer
	Pacer   Pacer
	Pauser  Pauser
	Clock   Clock
	Emitter progress.Emitter
	Logger  *zap.Logger
}

// Summary reports one crawl pass.
type Summary struct {
	RunID     uuid.UUID
	Processed int
	Cooldowns int
	// Stopped is set when the pass ended because ctx was canceled.
	Stopped bool
	Stats   catalog.Stats
}

// Engine is the single-worker crawl driver.
type Engine struct {
	cfg       Config
	store     catalog.Store
	details   DetailFetcher
	filter    NameFilter
	persister *Persister
	sync      *Synchronizer
	pacer     Pacer
	pauser    Pauser
	clock     Clock
	emitter   progress.Emitter
	logger    *zap.Logger
}

const tracerName = "github.com/JakeFAU/steam-catalog-crawler/internal/crawler"

// errStopped marks a pacing wait cut short by ctx; no request was issued.
var errStopped = errors.New("crawl stopped")

type noPacing struct{}

func (noPacing) Wait(ctx context.Context) error { return ctx.Err() }

// NewEngine validates cfg and wires the engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.New("crawler store is required")
	}
	if deps.Details == nil {
		return nil, errors.New("crawler detail fetcher is required")
	}
	if cfg.NameFilter && deps.Filter == nil {
		return nil, errors.New("crawler name filter is enabled but not provided")
	}
	e := &Engine{
		cfg:     cfg,
		store:   deps.Store,
		details: deps.Details,
		filter:  deps.Filter,
		sync:    deps.Sync,
		pacer:   deps.Pacer,
		pauser:  deps.Pauser,
		clock:   deps.Clock,
		emitter: deps.Emitter,
		logger:  deps.Logger,
	}
	if e.pacer == nil {
		e.pacer = noPacing{}
	}
	if e.pauser == nil {
		e.pauser = timerPauser{}
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.emitter == nil {
		e.emitter = progress.Discard
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.persister = NewPersister(deps.Store, deps.Publisher, cfg.Topic, e.logger)
	return e, nil
}

// itemResult is what one processed item contributes to the pass.
type itemResult struct {
	outcome  string
	status   catalog.Status
	filtered bool
	// weight is added to the failure counter; negative resets it.
	weight int
}

// Run performs one pass over the items selected by the configured Selection.
// Per-item failures never end the pass; only store errors are returned. When
// ctx is canceled the in-flight item finishes, final stats are recorded and
// Run returns with Summary.Stopped set and a nil error.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "crawl.pass")
	defer span.End()

	summary, err := e.run(ctx)
	span.SetAttributes(
		attribute.String("run_id", summary.RunID.String()),
		attribute.Int("processed", summary.Processed),
		attribute.Int("cooldowns", summary.Cooldowns),
		attribute.Bool("stopped", summary.Stopped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return summary, err
}

func (e *Engine) run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.New()}
	start := time.Now()

	state, err := e.store.LoadState(ctx)
	if err != nil {
		return summary, fmt.Errorf("load crawl state: %w", err)
	}
	counter := failureCounter{count: state.ConsecutiveFailures, threshold: e.cfg.FailureThreshold}

	items, err := e.store.PendingItems(ctx, e.cfg.Selection)
	if err != nil {
		return summary, fmt.Errorf("select pending items: %w", err)
	}
	e.logger.Info("crawl pass starting",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("items", len(items)),
		zap.Int("consecutive_failures", counter.count),
		zap.Bool("shuffle", e.cfg.Selection.Shuffle),
		zap.Bool("retry_failed", e.cfg.Selection.RetryFailed),
		zap.Bool("name_filter", e.cfg.NameFilter),
	)
	e.emit(summary.RunID, progress.Event{Stage: progress.StageRunStart})

	for _, item := range items {
		if ctx.Err() != nil {
			summary.Stopped = true
			break
		}
		itemStart := time.Now()
		res, err := e.processItem(ctx, item)
		if err != nil {
			if errors.Is(err, errStopped) {
				summary.Stopped = true
				break
			}
			return summary, err
		}
		summary.Processed++

		cooldown, err := e.track(ctx, &counter, res.weight)
		if err != nil {
			return summary, err
		}
		e.emit(summary.RunID, progress.Event{
			Stage:    progress.StageItemDone,
			ItemID:   item.ID,
			Outcome:  res.outcome,
			Status:   res.status,
			Filtered: res.filtered,
			Dur:      time.Since(itemStart),
			Failures: counter.count,
		})
		if cooldown {
			summary.Cooldowns++
			if err := e.cooldown(ctx, summary.RunID, &counter); err != nil {
				if ctx.Err() != nil {
					summary.Stopped = true
					break
				}
				return summary, err
			}
		}
		if summary.Processed%e.cfg.StatsEvery == 0 {
			_, err := e.reportStats(context.WithoutCancel(ctx), summary.RunID, progress.StageStats, time.Since(start))
			if err != nil {
				return summary, err
			}
		}
	}

	stats, err := e.reportStats(context.WithoutCancel(ctx), summary.RunID, progress.StageRunDone, time.Since(start))
	if err != nil {
		return summary, err
	}
	summary.Stats = stats
	e.logger.Info("crawl pass finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("processed", summary.Processed),
		zap.Int("cooldowns", summary.Cooldowns),
		zap.Bool("stopped", summary.Stopped),
		zap.Duration("dur", time.Since(start)),
	)
	return summary, nil
}

// processItem runs filter, fetch, classify and persist for one item. Only the
// pacing wait observes ctx; once a request is issued the step runs to completion.
func (e *Engine) processItem(ctx context.Context, item catalog.Item) (itemResult, error) {
	work := context.WithoutCancel(ctx)
	if e.cfg.NameFilter && e.filter.LikelyExcluded(item.Name) {
		d := Excluded()
		if err := e.persister.Apply(work, item, d, e.clock.Now()); err != nil {
			return itemResult{}, err
		}
		e.logger.Debug("item excluded by name", zap.Int64("item_id", item.ID), zap.String("name", item.Name))
		return itemResult{outcome: "filtered", status: d.Status, filtered: true, weight: -1}, nil
	}

	if err := e.pacer.Wait(ctx); err != nil {
		return itemResult{}, fmt.Errorf("%w: %w", errStopped, err)
	}
	res := e.details.FetchDetail(work, item.ID)
	d := Classify(item, res, e.cfg.TargetType, e.cfg.TransientPolicy)
	if err := e.persister.Apply(work, item, d, e.clock.Now()); err != nil {
		return itemResult{}, err
	}

	out := itemResult{outcome: res.Outcome.String(), status: d.Status}
	switch res.Outcome {
	case OutcomeSuccess, OutcomeNotFound:
		out.weight = -1
	case OutcomeTransient:
		out.weight = 1
	case OutcomeRateLimited:
		out.weight = e.cfg.RateLimitWeight
	}
	fields := []zap.Field{
		zap.Int64("item_id", item.ID),
		zap.String("name", item.Name),
		zap.String("outcome", out.outcome),
		zap.String("status", d.Status.String()),
		zap.Int("attempts", res.Attempts),
	}
	switch res.Outcome {
	case OutcomeTransient, OutcomeRateLimited:
		e.logger.Warn("detail fetch failed", append(fields, zap.String("reason", res.Reason))...)
	default:
		e.logger.Debug("item classified", fields...)
	}
	return out, nil
}

// track applies weight to the counter, persists any change, and reports whether
// the cooldown threshold was reached.
func (e *Engine) track(ctx context.Context, counter *failureCounter, weight int) (bool, error) {
	switch {
	case weight == 0:
		return false, nil
	case weight < 0:
		if counter.count == 0 {
			return false, nil
		}
		counter.reset()
		return false, e.saveFailures(ctx, 0)
	}
	reached := counter.add(weight)
	return reached, e.saveFailures(ctx, counter.count)
}

// cooldown pauses for the configured period, then resets the counter.
func (e *Engine) cooldown(ctx context.Context, runID uuid.UUID, counter *failureCounter) error {
	resumeAt := e.clock.Now().Add(e.cfg.Cooldown)
	e.logger.Warn("consecutive failure threshold reached, cooling down",
		zap.Int("consecutive_failures", counter.count),
		zap.Duration("cooldown", e.cfg.Cooldown),
		zap.Time("resume_at", resumeAt),
	)
	e.emit(runID, progress.Event{Stage: progress.StageCooldown, Dur: e.cfg.Cooldown, Failures: counter.count})
	if err := e.pauser.Pause(ctx, e.cfg.Cooldown); err != nil {
		return fmt.Errorf("cooldown: %w", err)
	}
	counter.reset()
	e.logger.Info("cooldown finished, resuming")
	return e.saveFailures(ctx, 0)
}

func (e *Engine) saveFailures(ctx context.Context, n int) error {
	if err := e.store.SaveFailures(context.WithoutCancel(ctx), n); err != nil {
		return fmt.Errorf("save consecutive failures: %w", err)
	}
	return nil
}

// reportStats loads, persists, logs and emits the aggregate counts.
func (e *Engine) reportStats(
	ctx context.Context,
	runID uuid.UUID,
	stage progress.Stage,
	elapsed time.Duration,
) (catalog.Stats, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	if err := e.store.SaveStats(ctx, stats, e.clock.Now()); err != nil {
		return catalog.Stats{}, fmt.Errorf("save stats: %w", err)
	}
	e.logger.Info("catalog stats",
		zap.Int64("total", stats.Total),
		zap.Int64("pending", stats.Pending),
		zap.Int64("games", stats.Games),
		zap.Int64("not_games", stats.NotGames),
		zap.Int64("failed", stats.Failed),
		zap.Int64("filtered", stats.Filtered),
		zap.String("progress", fmt.Sprintf("%.2f%%", stats.Progress())),
	)
	snapshot := stats
	e.emit(runID, progress.Event{Stage: stage, Stats: &snapshot, Dur: elapsed})
	return stats, nil
}

func (e *Engine) emit(runID uuid.UUID, evt progress.Event) {
	evt.RunID = runID
	evt.TS = e.clock.Now()
	e.emitter.Emit(evt)
}

// Serve alternates listing syncs and crawl passes until ctx is canceled,
// waiting IdlePoll between passes. Sync failures are logged and retried on the
// next cycle.
func (e *Engine) Serve(ctx context.Context) error {
	if e.sync == nil {
		return errors.New("crawler serve requires a synchronizer")
	}
	idle := e.cfg.IdlePoll
	if idle <= 0 {
		idle = DefaultConfig().IdlePoll
	}
	for {
		if _, err := e.sync.Sync(ctx, false); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("listing sync failed", zap.Error(err))
		}
		summary, err := e.Run(ctx)
		if err != nil {
			return err
		}
		if summary.Stopped || ctx.Err() != nil {
			return nil
		}
		e.logger.Info("crawl pass idle", zap.Duration("next_pass_in", idle))
		if err := e.pauser.Pause(ctx, idle); err != nil {
			return nil
		}
	}
}
