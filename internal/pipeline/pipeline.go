package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/los-review/internal/config"
	"github.com/sells-group/los-review/internal/model"
	"github.com/sells-group/los-review/internal/registry"
	"github.com/sells-group/los-review/internal/resilience"
	"github.com/sells-group/los-review/internal/store"
)

// Mode selects which analysis a run produces.
type Mode string

const (
	// ModeSingle labels the latest registered final prediction per note date.
	ModeSingle Mode = "single"
	// ModeDual joins every registered final version with the raw family.
	ModeDual Mode = "dual"
	// ModeReview is ModeSingle narrowed to a balanced sample of encounters.
	ModeReview Mode = "review"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSingle, ModeDual, ModeReview:
		return m, nil
	default:
		return "", eris.Errorf("pipeline: unknown mode %q (want single, dual or review)", s)
	}
}

// Stats counts records at each stage of a run.
type Stats struct {
	CurrentSnapshots    int            `json:"current_snapshots"`
	HistoricalSnapshots int            `json:"historical_snapshots"`
	Eligible            int            `json:"eligible"`
	Rows                int            `json:"rows"`
	SampledEncounters   map[string]int `json:"sampled_encounters,omitempty"`
	DurationMs          int64          `json:"duration_ms"`
}

// Result is the output of one run. RunID and Stats are metadata; Rows depend
// only on the stored snapshots and configuration.
type Result struct {
	RunID string      `json:"run_id"`
	Mode  Mode        `json:"mode"`
	Rows  []model.Row `json:"rows"`
	Stats Stats       `json:"stats"`
}

// Pipeline reads both record stores and reconciles them into review rows.
type Pipeline struct {
	store      store.Store
	reconciler *Reconciler
	task       string
	sampleCap  int
	filter     store.SnapshotFilter
	retry      resilience.RetryConfig
}

// New creates a Pipeline from configuration.
func New(cfg *config.Config, st store.Store, reg *registry.VersionRegistry) *Pipeline {
	retry := resilience.DefaultRetryConfig()
	if cfg.Store.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Store.RetryAttempts
	}
	return &Pipeline{
		store: st,
		reconciler: NewReconciler(reg, Options{
			ThresholdDays:  cfg.Review.ThresholdDays,
			SampleCap:      cfg.Review.SampleCap,
			ExclusionTerms: cfg.Review.ExclusionTerms,
		}),
		task:      cfg.Task.Key,
		sampleCap: cfg.Review.SampleCap,
		retry:     retry,
	}
}

// WithFilter restricts reads to the given encounters.
func (p *Pipeline) WithFilter(filter store.SnapshotFilter) *Pipeline {
	p.filter = filter
	return p
}

// Run executes one batch. Empty output is a valid result.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.New().String(), Mode: mode}
	log := zap.L().With(zap.String("run_id", res.RunID), zap.String("mode", string(mode)))
	log.Info("pipeline: starting")

	current, historical, err := p.loadSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	res.Stats.CurrentSnapshots = len(current)
	res.Stats.HistoricalSnapshots = len(historical)

	pool := ResolveDischarge(AssignSequence(current, historical))
	res.Stats.Eligible = len(FilterEligible(pool))

	switch mode {
	case ModeSingle:
		res.Rows = p.reconciler.Single(pool)
	case ModeDual:
		res.Rows = p.reconciler.Dual(pool)
	case ModeReview:
		sample := Sample(p.reconciler.Single(pool), p.sampleCap)
		res.Rows = sample.Rows
		res.Stats.SampledEncounters = make(map[string]int, len(sample.ByClass))
		for label, ids := range sample.ByClass {
			res.Stats.SampledEncounters[label.String()] = len(ids)
		}
	default:
		return nil, eris.Errorf("pipeline: unknown mode %q", mode)
	}

	res.Stats.Rows = len(res.Rows)
	res.Stats.DurationMs = time.Since(start).Milliseconds()
	log.Info("pipeline: complete",
		zap.Int("current", res.Stats.CurrentSnapshots),
		zap.Int("historical", res.Stats.HistoricalSnapshots),
		zap.Int("eligible", res.Stats.Eligible),
		zap.Int("rows", res.Stats.Rows),
		zap.Int64("duration_ms", res.Stats.DurationMs),
	)
	return res, nil
}

// loadSnapshots reads both stores concurrently, retrying transient failures.
func (p *Pipeline) loadSnapshots(ctx context.Context) (current, historical []model.Snapshot, err error) {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		retry := p.retry
		retry.OnRetry = resilience.RetryLogger("current snapshots")
		snaps, loadErr := resilience.DoVal(gCtx, retry, func(ctx context.Context) ([]model.Snapshot, error) {
			return p.store.CurrentSnapshots(ctx, p.task, p.filter)
		})
		if loadErr != nil {
			return eris.Wrap(loadErr, "pipeline: load current snapshots")
		}
		current = snaps
		return nil
	})
	g.Go(func() error {
		retry := p.retry
		retry.OnRetry = resilience.RetryLogger("historical snapshots")
		snaps, loadErr := resilience.DoVal(gCtx, retry, func(ctx context.Context) ([]model.Snapshot, error) {
			return p.store.HistoricalSnapshots(ctx, p.task, p.filter)
		})
		if loadErr != nil {
			return eris.Wrap(loadErr, "pipeline: load historical snapshots")
		}
		historical = snaps
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return current, historical, nil
}
