package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"quadlend/crypto"
	"quadlend/native/lending"
	"quadlend/observability/metrics"
	telemetry "quadlend/observability/otel"
)

// Pool is the lending surface the keeper automates.
type Pool interface {
	CheckUpkeep() (bool, []byte, error)
	PerformUpkeep(payload []byte) (*lending.UpkeepReport, error)
	Lenders() ([]crypto.Address, error)
	BatchCreditInterest(accounts []crypto.Address) (*lending.BatchReport, error)
	Totals() (*lending.PoolTotals, error)
	Config() lending.Config
}

// Applier commits a unit of work atomically.
type Applier interface {
	Apply(fn func() error) error
}

// Config controls the keeper cadence.
type Config struct {
	Interval time.Duration
	// CreditEvery runs the batch interest sweep once every N ticks. Zero
	// disables it.
	CreditEvery int
}

// Report summarises one tick.
type Report struct {
	RunID      string
	Executed   int
	Skipped    int
	Credited   int
	Liquidated []crypto.Address
}

// Keeper drives liquidation upkeep and lender interest crediting on a timer.
type Keeper struct {
	pool   Pool
	store  Applier
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	ticks  int
}

// New constructs a keeper.
func New(pool Pool, store Applier, cfg Config, logger *slog.Logger) (*Keeper, error) {
	if pool == nil || store == nil {
		return nil, fmt.Errorf("keeper: pool and store required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("keeper: interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		pool:   pool,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "keeper"),
		tracer: telemetry.Tracer("quadlend/keeper"),
	}, nil
}

// Run ticks until the context is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()
	k.logger.Info("keeper started", "interval", k.cfg.Interval.String(), "creditEvery", k.cfg.CreditEvery)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := k.Tick(ctx); err != nil {
				k.logger.Warn("keeper tick failed", "error", err)
			}
		}
	}
}

// Tick performs one upkeep pass and, on schedule, one interest sweep.
func (k *Keeper) Tick(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	ctx, span := k.tracer.Start(ctx, "keeper.tick", trace.WithAttributes(attribute.String("run_id", report.RunID)))
	defer span.End()
	logger := k.logger.With("run", report.RunID)

	err := k.upkeep(ctx, report)
	k.ticks++
	if err == nil && k.cfg.CreditEvery > 0 && k.ticks%k.cfg.CreditEvery == 0 {
		err = k.credit(ctx, report)
	}
	k.observePool()

	span.SetAttributes(
		attribute.Int("executed", report.Executed),
		attribute.Int("skipped", report.Skipped),
		attribute.Int("credited", report.Credited),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Lending().ObserveUpkeep("error")
		return report, err
	}
	metrics.Lending().ObserveUpkeep("ok")
	if report.Executed > 0 || report.Credited > 0 {
		logger.Info("keeper tick", "executed", report.Executed, "skipped", report.Skipped, "credited", report.Credited)
	}
	return report, nil
}

func (k *Keeper) upkeep(ctx context.Context, report *Report) error {
	_, span := k.tracer.Start(ctx, "keeper.upkeep")
	defer span.End()
	return k.store.Apply(func() error {
		needed, payload, err := k.pool.CheckUpkeep()
		if err != nil || !needed {
			return err
		}
		result, err := k.pool.PerformUpkeep(payload)
		if err != nil {
			return err
		}
		report.Executed = len(result.Executed)
		report.Skipped = len(result.Skipped)
		report.Liquidated = append(report.Liquidated, result.Executed...)
		return nil
	})
}

// credit sweeps the lender index in chunks no larger than the pool's batch
// cap; each chunk commits on its own. Pool reads go through the store so they
// never see another operation's staged writes.
func (k *Keeper) credit(ctx context.Context, report *Report) error {
	_, span := k.tracer.Start(ctx, "keeper.credit")
	defer span.End()
	var (
		lenders []crypto.Address
		size    int
	)
	err := k.store.Apply(func() error {
		var err error
		lenders, err = k.pool.Lenders()
		size = k.pool.Config().MaxBatchSize
		return err
	})
	if err != nil {
		return err
	}
	if size <= 0 {
		size = len(lenders)
	}
	var errs []error
	for start := 0; start < len(lenders); start += size {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + size
		if end > len(lenders) {
			end = len(lenders)
		}
		chunk := lenders[start:end]
		err := k.store.Apply(func() error {
			result, err := k.pool.BatchCreditInterest(chunk)
			if err != nil {
				return err
			}
			report.Credited += len(result.Processed)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	metrics.Lending().ObserveCredited(report.Credited)
	return errors.Join(errs...)
}

func (k *Keeper) observePool() {
	var totals *lending.PoolTotals
	err := k.store.Apply(func() error {
		var err error
		totals, err = k.pool.Totals()
		return err
	})
	if err != nil {
		return
	}
	metrics.Lending().ObservePool(totals.TotalLent, totals.Cash, totals.TotalBorrowed, totals.BadDebt)
}
