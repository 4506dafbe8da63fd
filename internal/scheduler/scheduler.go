package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	obsmetrics "github.com/smallbiznis/gymledger/internal/observability/metrics"
	"github.com/smallbiznis/gymledger/internal/ratelimit"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	vatdomain "github.com/smallbiznis/gymledger/internal/vat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRecomputeVAT  = "recompute_vat"
	JobPurgeSettings = "purge_settings"

	defaultLockTTL = 2 * time.Minute
	jobTimeout     = time.Minute
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_job")
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	VatSvc     vatdomain.Service
	SettingSvc settingdomain.Service
	Locker     *ratelimit.Locker      `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
}

type job struct {
	name string
	spec string
	run  func(context.Context) error
}

// Scheduler runs the periodic ledger maintenance jobs. With a Locker only
// one replica runs a given tick.
type Scheduler struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	vatSvc     vatdomain.Service
	settingSvc settingdomain.Service
	locker     *ratelimit.Locker
	lockTTL    time.Duration
	metrics    *obsmetrics.JobMetrics
	cron       *cron.Cron
	jobs       map[string]job
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.VatSvc == nil || p.SettingSvc == nil {
		return nil, ErrInvalidConfig
	}

	lockTTL := p.Cfg.Jobs.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	log := p.Log.Named("scheduler")

	s := &Scheduler{
		log:        log,
		genID:      p.GenID,
		clock:      p.Clock,
		vatSvc:     p.VatSvc,
		settingSvc: p.SettingSvc,
		locker:     p.Locker,
		lockTTL:    lockTTL,
		metrics:    p.JobMetrics,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{log: log})),
		),
		jobs: map[string]job{},
	}

	for _, j := range []job{
		{name: JobRecomputeVAT, spec: p.Cfg.Jobs.RecomputeVATCron, run: s.RecomputeVAT},
		{name: JobPurgeSettings, spec: p.Cfg.Jobs.PurgeSettingsCron, run: s.PurgeSettings},
	} {
		if err := s.register(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) register(j job) error {
	s.jobs[j.name] = j
	if j.spec == "" {
		s.log.Info("job not scheduled", zap.String("job", j.name))
		return nil
	}
	name := j.name
	if _, err := s.cron.AddFunc(j.spec, func() {
		_ = s.RunJob(context.Background(), name)
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", j.name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunJob runs one job now, under the job lock when one is configured.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)
	exec := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		start := s.clock.Now()
		s.metrics.IncRun(name)
		log.Debug("job started")
		err := j.run(ctx)
		elapsed := s.clock.Now().Sub(start)
		s.metrics.ObserveDuration(name, elapsed)
		if err != nil {
			return err
		}
		log.Info("job finished", zap.Duration("duration", elapsed))
		return nil
	}

	var err error
	if s.locker != nil {
		var acquired bool
		acquired, err = s.locker.WithLock(ctx, "job:"+name, s.lockTTL, exec)
		if err == nil && !acquired {
			s.metrics.IncSkipped(name)
			log.Debug("job skipped; lock held elsewhere")
			return nil
		}
	} else {
		err = exec(ctx)
	}

	if err != nil {
		s.metrics.IncError(name, err)
		log.Error("job failed", zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// RecomputeVAT refreshes every entity's revenue cache and the routing snapshot.
func (s *Scheduler) RecomputeVAT(ctx context.Context) error {
	positions, err := s.vatSvc.Positions(ctx)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		if pos.Risk.Rank() >= vatdomain.RiskCritical.Rank() {
			s.log.Warn("entity near vat threshold",
				zap.String("entity_id", pos.EntityID.String()),
				zap.String("entity", pos.Name),
				zap.String("risk", string(pos.Risk)),
				zap.Float64("headroom", pos.Headroom),
			)
		}
	}
	s.log.Info("vat positions recomputed", zap.Int("entities", len(positions)))
	return nil
}

func (s *Scheduler) PurgeSettings(ctx context.Context) error {
	purged, err := s.settingSvc.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		s.log.Info("expired settings purged", zap.Int64("rows", purged))
	}
	return nil
}
