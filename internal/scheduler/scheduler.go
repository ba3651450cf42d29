// Package scheduler flips special menu items on and off as their windows open and close.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bistro-cms/menuimport/internal/metrics"
	"github.com/robfig/cron/v3"
)

// DefaultSpec runs the refresh every quarter hour
const DefaultSpec = "*/15 * * * *"

// Refresher is the store operation the job drives
type Refresher interface {
	RefreshSpecials(ctx context.Context, now time.Time) (activated, expired int64, err error)
}

// Scheduler runs the specials refresh on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	store   Refresher
	metrics *metrics.Metrics
	logger  *slog.Logger
	spec    string
	now     func() time.Time
	running sync.WaitGroup
}

// New creates a scheduler; an empty spec means DefaultSpec.
func New(store Refresher, spec string, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if spec == "" {
		spec = DefaultSpec
	}
	// standard 5-field format, no seconds
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:    c,
		store:   store,
		metrics: m,
		logger:  logger,
		spec:    spec,
		now:     time.Now,
	}
}

// Start refreshes specials once, so a restart does not wait for the next
// tick, then registers the job and begins the schedule.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.refresh); err != nil {
		return err
	}
	s.refresh()
	s.cron.Start()
	s.logger.Info("specials scheduler started",
		slog.String("spec", s.spec),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop halts the schedule. The returned context is done once every running
// refresh, scheduled or triggered by RunNow, has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("specials scheduler stopping")
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.running.Wait()
		cancel()
	}()
	return ctx
}

// RunNow triggers a refresh outside the schedule.
func (s *Scheduler) RunNow() {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.refresh()
	}()
}

// Refresh runs one pass synchronously and reports what changed.
func (s *Scheduler) Refresh(ctx context.Context) (activated, expired int64, err error) {
	now := s.now()
	activated, expired, err = s.store.RefreshSpecials(ctx, now)
	if err != nil {
		return activated, expired, err
	}
	s.metrics.SpecialsRefreshed(activated, expired)
	return activated, expired, nil
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	activated, expired, err := s.Refresh(ctx)
	if err != nil {
		s.logger.Error("failed to refresh specials", slog.Any("error", err))
		return
	}
	if activated > 0 || expired > 0 {
		s.logger.Info("specials refreshed",
			slog.Int64("activated", activated),
			slog.Int64("expired", expired),
		)
		return
	}
	s.logger.Debug("specials unchanged")
}
