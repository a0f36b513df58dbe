package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/parix-analytics/parix-go/pkg/cohort"
	"github.com/parix-analytics/parix-go/pkg/config"
	"github.com/parix-analytics/parix-go/utils"
)

// Service reloads the cohort on a cron schedule. Reloads triggered here and
// via the API share the cohort service's atomic swap, so they never race.
type Service struct {
	cohort *cohort.Service
	cfg    config.SchedulerConfig
	cron   *cron.Cron
	logger *utils.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	lastRun *time.Time
	lastErr error
}

// NewService creates a scheduler service
func NewService(cohortService *cohort.Service, cfg config.SchedulerConfig) *Service {
	return &Service{
		cohort: cohortService,
		cfg:    cfg,
		cron:   cron.New(),
		logger: utils.GetLogger(),
	}
}

// Start schedules the reload job and starts the cron loop. A no-op when the
// scheduler is disabled.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduled cohort reload disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.cfg.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cfg.CronExpr, err)
	}

	entryID, err := s.cron.AddFunc(s.cfg.CronExpr, s.runReload)
	if err != nil {
		return fmt.Errorf("failed to schedule cohort reload: %w", err)
	}

	s.mu.Lock()
	s.entryID = entryID
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduled cohort reload started", utils.String("cron_expr", s.cfg.CronExpr))
	return nil
}

// Stop stops the cron loop, waiting for a running reload to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduled cohort reload stopped")
}

// NextRun returns the next scheduled reload time, if scheduled
func (s *Service) NextRun() (time.Time, bool) {
	s.mu.Lock()
	entryID := s.entryID
	s.mu.Unlock()

	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// LastRun returns the time and outcome of the most recent scheduled reload
func (s *Service) LastRun() (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *Service) runReload() {
	started := time.Now()
	snapshot, err := s.cohort.Reload(context.Background())

	s.mu.Lock()
	s.lastRun = &started
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled cohort reload failed", err)
		return
	}
	s.logger.Info("Scheduled cohort reload complete",
		utils.String("snapshot_id", snapshot.SnapshotID),
		utils.Int("cohort_size", snapshot.CohortSize),
		utils.String("duration", time.Since(started).String()))
}
