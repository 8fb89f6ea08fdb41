// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"toolforge/internal/inventory"
	"toolforge/internal/notify"
	"toolforge/internal/workforce"
)

// FactoryLister enumerates the factories to sweep.
type FactoryLister interface {
	ListFactories(ctx context.Context) ([]*workforce.Factory, error)
	ListSupervisors(ctx context.Context, factoryID uuid.UUID) ([]*workforce.Worker, error)
}

// Scheduler runs the periodic overdue sweep. The sweep is a pure read over
// the issuance ledger followed by notifications; it flips no statuses, so
// overlapping or repeated runs are harmless.
type Scheduler struct {
	cron      *cron.Cron
	inventory inventory.Service
	workforce FactoryLister
	notifier  notify.Notifier
	schedule  string
	logger    *zap.Logger
}

func New(inv inventory.Service, wf FactoryLister, notifier notify.Notifier, schedule string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:      cron.New(),
		inventory: inv,
		workforce: wf,
		notifier:  notifier,
		schedule:  schedule,
		logger:    logger,
	}
}

// Start registers the sweep on its cron schedule and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return fmt.Errorf("schedule overdue sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("overdue sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.Sweep(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
	}
}

// Sweep finds every factory's overdue issuances as of the given instant and
// notifies that factory's supervisors. Exposed so operators can trigger it
// out of schedule.
func (s *Scheduler) Sweep(ctx context.Context, asOf time.Time) error {
	factories, err := s.workforce.ListFactories(ctx)
	if err != nil {
		return fmt.Errorf("list factories: %w", err)
	}

	for _, factory := range factories {
		overdue, err := s.inventory.ListOverdue(ctx, factory.ID, asOf)
		if err != nil {
			s.logger.Error("list overdue failed",
				zap.String("factory_id", factory.ID.String()),
				zap.Error(err))
			continue
		}
		if len(overdue) == 0 {
			continue
		}

		s.logger.Info("overdue issuances found",
			zap.String("factory_id", factory.ID.String()),
			zap.Int("count", len(overdue)))

		supervisors, err := s.workforce.ListSupervisors(ctx, factory.ID)
		if err != nil {
			s.logger.Warn("list supervisors failed",
				zap.String("factory_id", factory.ID.String()),
				zap.Error(err))
			continue
		}

		for _, issuance := range overdue {
			for _, supervisor := range supervisors {
				err := s.notifier.Notify(ctx, notify.Event{
					RecipientID:    supervisor.ID,
					RecipientEmail: supervisor.Email,
					Kind:           notify.KindToolsOverdue,
					IssuanceID:     issuance.ID,
					Outcome:        issuance.DueDate.Format(time.RFC3339),
				})
				if err != nil {
					s.logger.Warn("overdue notification failed",
						zap.String("issuance_id", issuance.ID.String()),
						zap.Error(err))
				}
			}
		}
	}
	return nil
}
