// Package scheduler closes draws automatically once their sales window ends.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openlotto/drawd/internal/lottery"
	"github.com/openlotto/drawd/pkg/logger"
)

// DefaultSchedule checks the current draw every minute.
const DefaultSchedule = "@every 1m"

// Scheduler periodically requests resolution for the current draw on the
// operator's behalf once its window has ended. The engine enforces the
// window, so firing early or twice is harmless.
type Scheduler struct {
	cron       *cron.Cron
	engine     *lottery.Engine
	operatorID string
	log        *logger.Logger
}

// New creates a scheduler firing on the given cron spec.
func New(engine *lottery.Engine, operatorID, schedule string, log *logger.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if log == nil {
		log = logger.NewDefault("scheduler")
	}

	s := &Scheduler{
		cron:       cron.New(),
		engine:     engine,
		operatorID: operatorID,
		log:        log,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the schedule in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("draw close scheduler started")
}

// Stop halts the schedule and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("draw close scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce performs a single check-and-close pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	token, err := s.engine.RequestResolution(ctx, s.operatorID)
	if err != nil {
		switch {
		case errors.Is(err, lottery.ErrDrawStillActive),
			errors.Is(err, lottery.ErrAlreadyRequested),
			errors.Is(err, lottery.ErrAlreadyCompleted):
			// Nothing to close yet.
		default:
			s.log.WithError(err).Error("automatic draw close failed")
		}
		return
	}
	s.log.WithField("token", token).Info("draw closed, awaiting randomness")
}
