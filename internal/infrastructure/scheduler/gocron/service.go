package timescheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lockstep-labs/chand/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type Option func(*service)

// WithClock makes the scheduler read the current time from clk. Delays are
// still measured in wall time.
func WithClock(clk clock.Clock) Option {
	return func(s *service) {
		s.clock = clk
	}
}

type service struct {
	scheduler *gocron.Scheduler
	clock     clock.Clock
}

func NewScheduler(opts ...Option) ports.SchedulerService {
	svc := &service{
		scheduler: gocron.NewScheduler(time.UTC),
		clock:     clock.NewDefaultClock(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
	s.scheduler.Clear()
}

func (s *service) AddNow(lapse int64) int64 {
	return s.clock.Now().Add(time.Duration(lapse) * time.Second).Unix()
}

func (s *service) AfterNow(at int64) bool {
	return at > s.clock.Now().Unix()
}

func (s *service) ScheduleTaskOnce(at int64, task func()) error {
	delay := time.Unix(at, 0).Sub(s.clock.Now())
	if delay <= 0 {
		log.Debugf("scheduled time %d already passed, running task now", at)
		go task()
		return nil
	}

	if _, err := s.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Do(task); err != nil {
		return fmt.Errorf("failed to schedule task at %d: %w", at, err)
	}
	return nil
}

func (s *service) ScheduleTaskEvery(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}

	if _, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(task); err != nil {
		return fmt.Errorf("failed to schedule periodic task: %w", err)
	}
	return nil
}
