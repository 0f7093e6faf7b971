package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Submitter accepts jobs for execution
type Submitter interface {
	SubmitJob(job *Job) error
}

// Schedule describes when a job fires. A positive Every makes it an
// interval job; otherwise it fires once a day at Hour:Minute.
type Schedule struct {
	Job    JobName
	Hour   int
	Minute int
	Every  time.Duration
}

// Daily returns a schedule firing once a day at hour:minute
func Daily(job JobName, hour, minute int) Schedule {
	return Schedule{Job: job, Hour: hour, Minute: minute}
}

// Every returns a schedule firing every interval
func Every(job JobName, interval time.Duration) Schedule {
	return Schedule{Job: job, Every: interval}
}

// Validate checks the schedule's ranges
func (s Schedule) Validate() error {
	if s.Job == "" {
		return fmt.Errorf("%w: job name is required", ErrInvalidConfig)
	}
	if s.Every > 0 {
		return nil
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: hour must be 0-23, got %d", ErrInvalidConfig, s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: minute must be 0-59, got %d", ErrInvalidConfig, s.Minute)
	}
	return nil
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// CheckInterval is how often to check if a schedule is due
	CheckInterval time.Duration
	// Location is the wall clock daily schedules are evaluated in
	Location   *time.Location
	MaxRetries int
	Schedules  []Schedule
}

// ScheduleStatus is the externally visible state of one schedule
type ScheduleStatus struct {
	Job       JobName    `json:"job"`
	Daily     string     `json:"daily,omitempty"`
	Every     string     `json:"every,omitempty"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt time.Time  `json:"nextRunAt"`
}

// CronTrigger submits jobs to a Submitter when their schedule is due
type CronTrigger struct {
	config    CronTriggerConfig
	submitter Submitter
	logger    *zap.Logger
	now       func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRun     map[JobName]time.Time
	lastRunDate map[JobName]string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, submitter Submitter, logger *zap.Logger) (*CronTrigger, error) {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	for _, s := range config.Schedules {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:      config,
		submitter:   submitter,
		logger:      logger,
		now:         time.Now,
		lastRun:     make(map[JobName]time.Time),
		lastRunDate: make(map[JobName]string),
	}, nil
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runLoop(ctx)

	fields := []zap.Field{zap.Duration("check_interval", c.config.CheckInterval)}
	for _, s := range c.config.Schedules {
		fields = append(fields, zap.String(string(s.Job), describe(s)))
	}
	c.logger.Info("Cron trigger started", fields...)

	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop checks periodically if a schedule is due
func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(c.now())
		}
	}
}

// checkAndTrigger submits every schedule due at now and returns their names
func (c *CronTrigger) checkAndTrigger(now time.Time) []JobName {
	now = now.In(c.config.Location)
	var fired []JobName
	for _, s := range c.config.Schedules {
		if !c.due(s, now) {
			continue
		}
		c.markRun(s.Job, now)
		if err := c.submit(s.Job, now); err != nil {
			c.logger.Error("Failed to submit scheduled job",
				zap.String("job", string(s.Job)),
				zap.Error(err),
			)
			continue
		}
		fired = append(fired, s.Job)
	}
	return fired
}

func (c *CronTrigger) due(s Schedule, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.Every > 0 {
		last, ok := c.lastRun[s.Job]
		return !ok || now.Sub(last) >= s.Every
	}
	if c.lastRunDate[s.Job] == now.Format("2006-01-02") {
		return false
	}
	// Fires at the configured minute or on the first check after it
	// within the same hour, so a missed tick does not skip the day.
	return now.Hour() == s.Hour && now.Minute() >= s.Minute
}

func (c *CronTrigger) markRun(job JobName, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRun[job] = now
	c.lastRunDate[job] = now.Format("2006-01-02")
}

func (c *CronTrigger) submit(name JobName, at time.Time) error {
	c.logger.Info("Triggering scheduled job", zap.String("job", string(name)))
	return c.submitter.SubmitJob(NewJob(name, at, c.config.MaxRetries))
}

// TriggerNow submits a job immediately, outside its schedule
func (c *CronTrigger) TriggerNow(name JobName) error {
	for _, s := range c.config.Schedules {
		if s.Job == name {
			return c.submit(name, c.now())
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// Status reports every schedule with its last and next run
func (c *CronTrigger) Status() []ScheduleStatus {
	now := c.now().In(c.config.Location)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ScheduleStatus, 0, len(c.config.Schedules))
	for _, s := range c.config.Schedules {
		st := ScheduleStatus{Job: s.Job}
		if last, ok := c.lastRun[s.Job]; ok {
			l := last
			st.LastRunAt = &l
		}
		if s.Every > 0 {
			st.Every = s.Every.String()
			st.NextRunAt = now
			if st.LastRunAt != nil {
				st.NextRunAt = st.LastRunAt.Add(s.Every)
			}
		} else {
			st.Daily = fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
			st.NextRunAt = NextDailyRun(now, s.Hour, s.Minute)
		}
		out = append(out, st)
	}
	return out
}

// NextDailyRun returns the next hour:minute at or after now
func NextDailyRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func describe(s Schedule) string {
	if s.Every > 0 {
		return "every " + s.Every.String()
	}
	return fmt.Sprintf("daily %02d:%02d", s.Hour, s.Minute)
}
