package schedule

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// ScheduleType says whether a schedule fires once or re-arms.
type ScheduleType string

const (
	OneTime   ScheduleType = "ONE_TIME"
	Recurring ScheduleType = "RECURRING"
)

// DefaultPollInterval is how often the scheduler checks for due schedules.
const DefaultPollInterval = 60 * time.Second

// Campaign is one calendar-driven campaign schedule.
type Campaign struct {
	ID           uuid.UUID     `json:"id"`
	CampaignType campaign.Type `json:"campaign_type"`
	ScheduleType ScheduleType  `json:"schedule_type"`
	Recurrence   Recurrence    `json:"recurrence,omitempty"`
	NextRun      time.Time     `json:"next_run"`
	LastRun      *time.Time    `json:"last_run,omitempty"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Config describes a schedule to create.
type Config struct {
	CampaignType campaign.Type `json:"campaign_type"`
	ScheduleType ScheduleType  `json:"schedule_type"`
	Recurrence   Recurrence    `json:"recurrence,omitempty"`
	// FirstRun is when the schedule first fires. Zero means: compute from
	// the recurrence for RECURRING, fire on the next poll for ONE_TIME.
	FirstRun time.Time `json:"first_run,omitempty"`
}

// Patch is a partial schedule update. Nil fields are unchanged.
type Patch struct {
	CampaignType *campaign.Type `json:"campaign_type,omitempty"`
	Recurrence   *Recurrence    `json:"recurrence,omitempty"`
	NextRun      *time.Time     `json:"next_run,omitempty"`
	Active       *bool          `json:"active,omitempty"`
}

// Scheduler fires calendar-driven campaigns independently of events. A
// fixed-interval poll executes every active schedule whose NextRun has
// arrived, synchronously within the tick. NextRun is recomputed after every
// attempt, success or failure, so a failing schedule can never retry-storm.
type Scheduler struct {
	executor     campaign.Executor
	pollInterval time.Duration

	mu        sync.RWMutex
	schedules map[uuid.UUID]*Campaign

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	executed int64
	missed   int64
}

// NewScheduler creates a scheduler with the default poll interval.
func NewScheduler(executor campaign.Executor) *Scheduler {
	return &Scheduler{
		executor:     executor,
		pollInterval: DefaultPollInterval,
		schedules:    make(map[uuid.UUID]*Campaign),
	}
}

// SetPollInterval overrides the poll interval. Must be called before Start.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// ScheduleCampaign registers a new schedule and returns its ID.
func (s *Scheduler) ScheduleCampaign(cfg Config) (uuid.UUID, error) {
	if cfg.CampaignType == "" {
		return uuid.Nil, fmt.Errorf("campaign type is required")
	}
	switch cfg.ScheduleType {
	case OneTime:
	case Recurring:
		switch cfg.Recurrence {
		case Daily, Weekly, Monthly, Seasonal:
		default:
			return uuid.Nil, fmt.Errorf("unknown recurrence %q", cfg.Recurrence)
		}
	default:
		return uuid.Nil, fmt.Errorf("unknown schedule type %q", cfg.ScheduleType)
	}

	now := time.Now()
	firstRun := cfg.FirstRun
	if firstRun.IsZero() {
		if cfg.ScheduleType == Recurring {
			firstRun = cfg.Recurrence.NextRun(now)
		} else {
			firstRun = now
		}
	}

	sc := &Campaign{
		ID:           uuid.New(),
		CampaignType: cfg.CampaignType,
		ScheduleType: cfg.ScheduleType,
		Recurrence:   cfg.Recurrence,
		NextRun:      firstRun,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.schedules[sc.ID] = sc
	s.mu.Unlock()

	log.Printf("[Scheduler] scheduled %s campaign %s (%s %s), first run %s",
		sc.CampaignType, sc.ID, sc.ScheduleType, sc.Recurrence, sc.NextRun.Format(time.RFC3339))
	return sc.ID, nil
}

// UpdateSchedule applies a partial update.
func (s *Scheduler) UpdateSchedule(id uuid.UUID, patch Patch) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s not found", id)
	}
	if patch.CampaignType != nil {
		sc.CampaignType = *patch.CampaignType
	}
	if patch.Recurrence != nil {
		sc.Recurrence = *patch.Recurrence
	}
	if patch.NextRun != nil {
		sc.NextRun = *patch.NextRun
	}
	if patch.Active != nil {
		sc.Active = *patch.Active
	}
	sc.UpdatedAt = time.Now()
	out := *sc
	return &out, nil
}

// CancelSchedule deactivates a schedule without deleting it.
func (s *Scheduler) CancelSchedule(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	sc.Active = false
	sc.UpdatedAt = time.Now()
	return nil
}

// DeleteSchedule removes a schedule entirely.
func (s *Scheduler) DeleteSchedule(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	delete(s.schedules, id)
	return nil
}

// Schedules returns a copy of all schedules, newest first.
func (s *Scheduler) Schedules() []Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Campaign, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Get returns one schedule by ID.
func (s *Scheduler) Get(id uuid.UUID) (*Campaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, false
	}
	out := *sc
	return &out, true
}

// Start begins the poll loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting with poll interval %v", s.pollInterval)
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels future ticks and waits for an in-flight tick to finish.
// Executions already running within a tick are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Printf("[Scheduler] Stopped. Executed: %d, missed: %d",
		atomic.LoadInt64(&s.executed), atomic.LoadInt64(&s.missed))
}

// Running reports whether the poll loop is active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.ExecuteDue(time.Now())
		}
	}
}

// ExecuteDue runs every active schedule whose NextRun is at or before now.
// Failures are logged as missed executions; NextRun always advances.
func (s *Scheduler) ExecuteDue(now time.Time) {
	// Copy the due schedules while holding the lock; UpdateSchedule mutates
	// the stored values concurrently from the API.
	s.mu.Lock()
	var due []Campaign
	for _, sc := range s.schedules {
		if sc.Active && !sc.NextRun.After(now) {
			due = append(due, *sc)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(due[j].NextRun) })

	for _, sc := range due {
		s.executeSchedule(sc, now)
	}
}

func (s *Scheduler) executeSchedule(sc Campaign, now time.Time) {
	_, err := s.executor.Execute(context.Background(), sc.CampaignType, nil, map[string]interface{}{
		"schedule_id":   sc.ID.String(),
		"schedule_type": string(sc.ScheduleType),
	})
	if err != nil {
		atomic.AddInt64(&s.missed, 1)
		log.Printf("[Scheduler] missed execution for schedule %s (%s): %v", sc.ID, sc.CampaignType, err)
	} else {
		atomic.AddInt64(&s.executed, 1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The schedule may have been cancelled or deleted mid-execution.
	cur, ok := s.schedules[sc.ID]
	if !ok {
		return
	}
	ranAt := now
	cur.LastRun = &ranAt
	cur.UpdatedAt = time.Now()

	if cur.ScheduleType == OneTime {
		cur.Active = false
		return
	}
	cur.NextRun = cur.Recurrence.NextRun(now)
}
