package risk

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/trigger"
)

// EventSink receives the events produced by the periodic scans. Implemented
// by the trigger engine.
type EventSink interface {
	ProcessEvent(e trigger.Event)
}

// MonitorConfig holds the scan thresholds and cadence.
type MonitorConfig struct {
	Interval           time.Duration
	ChurnThreshold     float64
	CartHoursThreshold int
	InactiveDays       int
	LowStockThreshold  int
}

// Monitor runs the risk scans on a fixed interval and turns their results
// into trigger events.
type Monitor struct {
	scorer *Scorer
	sink   EventSink
	cfg    MonitorConfig

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	scansRun      int64
	eventsEmitted int64
}

// NewMonitor creates a monitor. Zero-valued config fields get defaults.
func NewMonitor(scorer *Scorer, sink EventSink, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.ChurnThreshold <= 0 {
		cfg.ChurnThreshold = 0.4
	}
	if cfg.CartHoursThreshold <= 0 {
		cfg.CartHoursThreshold = 24
	}
	if cfg.InactiveDays <= 0 {
		cfg.InactiveDays = 30
	}
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = 10
	}
	return &Monitor{scorer: scorer, sink: sink, cfg: cfg}
}

// Start begins the scan loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	log.Printf("[RiskMonitor] Starting with interval %v", m.cfg.Interval)
	m.wg.Add(1)
	go m.loop()
}

// Stop cancels the loop and waits for an in-flight scan to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	log.Printf("[RiskMonitor] Stopped. Scans: %d, events emitted: %d",
		atomic.LoadInt64(&m.scansRun), atomic.LoadInt64(&m.eventsEmitted))
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.RunScans(m.ctx)
		}
	}
}

// RunScans executes all scans once. Each scan aborts wholesale on a store
// error; a failed scan never blocks the others.
func (m *Monitor) RunScans(ctx context.Context) {
	atomic.AddInt64(&m.scansRun, 1)
	m.scanChurn(ctx)
	m.scanCarts(ctx)
	m.scanInactive(ctx)
	m.scanSeasonal(ctx)
	m.scanLowStock(ctx)
}

func (m *Monitor) scanChurn(ctx context.Context) {
	users, err := m.scorer.IdentifyChurnRiskUsers(ctx, m.cfg.ChurnThreshold)
	if err != nil {
		log.Printf("[RiskMonitor] churn scan failed: %v", err)
		return
	}
	for _, u := range users {
		m.emit(trigger.Event{
			Type:   trigger.EventChurnRisk,
			UserID: u.UserID,
			Email:  u.Email,
			Payload: trigger.ChurnRiskPayload{
				ChurnProbability:   u.ChurnProbability,
				DaysSinceLastOrder: float64(u.DaysSinceLastOrder),
				TotalOrders:        float64(u.TotalOrders),
				AverageOrderValue:  u.AverageOrderValue,
			},
		})
	}
}

func (m *Monitor) scanCarts(ctx context.Context) {
	carts, err := m.scorer.IdentifyAbandonedCarts(ctx, m.cfg.CartHoursThreshold)
	if err != nil {
		log.Printf("[RiskMonitor] abandoned cart scan failed: %v", err)
		return
	}
	now := time.Now()
	for _, c := range carts {
		m.emit(trigger.Event{
			Type:   trigger.EventCartAbandoned,
			UserID: c.UserID,
			Payload: trigger.CartPayload{
				TotalValue:       c.TotalValue,
				ItemCount:        float64(len(c.Items)),
				HoursSinceUpdate: now.Sub(c.AbandonedAt).Hours(),
				RemindersSent:    float64(c.RemindersSent),
			},
		})
	}
}

func (m *Monitor) scanInactive(ctx context.Context) {
	users, err := m.scorer.IdentifyInactiveUsers(ctx, m.cfg.InactiveDays)
	if err != nil {
		log.Printf("[RiskMonitor] inactivity scan failed: %v", err)
		return
	}
	for _, u := range users {
		m.emit(trigger.Event{
			Type:   trigger.EventUserInactive,
			UserID: u.UserID,
			Email:  u.Email,
			Payload: trigger.InactivityPayload{
				DaysInactive: float64(u.DaysInactive),
				TotalOrders:  float64(u.TotalOrders),
			},
		})
	}
}

func (m *Monitor) scanSeasonal(ctx context.Context) {
	season := CurrentSeason(time.Now())
	products, err := m.scorer.src.ProductsBySeason(ctx, season)
	if err != nil {
		log.Printf("[RiskMonitor] seasonal scan failed: %v", err)
		return
	}
	if len(products) == 0 {
		return
	}
	m.emit(trigger.Event{
		Type: trigger.EventSeasonal,
		Payload: trigger.SeasonalPayload{
			Season:       season,
			ProductCount: float64(len(products)),
		},
	})
}

func (m *Monitor) scanLowStock(ctx context.Context) {
	products, err := m.scorer.src.LowStockProducts(ctx, m.cfg.LowStockThreshold)
	if err != nil {
		log.Printf("[RiskMonitor] low stock scan failed: %v", err)
		return
	}
	if len(products) == 0 {
		return
	}
	min := products[0].Stock
	for _, p := range products {
		if p.Stock < min {
			min = p.Stock
		}
	}
	m.emit(trigger.Event{
		Type: trigger.EventLowStock,
		Payload: trigger.LowStockPayload{
			ProductCount: float64(len(products)),
			MinStock:     float64(min),
		},
	})
}

func (m *Monitor) emit(e trigger.Event) {
	atomic.AddInt64(&m.eventsEmitted, 1)
	m.sink.ProcessEvent(e)
}

// CurrentSeason maps a time to the farm catalog's season labels.
func CurrentSeason(t time.Time) string {
	switch t.Month() {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "fall"
	default:
		return "winter"
	}
}
