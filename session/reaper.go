package session

import (
	"sync"
	"time"

	"github.com/pithecene-io/sluice/log"
)

// DefaultReaperInterval is the default sweep period.
const DefaultReaperInterval = 10 * time.Second

// Reaper periodically expires sessions that outlived the registry timeout.
// It is a backstop against missed or delayed per-session timers; expiry is
// idempotent, so the reaper and the timers may run in any relative order.
type Reaper struct {
	registry *Registry
	interval time.Duration
	lg       *log.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewReaper creates a reaper sweeping the registry every interval.
func NewReaper(registry *Registry, interval time.Duration, lg *log.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	if lg == nil {
		lg = log.Nop()
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		lg:       lg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to terminate it.
func (p *Reaper) Start() {
	go p.loop()
}

// Stop terminates the sweep loop and waits for it to exit.
// Safe to call multiple times.
func (p *Reaper) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Reaper) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.sweep(now)
		}
	}
}

// sweep expires every session older than the registry timeout.
func (p *Reaper) sweep(now time.Time) {
	ids := p.registry.expiredIDs(now)
	expired := 0
	for _, id := range ids {
		if p.registry.Expire(id) {
			expired++
		}
	}
	if expired > 0 {
		p.lg.Info("reaper expired sessions", map[string]any{"count": expired})
	}
}
