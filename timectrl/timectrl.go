// Package timectrl paces a discrete-event simulation against the wall
// clock. The simulation itself has no notion of real time; the pacer
// translates elapsed wall time into a simulated-time target and asks the
// simulation to catch up.
package timectrl

import (
	"sync"
	"time"
)

// Advancer is the part of the simulation the pacer drives.
type Advancer interface {
	// AdvanceTo dispatches events up to simulated time t.
	AdvanceTo(t float64)
	// Now returns the current simulated time.
	Now() float64
}

// Pacer advances an Advancer in wall-clock ticks, scaled by a speedup
// factor: at speedup 60 one wall second covers one simulated minute.
type Pacer struct {
	adv     Advancer
	tick    time.Duration
	speedup float64

	mu        sync.Mutex
	listeners []func(simTime float64)
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewPacer builds a pacer. tick is the wall-clock step (0 means 100 ms);
// speedup is simulated seconds per wall second and must be positive.
func NewPacer(adv Advancer, tick time.Duration, speedup float64) *Pacer {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &Pacer{
		adv:     adv,
		tick:    tick,
		speedup: speedup,
		stop:    make(chan struct{}),
	}
}

// AddListener registers a callback invoked after every pacing step with
// the simulated time reached. Register before Start.
func (p *Pacer) AddListener(fn func(simTime float64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Start drives the advancer until simulated time horizon on a background
// goroutine. The returned channel closes when the horizon is reached or
// Stop is called.
func (p *Pacer) Start(horizon float64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(p.tick)
		defer ticker.Stop()

		target := p.adv.Now()
		for target < horizon {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
			}

			target += p.tick.Seconds() * p.speedup
			if target > horizon {
				target = horizon
			}
			p.adv.AdvanceTo(target)
			p.notify(p.adv.Now())
		}
	}()
	return done
}

// Stop ends pacing early. Safe to call more than once.
func (p *Pacer) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pacer) notify(simTime float64) {
	p.mu.Lock()
	listeners := p.listeners
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(simTime)
	}
}
