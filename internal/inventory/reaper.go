package inventory

import (
	"time"

	"boxoffice/pkg/logger"
)

// Reaper periodically reclaims expired holds so "units remaining" queries are
// accurate even when nobody is asking for the affected units. Lazy expiry in
// the table is the safety net; the sweep interval only trades reclaim latency
// against overhead.
type Reaper struct {
	table    *Table
	interval time.Duration
	log      *logger.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewReaper(table *Table, interval time.Duration, log *logger.Logger) *Reaper {
	return &Reaper{
		table:    table,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to terminate it.
func (r *Reaper) Start() {
	go r.run()
	r.log.Info("Expiry reaper started", "interval", r.interval)
}

func (r *Reaper) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if reclaimed := r.table.SweepExpired(); reclaimed > 0 {
				r.log.Info("Reclaimed expired holds", "units", reclaimed)
			}
		case <-r.stopCh:
			return
		}
	}
}

// Stop terminates the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.log.Info("Expiry reaper stopped")
}
