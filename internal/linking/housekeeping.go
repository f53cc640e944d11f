package linking

import (
	"context"
	"sync"
	"time"
)

const defaultHousekeepingInterval = time.Hour

// Housekeeper periodically removes correlation states from abandoned link attempts.
type Housekeeper struct {
	coordinator *Coordinator
	interval    time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewHousekeeper creates a [Housekeeper]. A non-positive interval defaults to one hour.
func NewHousekeeper(c *Coordinator, interval time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = defaultHousekeepingInterval
	}
	return &Housekeeper{
		coordinator: c,
		interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs a purge immediately and then once per interval until [Housekeeper.Stop].
func (h *Housekeeper) Start() {
	go h.run()
	h.coordinator.logger.Info("housekeeping started", "interval", h.interval)
}

// Stop ends the worker and waits for an in-progress purge to finish. It is safe to call more than once.
func (h *Housekeeper) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		<-h.doneCh
		h.coordinator.logger.Info("housekeeping stopped")
	})
}

func (h *Housekeeper) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.purge()
	for {
		select {
		case <-ticker.C:
			h.purge()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeper) purge() {
	if _, err := h.coordinator.PurgeExpiredStates(context.Background()); err != nil {
		h.coordinator.logger.Error("housekeeping failed", "error", err)
	}
}
