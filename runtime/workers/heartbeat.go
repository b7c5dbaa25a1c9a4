package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/runtime"
)

// HeartbeatWorker periodically logs registry occupancy so operators can
// watch room and connection growth without scraping metrics.
type HeartbeatWorker struct {
	log      *slog.Logger
	registry *runtime.Registry
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, registry *runtime.Registry, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, registry: registry, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rooms, members := w.registry.Stats()
			w.log.Info("registry heartbeat", "rooms", rooms, "members", members)
		}
	}
}
