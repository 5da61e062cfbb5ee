package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/observability"
)

// TelemetryWorker periodically logs the core counters together with the
// process' own CPU and memory footprint.
type TelemetryWorker struct {
	log            *slog.Logger
	monitor        *observability.Monitor
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitor *observability.Monitor,
	metricInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, monitor: monitor, metricInterval: metricInterval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping telemetry worker")
			return nil
		case <-ticker.C:
			stats := w.monitor.Snapshot()

			cpu, err := p.CPUPercent()
			if err != nil {
				w.log.Debug("Error while finding process cpu usage", "err", err)
			}
			var rssMb uint64
			if mem, err := p.MemoryInfo(); err == nil {
				rssMb = mem.RSS / 1024 / 1024
			}

			w.log.Info("Telemetry",
				"active_connections", stats.ActiveConnections,
				"messages_persisted", stats.MessagesPersisted,
				"events_delivered", stats.EventsDelivered,
				"deliveries_dropped", stats.DeliveriesDropped,
				"alloc_mem_mb", stats.AllocMemMb,
				"num_gc", stats.NumGC,
				"cpu_percent", cpu,
				"rss_mb", rssMb)
		}
	}
}
