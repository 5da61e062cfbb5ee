// Package observability aggregates runtime counters for logging.
package observability

import (
	"runtime"
	"sync/atomic"
)

// MonitorStats is a point-in-time snapshot of the messaging core.
type MonitorStats struct {
	ActiveConnections int64  `json:"active_connections"`
	MessagesPersisted uint64 `json:"messages_persisted"`
	EventsDelivered   uint64 `json:"events_delivered"`
	DeliveriesDropped uint64 `json:"deliveries_dropped"`
	AllocMemMb        uint64 `json:"alloc_mem_mb"`
	NumGC             uint32 `json:"num_gc"`
}

// Monitor collects counters from sessions and room actors.
// All methods are safe for concurrent use.
type Monitor struct {
	activeConnections int64
	messagesPersisted uint64
	eventsDelivered   uint64
	deliveriesDropped uint64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) ConnectionOpened() {
	atomic.AddInt64(&m.activeConnections, 1)
}

func (m *Monitor) ConnectionClosed() {
	atomic.AddInt64(&m.activeConnections, -1)
}

func (m *Monitor) IncrMessagesPersisted() {
	atomic.AddUint64(&m.messagesPersisted, 1)
}

func (m *Monitor) IncrEventsDelivered() {
	atomic.AddUint64(&m.eventsDelivered, 1)
}

func (m *Monitor) IncrDeliveriesDropped() {
	atomic.AddUint64(&m.deliveriesDropped, 1)
}

// Snapshot reads the counters plus Go memory statistics.
func (m *Monitor) Snapshot() MonitorStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return MonitorStats{
		ActiveConnections: atomic.LoadInt64(&m.activeConnections),
		MessagesPersisted: atomic.LoadUint64(&m.messagesPersisted),
		EventsDelivered:   atomic.LoadUint64(&m.eventsDelivered),
		DeliveriesDropped: atomic.LoadUint64(&m.deliveriesDropped),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
	}
}
