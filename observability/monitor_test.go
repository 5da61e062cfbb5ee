package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitor_ConcurrentCounters(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.ConnectionOpened()
			monitor.IncrMessagesPersisted()
			monitor.IncrEventsDelivered()
			monitor.IncrDeliveriesDropped()
		}()
	}
	wg.Wait()

	stats := monitor.Snapshot()
	req.Equal(int64(10), stats.ActiveConnections)
	req.Equal(uint64(10), stats.MessagesPersisted)
	req.Equal(uint64(10), stats.EventsDelivered)
	req.Equal(uint64(10), stats.DeliveriesDropped)

	monitor.ConnectionClosed()
	req.Equal(int64(9), monitor.Snapshot().ActiveConnections)
}
