package metrics

import (
	"time"

	"github.com/nexusdb/guardian/pkg/catalog"
)

// Collector periodically snapshots gauge-shaped catalog state (server
// counts by health) into Prometheus; counters and histograms are updated
// inline by the components that own the events they measure.
type Collector struct {
	cat    catalog.Catalog
	stopCh chan struct{}
}

// NewCollector wraps a Catalog for periodic metric snapshots.
func NewCollector(cat catalog.Catalog) *Collector {
	return &Collector{
		cat:    cat,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting on a fixed interval until Stop is called.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector goroutine.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	servers, err := c.cat.ListServers()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, s := range servers {
		counts[string(s.Health)]++
	}
	for health, count := range counts {
		ServersTotal.WithLabelValues(health).Set(float64(count))
	}
}
