package metrics

import (
	"github.com/drydock-sh/drydock/pkg/events"
)

// Collector translates deployment lifecycle events into Prometheus
// counters. It subscribes to the broker on Start and drains its
// subscription until Stop.
type Collector struct {
	broker *events.Broker
	sub    events.Subscriber
	stopCh chan struct{}
}

// NewCollector creates a collector over the given broker
func NewCollector(broker *events.Broker) *Collector {
	return &Collector{
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start subscribes to the broker and begins recording
func (c *Collector) Start() {
	c.sub = c.broker.Subscribe()
	go c.run()
}

// Stop unsubscribes and stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.broker.Unsubscribe(c.sub)
}

func (c *Collector) run() {
	for {
		select {
		case event, ok := <-c.sub:
			if !ok {
				return
			}
			c.record(event)
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) record(event *events.Event) {
	switch event.Type {
	case events.EventDomainStarted:
		DeploymentsStarted.Inc()
	case events.EventDomainCompleted:
		DeploymentsCompleted.WithLabelValues("completed").Inc()
	case events.EventDomainWarned:
		DeploymentsCompleted.WithLabelValues("completed_with_warnings").Inc()
	case events.EventDomainFailed:
		DeploymentsCompleted.WithLabelValues("failed").Inc()
	case events.EventBatchStarted:
		BatchesTotal.Inc()
	case events.EventRollbackStarted:
		RollbacksTotal.Inc()
	case events.EventRunCompleted:
		RunsTotal.WithLabelValues("completed").Inc()
	case events.EventRunFailed:
		RunsTotal.WithLabelValues("failed").Inc()
	}
}
