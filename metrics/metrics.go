// Package metrics defines the instrumentation hooks used by the client:
// event counters and operation latency, keyed by channel.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
