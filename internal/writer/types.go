// internal/writer/types.go
package writer

import "time"

// publisher is the exact contract the writers use.
// The MQTT client implements it; tests substitute a recorder.
type publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Policy decides when an unchanged or barely changed value is re-sent.
type Policy struct {
	// MinInterval suppresses changes that arrive faster than this per topic.
	MinInterval time.Duration

	// Heartbeat forces a publish of the last value after this long.
	Heartbeat time.Duration

	// Threshold is the numeric change below which a value counts as unchanged.
	Threshold float64
}

// DefaultPolicy matches what a dashboard needs without flooding the broker.
func DefaultPolicy() Policy {
	return Policy{
		MinInterval: 5 * time.Second,
		Heartbeat:   60 * time.Second,
		Threshold:   0.01,
	}
}

// Writer delivers named values to the sink.
type Writer interface {
	Write(topic string, value any) error
}
