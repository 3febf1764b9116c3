// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type sent struct {
	payload string
	number  float64
	numeric bool
	at      time.Time
}

type writerImpl struct {
	prefix string
	policy Policy
	pub    publisher
	now    func() time.Time

	last map[string]sent
}

// New returns a change-filtered writer. A nil publisher yields a writer
// that accepts everything and sends nothing.
func New(prefix string, policy Policy, pub publisher) Writer {
	if pub == nil {
		return nopWriter{}
	}
	return &writerImpl{
		prefix: strings.TrimSuffix(prefix, "/"),
		policy: policy,
		pub:    pub,
		now:    time.Now,
		last:   make(map[string]sent),
	}
}

// Write publishes value under prefix/topic when it changed enough, or when
// the heartbeat for that topic is due.
func (w *writerImpl) Write(topic string, value any) error {
	payload, number, numeric, err := format(value)
	if err != nil {
		return fmt.Errorf("writer: topic %s: %w", topic, err)
	}

	now := w.now()
	prev, seen := w.last[topic]

	if seen && !w.due(prev, payload, number, numeric, now) {
		return nil
	}

	if err := w.pub.Publish(w.prefix+"/"+topic, []byte(payload), false); err != nil {
		// Any failure introduces doubt: re-send every topic on its next write.
		w.last = make(map[string]sent)
		return fmt.Errorf("writer: publish %s: %w", topic, err)
	}

	w.last[topic] = sent{payload: payload, number: number, numeric: numeric, at: now}
	return nil
}

func (w *writerImpl) due(prev sent, payload string, number float64, numeric bool, now time.Time) bool {
	age := now.Sub(prev.at)

	if w.policy.Heartbeat > 0 && age >= w.policy.Heartbeat {
		return true
	}

	var changed bool
	if numeric && prev.numeric {
		changed = math.Abs(number-prev.number) > w.policy.Threshold
	} else {
		changed = payload != prev.payload
	}
	if !changed {
		return false
	}
	return age >= w.policy.MinInterval
}

func format(v any) (payload string, number float64, numeric bool, err error) {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), x, true, nil
	case float32:
		return format(float64(x))
	case int:
		return strconv.Itoa(x), float64(x), true, nil
	case int64:
		return strconv.FormatInt(x, 10), float64(x), true, nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), float64(x), true, nil
	case uint64:
		return strconv.FormatUint(x, 10), float64(x), true, nil
	case bool:
		if x {
			return "ON", 1, false, nil
		}
		return "OFF", 0, false, nil
	case string:
		return x, 0, false, nil
	case fmt.Stringer:
		return x.String(), 0, false, nil
	default:
		return "", 0, false, errors.New("unsupported value type")
	}
}

type nopWriter struct{}

func (nopWriter) Write(string, any) error { return nil }
