// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/bms-bridge/internal/status"
)

// StatusWriter is the delivery-only contract for source status.
// It receives a snapshot and publishes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(source string, s status.Source) error
}

// Availability payloads. Retained, so a new subscriber sees the current state.
const (
	Online  = "online"
	Offline = "offline"
)

type sourceState struct {
	needFull bool
	last     status.Source
	online   bool
}

// sourceStatusWriter publishes per-source status under prefix/<source>/.
type sourceStatusWriter struct {
	prefix  string
	pub     publisher
	sources map[string]*sourceState
}

// NewStatusWriter builds a status writer. With a nil publisher status is disabled.
func NewStatusWriter(prefix string, pub publisher) (StatusWriter, bool) {
	if pub == nil {
		return nil, false
	}
	return &sourceStatusWriter{
		prefix:  strings.TrimSuffix(prefix, "/"),
		pub:     pub,
		sources: make(map[string]*sourceState),
	}, true
}

// WriteStatus delivers one source snapshot.
// On any publish failure, the next call re-asserts every field.
func (sw *sourceStatusWriter) WriteStatus(source string, s status.Source) error {
	if source == "" {
		return errors.New("status writer: source required")
	}

	st := sw.sources[source]
	if st == nil {
		// full re-assert on first write
		st = &sourceState{needFull: true}
		sw.sources[source] = st
	}

	base := sw.prefix + "/" + source + "/"
	online := s.Health == status.HealthOK

	var errs []string
	put := func(field, payload string) bool {
		if err := sw.pub.Publish(base+field, []byte(payload), true); err != nil {
			errs = append(errs, fmt.Sprintf("%s publish failed: %v", field, err))
			return false
		}
		return true
	}

	if st.needFull || st.online != online {
		if put("status", availability(online)) {
			st.online = online
		}
	}

	if st.needFull || st.last.Health != s.Health {
		if put("health", status.HealthName(s.Health)) {
			st.last.Health = s.Health
		}
	}

	if st.needFull || st.last.LastErrorCode != s.LastErrorCode {
		if put("last_error", strconv.Itoa(int(s.LastErrorCode))) {
			st.last.LastErrorCode = s.LastErrorCode
		}
	}

	if st.needFull || st.last.SecondsInError != s.SecondsInError {
		if put("seconds_in_error", strconv.Itoa(int(s.SecondsInError))) {
			st.last.SecondsInError = s.SecondsInError
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next success.
		st.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	st.needFull = false
	return nil
}

func availability(online bool) string {
	if online {
		return Online
	}
	return Offline
}
