// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/bms-bridge/internal/emulator"
)

const namespace = "bms_bridge"

// Metrics holds every collector, registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	CANFrames      *prometheus.CounterVec
	RS485Polls     *prometheus.CounterVec
	InverterCycles *prometheus.CounterVec

	SOC              prometheus.Gauge
	SOH              prometheus.Gauge
	SourceStale      *prometheus.GaugeVec
	PollAlarm        *prometheus.GaugeVec
	DischargeBlocked prometheus.Gauge
	ForceCharge      prometheus.Gauge
	InverterMode     prometheus.Gauge
}

// New builds and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		CANFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "can", Name: "frames_total",
			Help: "CAN frames by group and outcome.",
		}, []string{"group", "result"}),

		RS485Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rs485", Name: "polls_total",
			Help: "RS-485 exchanges by battery, class and outcome.",
		}, []string{"battery", "class", "result"}),

		InverterCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inverter", Name: "cycles_total",
			Help: "Priority register cycles by final stage and outcome.",
		}, []string{"stage", "result"}),

		SOC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "soc_percent", Help: "State of charge from CAN.",
		}),
		SOH: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "soh_percent", Help: "State of health from CAN.",
		}),
		SourceStale: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_stale", Help: "1 while a source is stale.",
		}, []string{"source"}),
		PollAlarm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "rs485", Name: "poll_alarm", Help: "1 while a battery poll alarm is latched.",
		}, []string{"battery"}),
		DischargeBlocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "control", Name: "discharge_blocked", Help: "Effective discharge-block decision.",
		}),
		ForceCharge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "control", Name: "force_charge", Help: "Effective force-charge output.",
		}),
		InverterMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "inverter", Name: "priority_mode", Help: "Last known priority register value, -1 when unknown.",
		}),
	}

	m.InverterMode.Set(-1)

	m.Registry.MustRegister(
		m.CANFrames, m.RS485Polls, m.InverterCycles,
		m.SOC, m.SOH, m.SourceStale, m.PollAlarm,
		m.DischargeBlocked, m.ForceCharge, m.InverterMode,
	)
	return m
}

// RegisterEmulator exposes the emulator's own counters.
func (m *Metrics) RegisterEmulator(s *emulator.Stats) {
	counter := func(name, help string, load func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "emulator", Name: name, Help: help,
		}, func() float64 { return float64(load()) })
	}

	m.Registry.MustRegister(
		counter("requests_total", "Addressed requests with a valid CRC.", s.Requests.Load),
		counter("responses_total", "Normal responses sent.", s.Responses.Load),
		counter("exceptions_total", "Exception responses sent.", s.Exceptions.Load),
		counter("crc_errors_total", "Frames dropped for a bad CRC.", s.CRCErrors.Load),
		counter("ignored_total", "Frames for other unit ids.", s.Ignored.Load),
	)
}

// Battery renders a battery index as a label value.
func Battery(idx int) string { return strconv.Itoa(idx) }

// Bool maps a flag onto a gauge value.
func Bool(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Serve exposes /metrics on listen until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, listen string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info().Str("listen", listen).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
