// cmd/bridge/main.go
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/bms-bridge/internal/bridge"
	"github.com/tamzrod/bms-bridge/internal/canbus"
	"github.com/tamzrod/bms-bridge/internal/config"
	"github.com/tamzrod/bms-bridge/internal/control"
	"github.com/tamzrod/bms-bridge/internal/emulator"
	"github.com/tamzrod/bms-bridge/internal/inverter"
	"github.com/tamzrod/bms-bridge/internal/metrics"
	"github.com/tamzrod/bms-bridge/internal/poller"
	"github.com/tamzrod/bms-bridge/internal/serialport"
	"github.com/tamzrod/bms-bridge/internal/writer"
	"github.com/tamzrod/bms-bridge/internal/writer/mqtt"
)

const (
	emulatorReopenDelay = 5 * time.Second
	emulatorTCPTimeout  = 30 * time.Second
)

func main() {
	cfgPath := flag.String("config", "bms-bridge.yaml", "path to the YAML config file")
	flag.Parse()

	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot.Fatal().Err(err).Str("path", *cfgPath).Msg("config load failed")
	}

	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// --------------------
	// Controller
	// --------------------

	ctl, err := control.New(config.Thresholds(cfg.Control))
	if err != nil {
		log.Fatal().Err(err).Msg("control thresholds rejected")
	}
	ctl.DischargeOverride, _ = control.ParseOverride(cfg.Control.DischargeOverride)
	ctl.ForceOverride, _ = control.ParseOverride(cfg.Control.ForceOverride)

	// --------------------
	// Emulator (register image + serial/TCP faces)
	// --------------------

	e := cfg.Emulator
	regs := emulator.NewRegisters(emulator.Layout{
		BatteryUnit: e.BatteryUnit,
		BatteryBase: e.BatteryBase,
		ConfigUnit:  e.ConfigUnit,
		ConfigBase:  e.ConfigBase,
	}, component(log, "emulator"))

	if e.Serial.Device != "" {
		spawn(func() { serveEmulatorSerial(ctx, regs, e.Serial, component(log, "emulator")) })
	}

	if e.TCPListen != "" {
		srv, err := emulator.NewTCPServer(regs, e.TCPListen, emulatorTCPTimeout, e.TCPMaxClients)
		if err != nil {
			log.Fatal().Err(err).Msg("emulator tcp server build failed")
		}
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Str("listen", e.TCPListen).Msg("emulator tcp server start failed")
		}
		defer srv.Stop()
		log.Info().Str("listen", e.TCPListen).Msg("emulator modbus tcp listening")
	}

	// --------------------
	// Metrics
	// --------------------

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		m = metrics.New()
		m.RegisterEmulator(&regs.Stats)
		spawn(func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		})
	}

	// --------------------
	// Result sink
	// --------------------

	sink := writer.New("", writer.DefaultPolicy(), nil)
	var statusSink writer.StatusWriter

	if cfg.MQTT.Enabled() {
		mc, err := mqtt.New(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Prefix:   cfg.MQTT.Prefix,
			Timeout:  ms(cfg.MQTT.TimeoutMs),
		})
		if err != nil {
			log.Fatal().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt client build failed")
		}
		defer func() {
			if err := mc.Close(); err != nil {
				log.Warn().Err(err).Msg("mqtt close")
			}
		}()

		sink = writer.New(cfg.MQTT.Prefix, writer.Policy{
			MinInterval: ms(cfg.MQTT.MinIntervalMs),
			Heartbeat:   ms(cfg.MQTT.HeartbeatMs),
			Threshold:   cfg.MQTT.Threshold,
		}, mc)

		if sw, ok := writer.NewStatusWriter(cfg.MQTT.Prefix, mc); ok {
			statusSink = sw
		}
	}

	// --------------------
	// CAN source
	// --------------------

	var (
		canOut  chan canbus.Frame
		decoder *canbus.Decoder
	)
	if cfg.CAN.Enabled() {
		decoder, err = canbus.NewDecoder(frameSpecs(cfg.CAN.Frames))
		if err != nil {
			log.Fatal().Err(err).Msg("can frame table rejected")
		}
		canOut = make(chan canbus.Frame, 64)
		src := &canbus.Source{Interface: cfg.CAN.Interface, Log: component(log, "can")}
		spawn(func() { src.Run(ctx, canOut) })
	}

	// --------------------
	// RS-485 poller
	// --------------------

	var (
		pollOut   chan poller.PollResult
		batteries []int
	)
	if cfg.RS485.Enabled() {
		p, err := poller.Build(cfg.RS485)
		if err != nil {
			log.Fatal().Err(err).Str("device", cfg.RS485.Device).Msg("poller build failed")
		}
		defer p.Close()

		batteries = cfg.RS485.Batteries
		pollOut = make(chan poller.PollResult, 1)
		spawn(func() { p.Run(ctx, pollOut) })
	}

	// --------------------
	// Inverter worker
	// --------------------

	var (
		trig   bridge.Trigger
		invOut chan inverter.Result
	)
	if cfg.Inverter.Enabled() {
		w := inverter.NewWorker(
			inverter.NewClient(inverter.Config{Unit: cfg.Inverter.UnitID, Register: cfg.Inverter.Register}, inverterTransport(cfg.Inverter)),
			component(log, "inverter"),
		)
		invOut = make(chan inverter.Result, 1)
		spawn(func() { w.Run(ctx, invOut) })
		trig = w
	}

	// --------------------
	// Manual trigger (SIGUSR1)
	// --------------------

	manual := make(chan struct{}, 1)
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	spawn(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1:
				select {
				case manual <- struct{}{}:
				default:
				}
			}
		}
	})

	// --------------------
	// Orchestrator
	// --------------------

	b, err := bridge.New(bridge.Config{
		CANEnabled:       cfg.CAN.Enabled(),
		CANStaleAfter:    ms(cfg.CAN.StaleAfterMs),
		Batteries:        batteries,
		AlarmThreshold:   cfg.RS485.AlarmThreshold,
		RS485StaleAfter:  ms(cfg.RS485.StaleAfterMs),
		ControlDisabled:  cfg.Control.Disabled,
		InverterInterval: ms(cfg.Inverter.IntervalMs),
		InverterRetry:    ms(cfg.Inverter.RetryMs),
		InverterDebounce: ms(cfg.Inverter.DebounceMs),
	}, bridge.Deps{
		Decoder:    decoder,
		Controller: ctl,
		Registers:  regs,
		Inverter:   trig,
		Writer:     sink,
		Status:     statusSink,
		Metrics:    m,
		Log:        log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("bridge build failed")
	}

	log.Info().
		Bool("can", cfg.CAN.Enabled()).
		Bool("rs485", cfg.RS485.Enabled()).
		Bool("inverter", cfg.Inverter.Enabled()).
		Bool("mqtt", cfg.MQTT.Enabled()).
		Msg("bms bridge started")

	b.Run(ctx, bridge.Inputs{
		CAN:      canOut,
		Polls:    pollOut,
		Inverter: invOut,
		Manual:   manual,
	})

	// Workers stop on ctx; wait before the deferred closes pull their ports.
	wg.Wait()
	log.Info().Msg("bms bridge stopped")
}

func newLogger(c config.LogConfig) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if c.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func frameSpecs(f config.CANFramesConfig) []canbus.FrameSpec {
	return []canbus.FrameSpec{
		{Kind: canbus.KindLimits, ID: f.Limits.ID, Length: f.Limits.Length},
		{Kind: canbus.KindCharge, ID: f.SOC.ID, Length: f.SOC.Length},
		{Kind: canbus.KindFlags, ID: f.Flags.ID, Length: f.Flags.Length},
		{Kind: canbus.KindExtremes, ID: f.Extremes.ID, Length: f.Extremes.Length},
	}
}

func inverterTransport(c config.InverterConfig) inverter.Transporter {
	timeout := ms(c.TimeoutMs)
	if c.Transport == config.TransportRTUSerial {
		return inverter.NewRTUSerial(serialport.Config{
			Device:   c.Serial.Device,
			BaudRate: c.Serial.BaudRate,
			Parity:   c.Serial.Parity,
			Timeout:  timeout,
			RS485:    c.Serial.DirectionControl,
		})
	}
	return inverter.NewRTUOverTCP(c.Address, timeout)
}

// serveEmulatorSerial keeps the RTU slave up, reopening the port after a failure.
func serveEmulatorSerial(ctx context.Context, regs *emulator.Registers, c config.SerialConfig, log zerolog.Logger) {
	pc := serialport.Config{
		Device:   c.Device,
		BaudRate: c.BaudRate,
		Parity:   c.Parity,
		Timeout:  ms(c.ReadSliceMs),
		RS485:    c.DirectionControl,
	}

	for ctx.Err() == nil {
		port, err := serialport.Open(pc)
		if err == nil {
			log.Info().Str("device", c.Device).Int("baud", c.BaudRate).Msg("emulator rtu slave listening")
			err = regs.ServeRTU(ctx, port)
			_ = port.Close()
		}
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Str("device", c.Device).Msg("emulator serial failed, reopening")

		select {
		case <-ctx.Done():
			return
		case <-time.After(emulatorReopenDelay):
		}
	}
}
