// internal/config/config.go
package config

type Config struct {
	Log      LogConfig      `yaml:"log"`
	CAN      CANConfig      `yaml:"can"`
	RS485    RS485Config    `yaml:"rs485"`
	Emulator EmulatorConfig `yaml:"emulator"`
	Control  ControlConfig  `yaml:"control"`
	Inverter InverterConfig `yaml:"inverter"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`  // zerolog level name
	Format string `yaml:"format"` // "console" or "json"
}

// ---- CAN ----

// CANConfig is enabled when Interface is set.
type CANConfig struct {
	Interface    string          `yaml:"interface"`
	StaleAfterMs int             `yaml:"stale_after_ms"`
	Frames       CANFramesConfig `yaml:"frames"`
}

type CANFramesConfig struct {
	Limits   CANFrameConfig `yaml:"limits"`
	SOC      CANFrameConfig `yaml:"soc"`
	Flags    CANFrameConfig `yaml:"flags"`
	Extremes CANFrameConfig `yaml:"extremes"`
}

type CANFrameConfig struct {
	ID     uint32 `yaml:"id"`
	Length int    `yaml:"length"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Device           string `yaml:"device"`
	BaudRate         int    `yaml:"baud_rate"`
	Parity           string `yaml:"parity"`
	DirectionControl bool   `yaml:"direction_control"` // kernel RS-485 DE/RE
	ReadSliceMs      int    `yaml:"read_slice_ms"`
}

// ---- RS-485 ----

// RS485Config is enabled when Device is set.
type RS485Config struct {
	SerialConfig `yaml:",inline"`

	Address   byte  `yaml:"address"`
	Batteries []int `yaml:"batteries"`

	TimeoutMs       int `yaml:"timeout_ms"`
	LiveIntervalMs  int `yaml:"live_interval_ms"`
	AlarmIntervalMs int `yaml:"alarm_interval_ms"`
	StaleAfterMs    int `yaml:"stale_after_ms"`
	AlarmThreshold  int `yaml:"alarm_threshold"`
}

// ---- EMULATOR ----

type EmulatorConfig struct {
	Serial SerialConfig `yaml:"serial"`

	// TCPListen enables the Modbus TCP face (host:port).
	TCPListen     string `yaml:"tcp_listen"`
	TCPMaxClients uint   `yaml:"tcp_max_clients"`

	BatteryUnit uint8  `yaml:"battery_unit"`
	BatteryBase uint16 `yaml:"battery_base"`
	ConfigUnit  uint8  `yaml:"config_unit"`
	ConfigBase  uint16 `yaml:"config_base"`
}

// ---- CONTROL ----

type ControlConfig struct {
	DischargeBlock HysteresisConfig `yaml:"discharge_block"`
	ForceCharge    HysteresisConfig `yaml:"force_charge"`

	DischargeOverride string `yaml:"discharge_override"` // auto | on | off
	ForceOverride     string `yaml:"force_override"`

	// Disabled clears both decisions and keeps them cleared.
	Disabled bool `yaml:"disabled"`
}

type HysteresisConfig struct {
	On  uint16 `yaml:"on"`
	Off uint16 `yaml:"off"`
}

// ---- INVERTER ----

const (
	TransportRTUOverTCP = "rtu_over_tcp"
	TransportRTUSerial  = "rtu_serial"
)

// InverterConfig is enabled when Address (rtu_over_tcp) or Serial.Device (rtu_serial) is set.
type InverterConfig struct {
	Transport string       `yaml:"transport"`
	Address   string       `yaml:"address"`
	Serial    SerialConfig `yaml:"serial"`

	UnitID   uint8  `yaml:"unit_id"`
	Register uint16 `yaml:"register"`

	TimeoutMs  int `yaml:"timeout_ms"`
	IntervalMs int `yaml:"interval_ms"`
	RetryMs    int `yaml:"retry_ms"`
	DebounceMs int `yaml:"debounce_ms"`
}

// ---- SINK ----

// MQTTConfig is enabled when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`

	MinIntervalMs int     `yaml:"min_interval_ms"`
	HeartbeatMs   int     `yaml:"heartbeat_ms"`
	Threshold     float64 `yaml:"threshold"`
	TimeoutMs     int     `yaml:"timeout_ms"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables
}

// Enabled helpers.

func (c CANConfig) Enabled() bool   { return c.Interface != "" }
func (c RS485Config) Enabled() bool { return c.Device != "" }
func (c MQTTConfig) Enabled() bool  { return c.Broker != "" }

func (c InverterConfig) Enabled() bool {
	if c.Transport == TransportRTUSerial {
		return c.Serial.Device != ""
	}
	return c.Address != ""
}
