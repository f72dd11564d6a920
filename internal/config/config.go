// internal/config/config.go
package config

type Config struct {
	Poller PollerConfig `yaml:"poller"`
}

type PollerConfig struct {
	LogLevel string         `yaml:"log_level"`
	HTTP     HTTPConfig     `yaml:"http"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	ID          string          `yaml:"id"`
	RegisterMap string          `yaml:"register_map"`
	Timezone    string          `yaml:"timezone"`
	Transport   TransportConfig `yaml:"transport"`
	Poll        PollConfig      `yaml:"poll"`
}

// ---- TRANSPORT ----

const (
	KindTCP        = "tcp"
	KindRTU        = "rtu"
	KindRTUOverTCP = "rtuovertcp"
)

type TransportConfig struct {
	Kind      string `yaml:"kind"`
	Endpoint  string `yaml:"endpoint"` // tcp, rtuovertcp
	Device    string `yaml:"device"`   // rtu
	BaudRate  int    `yaml:"baud_rate"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"`
	StopBits  int    `yaml:"stop_bits"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs          int  `yaml:"interval_ms"`
	MinRequestSpacingMs int  `yaml:"min_request_spacing_ms"`
	MaxSpan             int  `yaml:"max_span"`
	MaxGap              *int `yaml:"max_gap"`
}

// ---- CONSUMERS ----

type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the admin endpoint
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables the bridge
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}
