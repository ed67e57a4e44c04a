package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the device agent configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Remote      RemoteConfig      `yaml:"remote"`
	HTTP        HTTPConfig        `yaml:"http"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Indicator   IndicatorConfig   `yaml:"indicator"`
	Gate        GateConfig        `yaml:"gate"`
	Provision   ProvisionConfig   `yaml:"provision"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Log         LogConfig         `yaml:"log"`
}

// DeviceConfig contains identity, storage and restart parameters.
type DeviceConfig struct {
	DataDir        string        `yaml:"data_dir"`
	HardwareIDFile string        `yaml:"hardware_id_file"` // Source of the stable device identity
	Wireless       string        `yaml:"wireless"`         // Interface reported as RSSI, empty for the first one
	RebootInterval time.Duration `yaml:"reboot_interval"`  // Forced "daily" restart, uptime based
	RestartDelay   time.Duration `yaml:"restart_delay"`    // Delay between accepted reset and restart
}

// MeasurementConfig contains sampling parameters.
type MeasurementConfig struct {
	LoopInterval time.Duration `yaml:"loop_interval"`
	WindowSize   int           `yaml:"window_size"` // Number of samples in the rolling average
	Humidity     bool          `yaml:"humidity"`
	Pressure     bool          `yaml:"pressure"`
}

// RemoteConfig contains remote push parameters.
type RemoteConfig struct {
	Port            int           `yaml:"port"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	SendInterval    time.Duration `yaml:"send_interval"`
}

// HTTPConfig contains local HTTP server parameters.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// SensorConfig selects and configures the sensor driver.
type SensorConfig struct {
	Kind        string        `yaml:"kind"` // mock, serial or w1
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	W1Device    string        `yaml:"w1_device"` // e.g. /sys/bus/w1/devices/28-0316a2794aff
	MockBias    float32       `yaml:"mock_bias"` // Mock base temperature (C)
	MockNoise   float32       `yaml:"mock_noise"`
}

// IndicatorConfig selects the status indicator.
type IndicatorConfig struct {
	Kind     string        `yaml:"kind"`     // log or sysfs
	LEDPath  string        `yaml:"led_path"` // e.g. /sys/class/leds/led0/brightness
	Interval time.Duration `yaml:"interval"`
}

// GateConfig contains reset gate parameters.
type GateConfig struct {
	Attempts int `yaml:"attempts"`
}

// ProvisionConfig selects the provisioning flow used when no stored settings exist.
type ProvisionConfig struct {
	Kind    string        `yaml:"kind"` // static or console
	Hosts   []string      `yaml:"hosts"`
	PIN     string        `yaml:"pin"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTConfig configures the optional snapshot mirror. Empty broker disables it.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Topic    string        `yaml:"topic"` // {device_id} is substituted
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			DataDir:        "/var/lib/gotmep",
			HardwareIDFile: "/etc/machine-id",
			RebootInterval: 104400000 * time.Millisecond, // 29 hours, first prime after 24
			RestartDelay:   5 * time.Second,
		},
		Measurement: MeasurementConfig{
			LoopInterval: 2 * time.Second,
			WindowSize:   30,
		},
		Remote: RemoteConfig{
			Port:            443,
			ConnectTimeout:  5 * time.Second,
			ResponseTimeout: 5 * time.Second,
			PollInterval:    10 * time.Millisecond,
			SendInterval:    60 * time.Second,
		},
		HTTP: HTTPConfig{
			Listen: ":80",
		},
		Sensor: SensorConfig{
			Kind:        "mock",
			Port:        "/dev/ttyACM0",
			BaudRate:    115200,
			ReadTimeout: 500 * time.Millisecond,
			MockBias:    21.5,
			MockNoise:   0.1,
		},
		Indicator: IndicatorConfig{
			Kind:     "log",
			Interval: 250 * time.Millisecond,
		},
		Gate: GateConfig{
			Attempts: 3,
		},
		Provision: ProvisionConfig{
			Kind:    "static",
			Hosts:   []string{"demo.tmep.cz"},
			Timeout: 300 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID: "gotmep",
			Topic:    "gotmep/{device_id}/snapshot",
			Timeout:  5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. Environment overrides are
// applied last.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.DataDir == "" {
		c.Device.DataDir = def.Device.DataDir
	}
	if c.Device.RebootInterval <= 0 {
		c.Device.RebootInterval = def.Device.RebootInterval
	}
	if c.Device.RestartDelay <= 0 {
		c.Device.RestartDelay = def.Device.RestartDelay
	}

	if c.Measurement.LoopInterval <= 0 {
		c.Measurement.LoopInterval = def.Measurement.LoopInterval
	}
	if c.Measurement.WindowSize <= 0 {
		c.Measurement.WindowSize = def.Measurement.WindowSize
	}

	if c.Remote.Port == 0 {
		c.Remote.Port = def.Remote.Port
	}
	if c.Remote.ConnectTimeout <= 0 {
		c.Remote.ConnectTimeout = def.Remote.ConnectTimeout
	}
	if c.Remote.ResponseTimeout <= 0 {
		c.Remote.ResponseTimeout = def.Remote.ResponseTimeout
	}
	if c.Remote.PollInterval <= 0 {
		c.Remote.PollInterval = def.Remote.PollInterval
	}
	if c.Remote.SendInterval <= 0 {
		c.Remote.SendInterval = def.Remote.SendInterval
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = def.HTTP.Listen
	}

	if c.Sensor.Kind == "" {
		c.Sensor.Kind = def.Sensor.Kind
	}
	if c.Sensor.BaudRate == 0 {
		c.Sensor.BaudRate = def.Sensor.BaudRate
	}
	if c.Sensor.ReadTimeout <= 0 {
		c.Sensor.ReadTimeout = def.Sensor.ReadTimeout
	}

	if c.Indicator.Kind == "" {
		c.Indicator.Kind = def.Indicator.Kind
	}
	if c.Indicator.Interval <= 0 {
		c.Indicator.Interval = def.Indicator.Interval
	}

	if c.Gate.Attempts <= 0 {
		c.Gate.Attempts = def.Gate.Attempts
	}

	if c.Provision.Kind == "" {
		c.Provision.Kind = def.Provision.Kind
	}
	if c.Provision.Timeout <= 0 {
		c.Provision.Timeout = def.Provision.Timeout
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.Timeout <= 0 {
		c.MQTT.Timeout = def.MQTT.Timeout
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
