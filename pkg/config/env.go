package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOTMEP_"

// applyEnv overlays GOTMEP_* environment variables on top of the YAML values.
// A .env file in the working directory is loaded first if present; variables
// already set in the process environment win over the file.
func (c *Config) applyEnv() error {
	_ = godotenv.Load()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []string
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("DATA_DIR", &c.Device.DataDir)
	str("HARDWARE_ID_FILE", &c.Device.HardwareIDFile)
	str("WIRELESS", &c.Device.Wireless)
	dur("REBOOT_INTERVAL", &c.Device.RebootInterval)

	dur("LOOP_INTERVAL", &c.Measurement.LoopInterval)
	num("WINDOW_SIZE", &c.Measurement.WindowSize)
	flag("HUMIDITY", &c.Measurement.Humidity)
	flag("PRESSURE", &c.Measurement.Pressure)

	num("REMOTE_PORT", &c.Remote.Port)
	dur("REMOTE_TIMEOUT", &c.Remote.ResponseTimeout)
	dur("SEND_INTERVAL", &c.Remote.SendInterval)

	str("HTTP_LISTEN", &c.HTTP.Listen)

	str("SENSOR_KIND", &c.Sensor.Kind)
	str("SENSOR_PORT", &c.Sensor.Port)
	str("SENSOR_W1_DEVICE", &c.Sensor.W1Device)

	str("INDICATOR_KIND", &c.Indicator.Kind)
	str("INDICATOR_LED_PATH", &c.Indicator.LEDPath)

	str("PROVISION_KIND", &c.Provision.Kind)
	str("PROVISION_PIN", &c.Provision.PIN)
	if v, ok := lookup("PROVISION_HOSTS"); ok {
		c.Provision.Hosts = splitHosts(v)
	}

	str("MQTT_BROKER", &c.MQTT.Broker)
	str("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)
	str("MQTT_TOPIC", &c.MQTT.Topic)

	str("LOG_LEVEL", &c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// splitHosts splits a comma separated host list, keeping empty slots so that
// ",b.example" disables host #1.
func splitHosts(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
