// Package config loads server settings from defaults, an optional YAML file
// and IRRIGATION_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "irrigation"

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Decision DecisionConfig `mapstructure:"decision"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	// DailyRetention is the number of days of pump totals kept.
	DailyRetention int `mapstructure:"daily_retention"`
}

type MQTTConfig struct {
	Broker        string        `mapstructure:"broker"`
	ClientID      string        `mapstructure:"client_id"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	QoS           byte          `mapstructure:"qos"`
	DeviceID      string        `mapstructure:"device_id"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type BridgeConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PlantsFile     string        `mapstructure:"plants_file"`
}

type DecisionConfig struct {
	Mode           string        `mapstructure:"mode"`
	Interval       time.Duration `mapstructure:"interval"`
	WindowSize     int           `mapstructure:"window_size"`
	FixedThreshold float64       `mapstructure:"fixed_threshold"`
	SafetyUpper    float64       `mapstructure:"safety_upper"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	DecisionEvent    = "event"
	DecisionPeriodic = "periodic"

	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":4000")

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "./data/irrigation.db")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "smart_irrigation")
	v.SetDefault("store.daily_retention", 35)

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "irrigation-server")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.device_id", "smartfarmdevice001")
	v.SetDefault("mqtt.max_retries", 5)
	v.SetDefault("mqtt.retry_interval", "2s")

	v.SetDefault("bridge.buffer_size", 50)
	v.SetDefault("bridge.confirm_timeout", "15s")
	v.SetDefault("bridge.plants_file", "plants.json")

	v.SetDefault("decision.mode", DecisionEvent)
	v.SetDefault("decision.interval", "10s")
	v.SetDefault("decision.window_size", 5)
	v.SetDefault("decision.fixed_threshold", 40.0)
	v.SetDefault("decision.safety_upper", 70.0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "irrigation.sensor_records")

	v.SetDefault("log.level", "info")
}

// Load reads path if it exists. A missing file is not an error; the
// defaults and environment still apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := v.ReadConfig(bytes.NewBuffer(b)); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Decision.Mode {
	case DecisionEvent, DecisionPeriodic:
	default:
		return fmt.Errorf("decision.mode must be %q or %q, got %q", DecisionEvent, DecisionPeriodic, c.Decision.Mode)
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverMongo, c.Store.Driver)
	}
	if c.MQTT.DeviceID == "" {
		return errors.New("mqtt.device_id is required")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Decision.Mode == DecisionPeriodic && c.Decision.Interval <= 0 {
		return errors.New("decision.interval must be positive in periodic mode")
	}
	return nil
}
