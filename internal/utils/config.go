package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benmeehan/mdm-poller/pkg/file"
)

// Config represents the structure of the configuration file.
// Every field can be overridden by its environment variable.
type Config struct {
	MDM struct {
		APIKey    string        `yaml:"api_key"`    // SimpleMDM API key, sent as the basic auth username
		BaseURL   string        `yaml:"base_url"`   // Vendor API root
		DeviceIDs []string      `yaml:"device_ids"` // Devices to poll, in order
		Timeout   time.Duration `yaml:"timeout"`    // Per-request timeout for vendor calls
	} `yaml:"mdm"`

	Poll struct {
		Interval time.Duration `yaml:"interval"` // Sleep between cycles
	} `yaml:"poll"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		DB       string `yaml:"db"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`

	Log struct {
		Level string `yaml:"level"` // zerolog level name
	} `yaml:"log"`

	Metrics struct {
		Port string `yaml:"port"` // Port for /metrics and /healthz, empty disables the server
	} `yaml:"metrics"`

	MQTT struct {
		Broker   string `yaml:"broker"`    // Broker URL, empty disables fix publishing
		Topic    string `yaml:"topic"`     // Topic stored fixes are published to
		ClientID string `yaml:"client_id"` // Client ID prefix
		QOS      int    `yaml:"qos"`       // MQTT QoS level for fix messages
		// Path to a PEM CA bundle, empty uses the system roots
		CACertificate string `yaml:"ca_certificate"`
	} `yaml:"mqtt"`
}

// DefaultConfig returns the configuration used when neither a file nor the environment
// provides a value.
func DefaultConfig() *Config {
	var config Config

	config.MDM.APIKey = "changeme"
	config.MDM.BaseURL = "https://a.simplemdm.com/api/v1"
	config.MDM.DeviceIDs = []string{"2154382", "2162127"}
	config.MDM.Timeout = 10 * time.Second

	config.Poll.Interval = 30 * time.Second

	config.Postgres.Host = "postgres-service.hocuspocus.svc.cluster.local"
	config.Postgres.Port = "5432"
	config.Postgres.DB = "mitmproxy"
	config.Postgres.User = "mitmproxy"
	config.Postgres.SSLMode = "prefer"

	config.Log.Level = "info"

	config.MQTT.Topic = "mdm/locations"
	config.MQTT.ClientID = "mdm-poller"
	config.MQTT.QOS = 1

	return &config
}

// LoadConfig builds the configuration from defaults, the optional YAML file at filename
// and finally the process environment.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		if err := fileClient.ReadYamlFile(filename, config); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	c.MDM.APIKey = getEnv("SIMPLEMDM_API_KEY", c.MDM.APIKey)
	c.MDM.BaseURL = getEnv("SIMPLEMDM_BASE_URL", c.MDM.BaseURL)
	if ids, ok := os.LookupEnv("SIMPLEMDM_DEVICE_IDS"); ok {
		c.MDM.DeviceIDs = strings.Split(ids, ",")
	}

	var err error
	if c.MDM.Timeout, err = getEnvSeconds("HTTP_TIMEOUT_SECONDS", c.MDM.Timeout); err != nil {
		return err
	}
	if c.Poll.Interval, err = getEnvSeconds("POLL_INTERVAL_SECONDS", c.Poll.Interval); err != nil {
		return err
	}

	c.Postgres.Host = getEnv("POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnv("POSTGRES_PORT", c.Postgres.Port)
	c.Postgres.DB = getEnv("POSTGRES_DB", c.Postgres.DB)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.SSLMode = getEnv("POSTGRES_SSLMODE", c.Postgres.SSLMode)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Metrics.Port = getEnv("METRICS_PORT", c.Metrics.Port)

	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.CACertificate = getEnv("MQTT_CA_CERT", c.MQTT.CACertificate)
	if qos := os.Getenv("MQTT_QOS"); qos != "" {
		n, err := strconv.Atoi(qos)
		if err != nil {
			return fmt.Errorf("invalid MQTT_QOS %q: %w", qos, err)
		}
		c.MQTT.QOS = n
	}

	return nil
}

// Validate rejects configurations the poller cannot run with.
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.MDM.Timeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	if c.MDM.BaseURL == "" {
		return errors.New("mdm base url must not be empty")
	}
	if c.MQTT.QOS < 0 || c.MQTT.QOS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QOS)
	}
	return nil
}

// PostgresDSN renders the connection parameters as a postgres:// URL.
func (c *Config) PostgresDSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:   c.Postgres.Host + ":" + c.Postgres.Port,
		Path:   "/" + c.Postgres.DB,
	}
	if c.Postgres.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": []string{c.Postgres.SSLMode}}.Encode()
	}
	return dsn.String()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	seconds, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
