package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Destination types understood by the destinations builder.
const (
	DestinationSMS    = "sms"
	DestinationCoAP   = "coap"
	DestinationMQTT   = "mqtt"
	DestinationSocket = "socket"
)

// Encoder types.
const (
	EncoderJSON       = "json"
	EncoderProtobuf   = "protobuf"
	EncoderExpression = "expression"
)

// Router strategies.
const (
	RouterStatic     = "static"
	RouterDeviceType = "device_type"
	RouterExpression = "expression"
)

// Target resolution policies.
const (
	TargetFirstActive    = "first_active"
	TargetAllActive      = "all_active"
	TargetExplicitTarget = "explicit_target"
)

// Queue overflow behaviours.
const (
	OverflowReject = "reject"
	OverflowBlock  = "block"
)

// Config is the root configuration structure for the command delivery service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Tenant   TenantConfig   `yaml:"tenant"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Devices  DevicesConfig  `yaml:"devices"`
	Commands CommandsConfig `yaml:"commands"`
}

// TenantConfig identifies the tenant this engine delivers commands for.
type TenantConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The same structure describes the inbound bus connection and the broker
// of every MQTT command destination.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig    `yaml:"broker"`
	Auth         MQTTAuthConfig      `yaml:"auth"`
	QoS          int                 `yaml:"qos"`
	CleanSession *bool               `yaml:"clean_session"`
	Reconnect    MQTTReconnectConfig `yaml:"reconnect"`
}

// IsCleanSession reports the clean-session flag, defaulting to true.
func (m MQTTConfig) IsCleanSession() bool {
	if m.CleanSession == nil {
		return true
	}
	return *m.CleanSession
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// DevicesConfig controls the device resolver.
type DevicesConfig struct {
	// SeedFile is an optional YAML file of devices, assignments and commands
	// applied to the database at startup.
	SeedFile string `yaml:"seed_file"`
}

// CommandsConfig contains the command delivery pipeline settings.
type CommandsConfig struct {
	// InboundTopic carries enriched command invocations. "{tenant}" is
	// replaced with the tenant id. Empty uses the default topic layout.
	InboundTopic string `yaml:"inbound_topic"`

	// SystemTopic carries system command requests (registration acks,
	// stream acks). Empty disables the subscription.
	SystemTopic string `yaml:"system_topic"`

	// UndeliveredTopic receives invocations that could not be routed.
	// Empty disables republishing.
	UndeliveredTopic string `yaml:"undelivered_topic"`

	// TargetPolicy selects which active assignments receive a command:
	// "first_active", "all_active" or "explicit_target".
	TargetPolicy string `yaml:"target_policy"`

	// DeliveryTimeout bounds a single destination delivery. Zero leaves
	// timeouts to the providers.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`

	Consumer     ConsumerConfig      `yaml:"consumer"`
	Router       RouterConfig        `yaml:"router"`
	Destinations []DestinationConfig `yaml:"destinations"`
}

// ConsumerConfig sizes the invocation worker pool.
type ConsumerConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	Overflow        string        `yaml:"overflow"`
	BlockTimeout    time.Duration `yaml:"block_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RouterConfig selects the outbound command routing strategy.
type RouterConfig struct {
	// Type is "static", "device_type" or "expression".
	Type string `yaml:"type"`

	// Destination is the single destination used by the static router.
	Destination string `yaml:"destination"`

	// Mappings maps device type ids to destination ids (device_type router).
	Mappings map[string]string `yaml:"mappings"`

	// Default is used by the device_type router when no mapping matches.
	Default string `yaml:"default"`

	// Expression is evaluated by the expression router and must yield a
	// destination id.
	Expression string `yaml:"expression"`
}

// DestinationConfig declares one command destination.
type DestinationConfig struct {
	ID        string          `yaml:"id"`
	Type      string          `yaml:"type"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Extractor ExtractorConfig `yaml:"extractor"`

	SMS    SMSConfig    `yaml:"sms"`
	CoAP   CoAPConfig   `yaml:"coap"`
	MQTT   MQTTDestConf `yaml:"mqtt"`
	Socket SocketConfig `yaml:"socket"`
}

// EncoderConfig selects the command execution encoder.
type EncoderConfig struct {
	Type       string `yaml:"type"`
	Expression string `yaml:"expression"`
}

// ExtractorConfig holds metadata field names and fixed overrides for the
// delivery parameter extractor. Overrides always win over gateway metadata.
type ExtractorConfig struct {
	PhoneField    string `yaml:"phone_field"`
	HostnameField string `yaml:"hostname_field"`
	PortField     string `yaml:"port_field"`
	URLField      string `yaml:"url_field"`
	MethodField   string `yaml:"method_field"`

	Phone    string `yaml:"phone"`
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	URL      string `yaml:"url"`
	Method   string `yaml:"method"`
}

// SMSConfig contains SMS gateway credentials.
type SMSConfig struct {
	AccountSID string        `yaml:"account_sid"`
	AuthToken  string        `yaml:"auth_token"`
	FromNumber string        `yaml:"from_number"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CoAPConfig contains CoAP client settings.
type CoAPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTDestConf describes an MQTT command destination.
type MQTTDestConf struct {
	Connection   MQTTConfig `yaml:"connection"`
	CommandTopic string     `yaml:"command_topic"`
	SystemTopic  string     `yaml:"system_topic"`
	Retained     bool       `yaml:"retained"`
}

// SocketConfig contains TCP socket delivery settings.
type SocketConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_TENANT_ID
//
// Destination credentials are additionally expanded with os.ExpandEnv so
// secrets can be kept out of the file ("auth_token: ${SMS_AUTH_TOKEN}").
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	expandSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Tenant: TenantConfig{
			ID:   "default",
			Name: "Default Tenant",
		},
		Database: DatabaseConfig{
			Path:        "./data/commands.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-commands",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Listen: ":9102",
			Path:   "/metrics",
		},
		Commands: CommandsConfig{
			TargetPolicy: TargetFirstActive,
			Consumer: ConsumerConfig{
				Workers:         5,
				QueueSize:       100,
				Overflow:        OverflowReject,
				BlockTimeout:    2 * time.Second,
				ShutdownTimeout: 10 * time.Second,
			},
			Router: RouterConfig{
				Type: RouterStatic,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_TENANT_ID"); v != "" {
		cfg.Tenant.ID = v
	}

	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandSecrets resolves ${VAR} references in destination credentials.
func expandSecrets(cfg *Config) {
	for i := range cfg.Commands.Destinations {
		d := &cfg.Commands.Destinations[i]
		d.SMS.AccountSID = os.ExpandEnv(d.SMS.AccountSID)
		d.SMS.AuthToken = os.ExpandEnv(d.SMS.AuthToken)
		d.SMS.FromNumber = os.ExpandEnv(d.SMS.FromNumber)
		d.MQTT.Connection.Auth.Username = os.ExpandEnv(d.MQTT.Connection.Auth.Username)
		d.MQTT.Connection.Auth.Password = os.ExpandEnv(d.MQTT.Connection.Auth.Password)
	}
}

// Validate checks the configuration for errors.
// Credentials are not checked here: a destination with missing credentials
// fails at startup instead.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Tenant.ID == "" {
		errs = append(errs, "tenant.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	errs = append(errs, c.Commands.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *CommandsConfig) validate() []string {
	var errs []string

	switch c.TargetPolicy {
	case TargetFirstActive, TargetAllActive, TargetExplicitTarget:
	default:
		errs = append(errs, fmt.Sprintf("commands.target_policy %q is not supported", c.TargetPolicy))
	}

	if c.Consumer.Workers < 1 {
		errs = append(errs, "commands.consumer.workers must be at least 1")
	}
	if c.Consumer.QueueSize < 1 {
		errs = append(errs, "commands.consumer.queue_size must be at least 1")
	}
	if c.Consumer.Overflow != OverflowReject && c.Consumer.Overflow != OverflowBlock {
		errs = append(errs, "commands.consumer.overflow must be \"reject\" or \"block\"")
	}

	switch c.Router.Type {
	case RouterStatic:
		if c.Router.Destination == "" {
			errs = append(errs, "commands.router.destination is required for the static router")
		}
	case RouterDeviceType:
		if len(c.Router.Mappings) == 0 && c.Router.Default == "" {
			errs = append(errs, "commands.router needs mappings or a default for the device_type router")
		}
	case RouterExpression:
		if c.Router.Expression == "" {
			errs = append(errs, "commands.router.expression is required for the expression router")
		}
	default:
		errs = append(errs, fmt.Sprintf("commands.router.type %q is not supported", c.Router.Type))
	}

	if len(c.Destinations) == 0 {
		errs = append(errs, "commands.destinations must declare at least one destination")
	}

	seen := make(map[string]bool, len(c.Destinations))
	for i, d := range c.Destinations {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("commands.destinations[%d].id is required", i))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("commands.destinations: duplicate id %q", d.ID))
		}
		seen[d.ID] = true

		switch d.Type {
		case DestinationSMS, DestinationCoAP, DestinationMQTT, DestinationSocket:
		default:
			errs = append(errs, fmt.Sprintf("commands.destinations[%s].type %q is not supported", d.ID, d.Type))
		}

		switch d.Encoder.Type {
		case "", EncoderJSON, EncoderProtobuf:
		case EncoderExpression:
			if d.Encoder.Expression == "" {
				errs = append(errs, fmt.Sprintf("commands.destinations[%s].encoder.expression is required", d.ID))
			}
		default:
			errs = append(errs, fmt.Sprintf("commands.destinations[%s].encoder.type %q is not supported", d.ID, d.Encoder.Type))
		}

		if d.Extractor.Port < 0 || d.Extractor.Port > 65535 {
			errs = append(errs, fmt.Sprintf("commands.destinations[%s].extractor.port must be between 0 and 65535", d.ID))
		}
	}

	return errs
}

// TenantTopic substitutes "{tenant}" in a configured topic template.
func (c *Config) TenantTopic(template string) string {
	return strings.ReplaceAll(template, "{tenant}", c.Tenant.ID)
}
