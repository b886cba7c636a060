package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SensorConfig holds the capture-side settings of the sensor.
type SensorConfig struct {
	Interface       string   `yaml:"interface"`
	CaptureFilter   string   `yaml:"capture_filter"`
	SnapLen         int32    `yaml:"snap_len"`
	Promiscuous     bool     `yaml:"promiscuous"`
	ReadTimeout     string   `yaml:"read_timeout"`
	WritePeriod     string   `yaml:"write_period"`
	IgnoreAddresses []string `yaml:"ignore_addresses"`
	IgnorePorts     []int    `yaml:"ignore_ports"`
	Debug           bool     `yaml:"debug"`
}

// StorageConfig defines where day logs are kept.
type StorageConfig struct {
	LogDirectory string `yaml:"log_directory"`
}

// WhitelistConfig defines the sources the whitelist is derived from at flush time.
type WhitelistConfig struct {
	SystemLogDirectory string   `yaml:"system_log_directory"`
	AuthLogPattern     string   `yaml:"auth_log_pattern"`
	ResolvConf         string   `yaml:"resolv_conf"`
	Addresses          []string `yaml:"addresses"`
}

// NetworkConfig supplements the autodetected local networks and host addresses.
type NetworkConfig struct {
	Autodetect     bool     `yaml:"autodetect"`
	LocalNetworks  []string `yaml:"local_networks"`
	HostAddresses  []string `yaml:"host_addresses"`
	RouteProbeAddr string   `yaml:"route_probe_addr"`
}

// LoggingConfig defines the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// NATSConfig holds the NATS exporter settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ExportersConfig groups the optional flush sinks.
type ExportersConfig struct {
	NATS       NATSConfig       `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// APIConfig holds the listen addresses of the read API.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Sensor    SensorConfig    `yaml:"sensor"`
	Storage   StorageConfig   `yaml:"storage"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	Network   NetworkConfig   `yaml:"network"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Exporters ExportersConfig `yaml:"exporters"`
	API       APIConfig       `yaml:"api"`
}

// Default returns a configuration with every field set to its default value.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			Interface:   "any",
			SnapLen:     2048,
			Promiscuous: true,
			ReadTimeout: "1s",
			WritePeriod: "300s",
		},
		Storage: StorageConfig{
			LogDirectory: "/var/log/scansentry",
		},
		Whitelist: WhitelistConfig{
			SystemLogDirectory: "/var/log",
			AuthLogPattern:     "auth.log*",
			ResolvConf:         "/etc/resolv.conf",
		},
		Network: NetworkConfig{
			Autodetect:     true,
			RouteProbeAddr: "8.8.8.8",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9464",
		},
		Exporters: ExportersConfig{
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "scansentry.contacts",
			},
			ClickHouse: ClickHouseConfig{
				Host:     "127.0.0.1",
				Port:     9000,
				Database: "default",
				Username: "default",
			},
		},
		API: APIConfig{
			ListenAddr:     ":8080",
			GRPCListenAddr: ":50051",
		},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Fields absent from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that the sensor cannot start without.
func (c *Config) Validate() error {
	if c.Sensor.Interface == "" {
		return fmt.Errorf("sensor.interface must not be empty")
	}
	if _, err := c.WritePeriod(); err != nil {
		return err
	}
	if _, err := c.ReadTimeout(); err != nil {
		return err
	}
	if c.Storage.LogDirectory == "" {
		return fmt.Errorf("storage.log_directory must not be empty")
	}
	for _, port := range c.Sensor.IgnorePorts {
		if port < 0 || port > 65535 {
			return fmt.Errorf("sensor.ignore_ports: port %d out of range", port)
		}
	}
	if err := checkIPv4List("sensor.ignore_addresses", c.Sensor.IgnoreAddresses); err != nil {
		return err
	}
	if err := checkIPv4List("whitelist.addresses", c.Whitelist.Addresses); err != nil {
		return err
	}
	if err := checkIPv4List("network.host_addresses", c.Network.HostAddresses); err != nil {
		return err
	}
	for _, cidr := range c.Network.LocalNetworks {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("network.local_networks: invalid CIDR '%s': %w", cidr, err)
		}
	}
	return nil
}

// WritePeriod returns the parsed interval between periodic flushes.
func (c *Config) WritePeriod() (time.Duration, error) {
	period, err := time.ParseDuration(c.Sensor.WritePeriod)
	if err != nil {
		return 0, fmt.Errorf("invalid sensor.write_period: %w", err)
	}
	if period <= 0 {
		return 0, fmt.Errorf("sensor.write_period must be a positive duration")
	}
	return period, nil
}

// ReadTimeout returns the parsed capture read timeout.
func (c *Config) ReadTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.Sensor.ReadTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid sensor.read_timeout: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("sensor.read_timeout must be a positive duration")
	}
	return timeout, nil
}

func checkIPv4List(field string, addrs []string) error {
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("%s: '%s' is not an IPv4 address", field, addr)
		}
	}
	return nil
}
