package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	// SecureCookies marks the session cookie Secure; leave it off unless
	// the server sits behind TLS, or the channel binding never comes back.
	SecureCookies bool `mapstructure:"secure_cookies"`

	ReadLimit  int64 `mapstructure:"read_limit"`
	SendBuffer int   `mapstructure:"send_buffer"`

	// Negotiated at handshake and announced to the client.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`

	// Liveness scheduling.
	SweepPeriod       time.Duration `mapstructure:"sweep_period"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	MaintenancePeriod time.Duration `mapstructure:"maintenance_period"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "insecure-dev-secret")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("heartbeat_timeout", "20s")
	v.SetDefault("close_timeout", "40s")
	v.SetDefault("sweep_period", "3s")
	v.SetDefault("stale_after", "15s")
	v.SetDefault("maintenance_period", "1h")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
