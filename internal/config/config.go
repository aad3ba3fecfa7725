package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ClientConfig struct {
	APIBaseURL string `mapstructure:"api_base_url"`
	AuthKey    string `mapstructure:"auth_key"`
	RelayURL   string `mapstructure:"relay_url"`
	StorageDir string `mapstructure:"storage_dir"`
	Language   string `mapstructure:"language"`
}

type ServerConfig struct {
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

type Config struct {
	Mode   string       `mapstructure:"mode"`
	Client ClientConfig `mapstructure:"client"`
	Server ServerConfig `mapstructure:"server"`
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
	v.SetDefault("client.api_base_url", "http://localhost:9000")
	v.SetDefault("client.relay_url", "ws://localhost:8080/api/ws/relay")
	v.SetDefault("client.storage_dir", ".classsync")
	v.SetDefault("client.language", "en")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | API: %s\n", cfg.Mode, cfg.Server.Port, cfg.Client.APIBaseURL)
	return &cfg, nil
}
