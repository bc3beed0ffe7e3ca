package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	DatabasePath string        `mapstructure:"database_path"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	SendLimit    int           `mapstructure:"send_limit"`
	SendInterval time.Duration `mapstructure:"send_interval"`
	TypingWindow time.Duration `mapstructure:"typing_window"`
	Secret       string        `mapstructure:"secret"`
	BlobBackend  string        `mapstructure:"blob_backend"`
	BlobDir      string        `mapstructure:"blob_dir"`
	NatsURL      string        `mapstructure:"nats_url"`
	NatsBucket   string        `mapstructure:"nats_bucket"`
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
	v.SetDefault("database_path", "parley.db")
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("send_limit", 30)
	v.SetDefault("send_interval", "10s")
	v.SetDefault("typing_window", "3s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("blob_backend", "fs")
	v.SetDefault("blob_dir", "./blobs")
	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("nats_bucket", "attachments")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
