package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Client  ClientConfig  `mapstructure:"client"`
	Emit    EmitConfig    `mapstructure:"emit"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	EventFile      string        `mapstructure:"event_file"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	SamplingPeriod time.Duration `mapstructure:"sampling_period"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	IOTimeout      time.Duration `mapstructure:"io_timeout"`
	AlignFrames    bool          `mapstructure:"align_frames"`
	WatchFile      bool          `mapstructure:"watch_file"`
	StatusAddr     string        `mapstructure:"status_addr"`
}

// ListenAddr returns host:port.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type ClientConfig struct {
	Address        string        `mapstructure:"address"`
	IOTimeout      time.Duration `mapstructure:"io_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxProcessTime time.Duration `mapstructure:"max_process_time"`
	RecordPath     string        `mapstructure:"record_path"`
}

type EmitConfig struct {
	Rate            float64 `mapstructure:"rate"`
	RecordsPerCycle int     `mapstructure:"records_per_cycle"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.event_file", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.sampling_period", 50*time.Millisecond)
	v.SetDefault("server.chunk_size", 16*1024)
	v.SetDefault("server.io_timeout", time.Millisecond)
	v.SetDefault("server.align_frames", true)
	v.SetDefault("server.watch_file", true)
	v.SetDefault("server.status_addr", "")
	v.SetDefault("client.address", net.JoinHostPort("127.0.0.1", strconv.Itoa(DefaultPort)))
	v.SetDefault("client.io_timeout", time.Millisecond)
	v.SetDefault("client.poll_interval", 50*time.Millisecond)
	v.SetDefault("client.max_process_time", 100*time.Millisecond)
	v.SetDefault("client.record_path", "")
	v.SetDefault("emit.rate", 20.0)
	v.SetDefault("emit.records_per_cycle", 4)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("LOGCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("logcast")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
