package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds Ingestor node configuration
type Config struct {
	Server Server        `json:"server" yaml:"server"`
	Gossip Gossip        `json:"gossip" yaml:"gossip"`
	Ingest Ingest        `json:"ingest" yaml:"ingest"`
	Redis  Redis         `json:"redis" yaml:"redis"`
	Logger logger.Config `json:"logger" yaml:"logger"`
}

type Server struct {
	NodeID   string `json:"node_id" yaml:"node_id"`
	Hostname string `json:"hostname" yaml:"hostname"`
	Port     int    `json:"port" yaml:"port"`
}

type Gossip struct {
	Port  int      `json:"port" yaml:"port"`
	Seeds []string `json:"seeds" yaml:"seeds"`
}

type Ingest struct {
	NumShards        uint32 `json:"num_shards" yaml:"num_shards"`
	FlushTriggerRows int    `json:"flush_trigger_rows" yaml:"flush_trigger_rows"`
	MaxRowsPerTable  int    `json:"max_rows_per_table" yaml:"max_rows_per_table"`
	FlushIntervalMS  int    `json:"flush_interval_ms" yaml:"flush_interval_ms"`
	DefaultSpread    uint8  `json:"default_spread" yaml:"default_spread"`
	DataDir          string `json:"data_dir" yaml:"data_dir"`
	FSync            bool   `json:"fsync" yaml:"fsync"`
	FlushWorkers     int    `json:"flush_workers" yaml:"flush_workers"`
}

type Redis struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// FlushInterval returns the periodic flush trigger as a duration.
func (i Ingest) FlushInterval() time.Duration {
	return time.Duration(i.FlushIntervalMS) * time.Millisecond
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Hostname: "127.0.0.1",
			Port:     8086,
		},
		Gossip: Gossip{
			Port: 7946,
		},
		Ingest: Ingest{
			NumShards:        256,
			FlushTriggerRows: 100_000,
			MaxRowsPerTable:  200_000,
			FlushIntervalMS:  30_000,
			DefaultSpread:    0,
			DataDir:          "./data",
			FlushWorkers:     4,
		},
		Redis: Redis{
			Addr: "",
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "ingestor", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
