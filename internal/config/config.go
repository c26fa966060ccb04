package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv       = "MINDMAP_CONFIG"
	addrEnv             = "MINDMAP_ADDR"
	portEnv             = "PORT"
	logLevelEnv         = "LOG_LEVEL"
	openAIAPIKeyEnv     = "OPENAI_API_KEY"
	embeddingBackendEnv = "MINDMAP_EMBEDDING_BACKEND"
	databaseDSNEnv      = "DATABASE_DSN"
	storageDriverEnv    = "MINDMAP_STORAGE_DRIVER"
	readingListEnv      = "MINDMAP_READING_LIST"
)

// Config holds high-level settings required across the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Source     SourceConfig     `yaml:"source"`
	Scraping   ScrapingConfig   `yaml:"scraping"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Graph      GraphConfig      `yaml:"graph"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Layout     LayoutConfig     `yaml:"layout"`
	Storage    StorageConfig    `yaml:"storage"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"readTimeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gte=0"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// SourceConfig points at the exported reading list.
type SourceConfig struct {
	ReadingListPath string `yaml:"readingListPath"`
}

// ScrapingConfig controls content acquisition.
type ScrapingConfig struct {
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxContentLength int           `yaml:"maxContentLength" validate:"gt=0"`
	Delay            time.Duration `yaml:"delay" validate:"gte=0"`
	Concurrency      int           `yaml:"concurrency" validate:"gt=0"`
	UserAgent        string        `yaml:"userAgent" validate:"required"`
	MaxBodyBytes     int64         `yaml:"maxBodyBytes" validate:"gt=0"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Backend   string           `yaml:"backend" validate:"oneof=local openai hashing"`
	BatchSize int              `yaml:"batchSize" validate:"gt=0"`
	Normalize bool             `yaml:"normalize"`
	Local     LocalModelConfig `yaml:"local"`
	OpenAI    OpenAIConfig     `yaml:"openai"`
	Hashing   HashingConfig    `yaml:"hashing"`
	Breaker   BreakerConfig    `yaml:"breaker"`
}

// LocalModelConfig describes a locally hosted inference server.
type LocalModelConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

// OpenAIConfig defines how to contact the hosted embeddings API.
type OpenAIConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"apiKey"`
	Dimensions int           `yaml:"dimensions" validate:"gte=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
}

// HashingConfig configures the in-process feature hashing model.
type HashingConfig struct {
	Dimensions int `yaml:"dimensions" validate:"gt=0"`
}

// BreakerConfig guards remote embedding backends.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"maxRequests"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gte=0"`
	FailureThreshold float64       `yaml:"failureThreshold" validate:"gte=0,lte=1"`
	MinRequests      uint32        `yaml:"minRequests"`
}

// GraphConfig controls similarity edge retention.
type GraphConfig struct {
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`
	TopK      int     `yaml:"topK" validate:"gt=0"`
	MaxEdges  int     `yaml:"maxEdges" validate:"gte=0"`
}

// ClusteringConfig selects the clustering strategy.
type ClusteringConfig struct {
	Method        string  `yaml:"method" validate:"oneof=kmeans dbscan hierarchical"`
	Clusters      int     `yaml:"clusters"`
	Eps           float64 `yaml:"eps"`
	MinSamples    int     `yaml:"minSamples"`
	Seed          uint64  `yaml:"seed"`
	Restarts      int     `yaml:"restarts" validate:"gt=0"`
	MaxIterations int     `yaml:"maxIterations" validate:"gt=0"`
}

// LayoutConfig tunes the 2-D projection.
type LayoutConfig struct {
	Cutoff       int     `yaml:"cutoff" validate:"gt=0"`
	Perplexity   float64 `yaml:"perplexity" validate:"gt=0"`
	Iterations   int     `yaml:"iterations" validate:"gt=0"`
	LearningRate float64 `yaml:"learningRate" validate:"gt=0"`
	Seed         uint64  `yaml:"seed"`
}

// StorageConfig selects the snapshot store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=memory postgres sqlite badger"`
	PostgresDSN string `yaml:"postgresDsn" validate:"required_if=Driver postgres"`
	SQLitePath  string `yaml:"sqlitePath" validate:"required_if=Driver sqlite"`
	BadgerPath  string `yaml:"badgerPath" validate:"required_if=Driver badger"`
}

// SchedulerConfig enables periodic reading-list refreshes.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// PipelineConfig bounds concurrent compute work.
type PipelineConfig struct {
	ComputeWorkers int `yaml:"computeWorkers" validate:"gt=0"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := parse(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parse decodes YAML over the defaults so omitted keys keep their default value.
func parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(addrEnv); v != "" {
		c.Server.Addr = v
	} else if v := os.Getenv(portEnv); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Server.Addr = ":" + v
		}
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Embedding.OpenAI.APIKey = v
	}

	if v := os.Getenv(embeddingBackendEnv); v != "" {
		c.Embedding.Backend = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.PostgresDSN = v
	}

	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv(readingListEnv); v != "" {
		c.Source.ReadingListPath = v
	}
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Logging: LoggingConfig{Level: "info"},
		Source:  SourceConfig{ReadingListPath: "static/data/reading_list.json"},
		Scraping: ScrapingConfig{
			Timeout:          10 * time.Second,
			MaxContentLength: 5000,
			Delay:            time.Second,
			Concurrency:      4,
			UserAgent:        "MindMapService/1.0",
			MaxBodyBytes:     5 << 20,
		},
		Embedding: EmbeddingConfig{
			Backend:   "local",
			BatchSize: 32,
			Normalize: true,
			Local: LocalModelConfig{
				Endpoint: "http://localhost:8001",
				Model:    "all-MiniLM-L6-v2",
				Timeout:  60 * time.Second,
			},
			OpenAI: OpenAIConfig{
				Endpoint: "https://api.openai.com/v1",
				Model:    "text-embedding-3-small",
				Timeout:  30 * time.Second,
			},
			Hashing: HashingConfig{Dimensions: 512},
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 0.6,
				MinRequests:      3,
			},
		},
		Graph: GraphConfig{Threshold: 0.7, TopK: 5, MaxEdges: 500},
		Clustering: ClusteringConfig{
			Method:        "kmeans",
			Clusters:      5,
			MinSamples:    2,
			Seed:          42,
			Restarts:      10,
			MaxIterations: 300,
		},
		Layout: LayoutConfig{
			Cutoff:       500,
			Perplexity:   30,
			Iterations:   1000,
			LearningRate: 200,
			Seed:         42,
		},
		Storage:  StorageConfig{Driver: "memory"},
		Pipeline: PipelineConfig{ComputeWorkers: 2},
	}
}
