package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Ingest    IngestConfig
	Extract   ExtractConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type IngestConfig struct {
	DataDir            string
	ChunkSize          int
	ChunkOverlap       int
	TopK               int
	DownloadTimeoutSec int
}

type ExtractConfig struct {
	TranscriberURL string
	OCRURL         string
	TTSURL         string
	TimeoutSec     int
}

type SchedulerConfig struct {
	MaxConcurrentJobs int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// UploadsDir is where raw uploads and downloaded remote payloads land.
func (c IngestConfig) UploadsDir() string { return filepath.Join(c.DataDir, "uploads") }

// ProcessedDir holds the derived normalized-text artifacts.
func (c IngestConfig) ProcessedDir() string { return filepath.Join(c.DataDir, "processed") }

// ExportsDir holds generated summary artifacts served for download.
func (c IngestConfig) ExportsDir() string { return filepath.Join(c.DataDir, "exports") }

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/localbook")

	viper.SetEnvPrefix("LOCALBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Ingest.ChunkSize <= 0 {
		return nil, fmt.Errorf("ingest.chunkSize must be positive, got %d", config.Ingest.ChunkSize)
	}
	if config.Ingest.ChunkOverlap < 0 || config.Ingest.ChunkOverlap >= config.Ingest.ChunkSize {
		return nil, fmt.Errorf("ingest.chunkOverlap (%d) must be non-negative and smaller than ingest.chunkSize (%d)",
			config.Ingest.ChunkOverlap, config.Ingest.ChunkSize)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 104857600)

	viper.SetDefault("sqlite.path", "./data/db/localbook.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "source_chunks")
	viper.SetDefault("milvus.vectorDim", 768)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 86400)

	viper.SetDefault("llm.baseURL", "http://localhost:11434/v1")
	viper.SetDefault("llm.apiKey", "ollama")
	viper.SetDefault("llm.model", "llama3")
	viper.SetDefault("llm.embeddingModel", "nomic-embed-text")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 120)

	viper.SetDefault("ingest.dataDir", "./data")
	viper.SetDefault("ingest.chunkSize", 1000)
	viper.SetDefault("ingest.chunkOverlap", 100)
	viper.SetDefault("ingest.topK", 4)
	viper.SetDefault("ingest.downloadTimeoutSec", 60)

	viper.SetDefault("extract.transcriberURL", "http://localhost:9000")
	viper.SetDefault("extract.ocrURL", "http://localhost:9100")
	viper.SetDefault("extract.ttsURL", "http://localhost:9200")
	viper.SetDefault("extract.timeoutSec", 600)

	viper.SetDefault("scheduler.maxConcurrentJobs", 2)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
