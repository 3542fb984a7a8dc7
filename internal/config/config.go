package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"` // dev, test, prod
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
}

// DatabaseConfig 数据库配置，承载文档/分块/闭包表的关系型持久层
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // postgres, sqlite
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"` // sqlite 时为文件路径
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// RedisConfig 用于索引期间的跨进程文档级建议锁；未启用时退化为进程内锁
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// QdrantConfig 向量存储后端；summary/detail 两层各自一个具名集合
type QdrantConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	APIKey            string `yaml:"api_key"`
	UseTLS            bool   `yaml:"use_tls"`
	SummaryCollection string `yaml:"summary_collection"`
	DetailCollection  string `yaml:"detail_collection"`
	VectorDim         int    `yaml:"vector_dim"`
	UpsertBatchSize   int    `yaml:"upsert_batch_size"`
}

// EmbeddingConfig OpenAI 兼容的批量嵌入服务端点
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimension  int    `yaml:"dimension"`
	BatchSize  int    `yaml:"batch_size"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// IndexingConfig 分块与索引编排的可调策略
type IndexingConfig struct {
	MaxChunkChars  int `yaml:"max_chunk_chars"`
	SummaryMaxLen  int `yaml:"summary_max_len"`
	EmbedBatchSize int `yaml:"embed_batch_size"`
	MaxRetries     int `yaml:"max_retries"`
}

// RetrievalConfig 检索编排的默认参数
type RetrievalConfig struct {
	DefaultTopK             int `yaml:"default_top_k"`
	DefaultSummaryK         int `yaml:"default_summary_k"`
	DefaultDetailsPerSum    int `yaml:"default_details_per_summary"`
	DefaultContentMaxLength int `yaml:"default_content_max_length"`
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	once.Do(func() {
		globalConfig = cfg
	})

	return cfg, nil
}

// Default 返回带有合理缺省值的配置，供未提供配置文件的场景使用（测试、单次 CLI 调用）
func Default() *Config {
	return &Config{
		App:    AppConfig{Name: "statutelex", Env: "dev"},
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeout: 30, WriteTimeout: 30},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Database:        "./data/statutelex.db",
			MaxIdleConns:    5,
			MaxOpenConns:    20,
			ConnMaxLifetime: 3600,
		},
		Log: LogConfig{Level: "info", Format: "console", Output: "stdout"},
		Qdrant: QdrantConfig{
			Host:              "localhost",
			Port:              6334,
			SummaryCollection: "statutelex_summary",
			DetailCollection:  "statutelex_detail",
			VectorDim:         1024,
			UpsertBatchSize:   100,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-large",
			Dimension:  1024,
			BatchSize:  32,
			TimeoutSec: 60,
		},
		Indexing: IndexingConfig{
			MaxChunkChars:  800,
			SummaryMaxLen:  240,
			EmbedBatchSize: 32,
			MaxRetries:     3,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:             5,
			DefaultSummaryK:         3,
			DefaultDetailsPerSum:    3,
			DefaultContentMaxLength: 800,
		},
	}
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return Default()
	}
	return globalConfig
}

// SetConfig 设置全局配置
func SetConfig(cfg *Config) {
	globalConfig = cfg
}
