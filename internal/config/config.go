package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Pinecone  PineconeConfig  `yaml:"pinecone" mapstructure:"pinecone"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Chunk     ChunkConfig     `yaml:"chunk" mapstructure:"chunk"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Limits    LimitsConfig    `yaml:"limits" mapstructure:"limits"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the local sidecar database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	EmbedModel string `yaml:"embed_model" mapstructure:"embed_model"`
	EmbedDim   int    `yaml:"embed_dim" mapstructure:"embed_dim"`
	ChatModel  string `yaml:"chat_model" mapstructure:"chat_model"`
}

// PineconeConfig holds Pinecone index settings.
type PineconeConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Index   string `yaml:"index" mapstructure:"index"`
	Cloud   string `yaml:"cloud" mapstructure:"cloud"`
	Region  string `yaml:"region" mapstructure:"region"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings (alternate answer model).
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// LLMConfig selects the chat provider used by the answer chain.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // "openai" or "anthropic"
}

// ChunkConfig configures document chunking.
type ChunkConfig struct {
	Size    int `yaml:"size" mapstructure:"size"`
	Overlap int `yaml:"overlap" mapstructure:"overlap"`
}

// CacheConfig configures the LLM response cache.
type CacheConfig struct {
	TTLHours int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`
}

// LimitsConfig configures per-operation token buckets (requests per minute
// plus burst capacity).
type LimitsConfig struct {
	SearchPerMinute int `yaml:"search_per_minute" mapstructure:"search_per_minute"`
	SearchBurst     int `yaml:"search_burst" mapstructure:"search_burst"`
	UploadPerMinute int `yaml:"upload_per_minute" mapstructure:"upload_per_minute"`
	UploadBurst     int `yaml:"upload_burst" mapstructure:"upload_burst"`
	APIPerMinute    int `yaml:"api_per_minute" mapstructure:"api_per_minute"`
	APIBurst        int `yaml:"api_burst" mapstructure:"api_burst"`
}

// ExtractConfig configures document text extraction. External binaries are
// addressed by explicit path instead of PATH mutation; bare names fall back
// to PATH lookup at exec time.
type ExtractConfig struct {
	PdfToTextPath string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPpmPath  string  `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	TesseractPath string  `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	OCRDensity    float64 `yaml:"ocr_density" mapstructure:"ocr_density"`
	OCRDPI        int     `yaml:"ocr_dpi" mapstructure:"ocr_dpi"`
	MaxUploadMB   int     `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// .env is the documented contract for API keys; absence is fine.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// API keys keep their historical unprefixed env names.
	_ = v.BindEnv("openai.key", "OPENAI_API_KEY")
	_ = v.BindEnv("pinecone.key", "PINECONE_API_KEY")
	_ = v.BindEnv("pinecone.region", "PINECONE_ENV")
	_ = v.BindEnv("anthropic.key", "ANTHROPIC_API_KEY")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "cognitive_companion.db")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")
	v.SetDefault("openai.embed_dim", 1536)
	v.SetDefault("openai.chat_model", "gpt-4o")
	v.SetDefault("pinecone.index", "cca-memories")
	v.SetDefault("pinecone.cloud", "aws")
	v.SetDefault("pinecone.region", "us-east-1")
	v.SetDefault("pinecone.base_url", "https://api.pinecone.io")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("chunk.size", 1200)
	v.SetDefault("chunk.overlap", 200)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("limits.search_per_minute", 120)
	v.SetDefault("limits.search_burst", 30)
	v.SetDefault("limits.upload_per_minute", 10)
	v.SetDefault("limits.upload_burst", 5)
	v.SetDefault("limits.api_per_minute", 200)
	v.SetDefault("limits.api_burst", 50)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.pdftoppm_path", "pdftoppm")
	v.SetDefault("extract.tesseract_path", "tesseract")
	v.SetDefault("extract.ocr_density", 10.0)
	v.SetDefault("extract.ocr_dpi", 200)
	v.SetDefault("extract.max_upload_mb", 50)
	v.SetDefault("server.port", 8501)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the credential contract and returns every problem found,
// so the user can fix them all in one pass.
func (c *Config) Validate() []string {
	var errs []string

	check := func(name, value string, prefixes ...string) {
		placeholder := "your-" + strings.ToLower(strings.ReplaceAll(name, "_", "-")) + "-here"
		switch {
		case value == "":
			errs = append(errs, "missing "+name)
			return
		case value == placeholder:
			errs = append(errs, name+" is still set to placeholder value")
			return
		}
		for _, p := range prefixes {
			if strings.HasPrefix(value, p) {
				return
			}
		}
		errs = append(errs, name+" has invalid format")
	}

	check("OPENAI_API_KEY", c.OpenAI.Key, "sk-", "org-")
	check("PINECONE_API_KEY", c.Pinecone.Key, "pcsk_")

	if c.LLM.Provider == "anthropic" && c.Anthropic.Key == "" {
		errs = append(errs, "llm.provider is anthropic but ANTHROPIC_API_KEY is missing")
	}

	return errs
}

// SetupInstructions returns the remediation text shown when Validate fails.
func SetupInstructions(errs []string) string {
	var sb strings.Builder
	sb.WriteString("configuration errors:\n")
	for _, e := range errs {
		sb.WriteString("  - " + e + "\n")
	}
	sb.WriteString("\nsetup:\n")
	sb.WriteString("  1. copy .env.example to .env\n")
	sb.WriteString("  2. add your API keys to .env\n")
	sb.WriteString("  3. never commit .env to version control\n")
	return sb.String()
}

// MaskKey returns a masked form of a secret for display.
func MaskKey(value string) string {
	if value == "" {
		return "not configured"
	}
	if len(value) > 8 {
		return fmt.Sprintf("%s...%s", value[:4], value[len(value)-4:])
	}
	return "***"
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
