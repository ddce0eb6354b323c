package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultEmbeddingModel = "text-embedding-004"
	defaultChatModel      = "gpt-3.5-turbo"
	defaultDimension      = 768
	defaultTopK           = 10
)

type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type Config struct {
	PostgresDSN string `yaml:"postgres_dsn"`

	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	GeminiAPIKey  string `yaml:"-"`

	MagentoBaseURL    string `yaml:"magento_base_url"`
	MagentoAdminToken string `yaml:"-"`

	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	LLM        LLMConfig        `yaml:"llm"`

	DocumentPath string `yaml:"document_path"`
	SearchTopK   int    `yaml:"search_top_k"`
	ListenAddr   string `yaml:"listen_addr"`
	Environment  string `yaml:"environment"`
}

// Load builds the configuration from defaults, an optional config.yaml in
// the working directory, and finally the environment. A .env file is loaded
// first when present so local development matches deployed env vars.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		PostgresDSN: "postgres://localhost:5432/support-agent?sslmode=disable",
		Embeddings: EmbeddingsConfig{
			Provider:  ProviderGemini,
			Model:     defaultEmbeddingModel,
			Dimension: defaultDimension,
		},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    defaultChatModel,
		},
		DocumentPath: "./dsa.pdf",
		SearchTopK:   defaultTopK,
		ListenAddr:   ":3000",
		Environment:  "production",
	}

	if data, err := os.ReadFile("config.yaml"); err == nil {
		// Env vars still win below; the file only overrides defaults.
		_ = yaml.Unmarshal(data, &cfg)
	}

	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.MagentoBaseURL = getEnv("MAGENTO_BASE_URL", cfg.MagentoBaseURL)
	cfg.MagentoAdminToken = getEnv("MAGENTO_ADMIN_TOKEN", cfg.MagentoAdminToken)
	cfg.Embeddings.Provider = getEnv("EMBEDDINGS_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.Model = getEnv("EMBEDDINGS_MODEL", cfg.Embeddings.Model)
	cfg.Embeddings.Dimension = getEnvInt("EMBEDDINGS_DIMENSION", cfg.Embeddings.Dimension)
	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.DocumentPath = getEnv("SUPPORT_PDF_PATH", cfg.DocumentPath)
	cfg.SearchTopK = getEnvInt("SEARCH_TOP_K", cfg.SearchTopK)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.Environment = getEnv("APP_ENV", cfg.Environment)

	return cfg
}

// Validate fails fast on missing credentials before any provider call.
func (c Config) Validate() error {
	missing := make([]string, 0)

	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Embeddings.Provider == ProviderGemini && c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.MagentoBaseURL == "" {
		missing = append(missing, "MAGENTO_BASE_URL")
	}
	if c.MagentoAdminToken == "" {
		missing = append(missing, "MAGENTO_ADMIN_TOKEN")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing env vars: %s", strings.Join(missing, ", "))
	}

	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	return nil
}

func (c Config) Development() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
