// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// config.<env>.yaml is optional
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

// Default returns a configuration holding only defaults. Used by the CLI and tests.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the files left them empty.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Elasticsearch.Username, "ELASTICSEARCH_USERNAME")
	setIfEmpty(&cfg.Database.Elasticsearch.Password, "ELASTICSEARCH_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Alerts.SNS.TopicARN, "ALERTS_SNS_TOPIC_ARN")
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "nlq-resolver"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.ConnMaxLifetime == 0 {
		cfg.Database.Postgres.ConnMaxLifetime = 300000
	}
	if cfg.Database.Postgres.ApplicationName == "" {
		cfg.Database.Postgres.ApplicationName = cfg.App.Name
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Resolver: zero means unset, negatives are left for validation to reject.
	if cfg.Resolver.MaxExecutionTime == 0 {
		cfg.Resolver.MaxExecutionTime = 30
	}
	if cfg.Resolver.MaxRows == 0 {
		cfg.Resolver.MaxRows = 1000
	}
	if len(cfg.Resolver.FallbackStrategies) == 0 {
		cfg.Resolver.FallbackStrategies = append([]string(nil), DefaultFallbackStrategies...)
	}
	if cfg.Resolver.SemanticSearchTimeout == 0 {
		cfg.Resolver.SemanticSearchTimeout = 2000
	}
	if cfg.Resolver.MaxAlternativePlans == 0 {
		cfg.Resolver.MaxAlternativePlans = 2
	}
	if cfg.Resolver.MinConfidence == 0 {
		cfg.Resolver.MinConfidence = 0.3
	}

	if cfg.Metadata.Source == "" {
		cfg.Metadata.Source = "redis"
	}
	if cfg.Metadata.RedisKey == "" {
		cfg.Metadata.RedisKey = "nlq:semantic_metadata"
	}
	if cfg.Metadata.RefreshInterval == 0 {
		cfg.Metadata.RefreshInterval = 300000
	}

	if cfg.Embedding.Index == "" {
		cfg.Embedding.Index = "schema_embeddings"
	}
	if cfg.Embedding.MaxResults == 0 {
		cfg.Embedding.MaxResults = 10
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.MetricsAddress == "" {
		cfg.Observability.MetricsAddress = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Embedding.Enabled && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when embedding is enabled")
	}

	switch cfg.Metadata.Source {
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for redis metadata source")
		}
	case "file":
		if cfg.Metadata.FilePath == "" {
			return fmt.Errorf("metadata.file_path is required for file metadata source")
		}
	default:
		return fmt.Errorf("metadata.source must be redis or file, got %q", cfg.Metadata.Source)
	}

	if cfg.Alerts.SNS.Enabled && cfg.Alerts.SNS.TopicARN == "" {
		return fmt.Errorf("alerts.sns.topic_arn is required when sns alerts are enabled")
	}

	return ValidateResolver(cfg.Resolver)
}

// ValidateResolver checks the settings the execution engine relies on.
func ValidateResolver(r ResolverConfig) error {
	if r.MaxExecutionTime <= 0 {
		return fmt.Errorf("resolver.max_execution_time must be > 0, got %d", r.MaxExecutionTime)
	}
	if r.MaxRows <= 0 {
		return fmt.Errorf("resolver.max_rows must be > 0, got %d", r.MaxRows)
	}
	if r.SemanticSearchTimeout < 0 {
		return fmt.Errorf("resolver.semantic_search_timeout must not be negative")
	}
	if r.MaxAlternativePlans < 0 {
		return fmt.Errorf("resolver.max_alternative_plans must not be negative")
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("resolver.min_confidence must be within [0,1], got %.2f", r.MinConfidence)
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
