// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Resolver      ResolverConfig          `mapstructure:"resolver"`
	Metadata      MetadataConfig          `mapstructure:"metadata"`
	Embedding     EmbeddingConfig         `mapstructure:"embedding"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Alerts        AlertsConfig            `mapstructure:"alerts"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	// DeployResources are BPMN files deployed once the client connects.
	DeployResources []string `mapstructure:"deploy_resources"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	// ConnMaxLifetime is in milliseconds.
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ApplicationName string `mapstructure:"application_name"`
	// ReadOnly opens every session with default_transaction_read_only, so
	// generated statements cannot write even if validation is bypassed.
	ReadOnly bool `mapstructure:"read_only"`
}

// GetDSN returns the PostgreSQL connection string. Values are quoted so
// passwords with spaces or quotes survive.
func (p PostgresConfig) GetDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnValue(p.Host), p.Port, dsnValue(p.User), dsnValue(p.Password), dsnValue(p.Database), dsnValue(p.SSLMode),
	)
	if p.ApplicationName != "" {
		dsn += " application_name=" + dsnValue(p.ApplicationName)
	}
	if p.ReadOnly {
		dsn += " default_transaction_read_only=on"
	}
	return dsn
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Resolver ---

// ResolverConfig drives the query resolution pipeline. MaxExecutionTime is
// the per-attempt budget, not the budget for the whole fallback chain.
type ResolverConfig struct {
	MaxExecutionTime      int      `mapstructure:"max_execution_time"` // seconds
	MaxRows               int      `mapstructure:"max_rows"`
	FallbackStrategies    []string `mapstructure:"fallback_strategies"`
	SemanticSearchTimeout int      `mapstructure:"semantic_search_timeout"` // milliseconds
	MaxAlternativePlans   int      `mapstructure:"max_alternative_plans"`
	MinConfidence         float64  `mapstructure:"min_confidence"`
}

// DefaultFallbackStrategies is the order the execution engine walks when a
// configuration does not name one.
var DefaultFallbackStrategies = []string{
	"simplify_query",
	"remove_complex_joins",
	"add_limit",
	"try_alternative_tables",
	"try_alternative_columns",
	"basic_select",
}

type MetadataConfig struct {
	Source          string `mapstructure:"source"` // redis | file
	RedisKey        string `mapstructure:"redis_key"`
	FilePath        string `mapstructure:"file_path"`
	RefreshInterval int    `mapstructure:"refresh_interval"` // milliseconds
}

type EmbeddingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Index      string  `mapstructure:"index"`
	MaxResults int     `mapstructure:"max_results"`
	MinScore   float64 `mapstructure:"min_score"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type AlertsConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
