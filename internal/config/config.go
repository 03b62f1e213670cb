package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/painradar/aggregation-service/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	KV        KVConfig
	Storage   StorageConfig
	Sources   SourcesConfig
	Aggregate AggregateConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// KVConfig selects the key-value backend for cache and rate state.
// An empty RedisAddr means the in-process store is used.
type KVConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// StorageConfig holds persistence-sink configuration
type StorageConfig struct {
	Type        string // "postgresql", "mongodb", "dynamodb", "none"
	PostgresURI string
	MongoDBURI  string
	MongoDBName string
	Region      string // For AWS DynamoDB
	TableName   string
	Endpoint    string // Custom endpoint for local testing
}

// SourceConfig holds the per-source fetch tuning shared by all sources.
type SourceConfig struct {
	MinDelay   time.Duration
	DailyQuota int64
	CacheTTL   time.Duration
}

// SourcesConfig enumerates the fixed set of sources and their credentials.
type SourcesConfig struct {
	Reddit        SourceConfig
	StackExchange SourceConfig
	RSS           SourceConfig

	RedditClientID     string
	RedditClientSecret string
	RedditTokenURL     string
	RedditBaseURL      string
	UserAgent          string

	StackExchangeBaseURL string

	Subreddits []string
	StackSite  string
	StackTags  []string
	FeedURLs   []string

	FetchLimit int
}

// AggregateConfig holds aggregation-call and background-run settings.
type AggregateConfig struct {
	Deadline        time.Duration
	RefreshInterval time.Duration
	RefreshEnabled  bool
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		KV: KVConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Type:        getEnv("STORAGE_TYPE", "none"),
			PostgresURI: getEnv("POSTGRES_URI", ""),
			MongoDBURI:  getEnv("MONGODB_URI", ""),
			MongoDBName: getEnv("MONGODB_DATABASE", "painradar"),
			Region:      getEnv("AWS_REGION", "us-west-2"),
			TableName:   getEnv("TABLE_NAME", "accepted_problems"),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
		},
		Sources: SourcesConfig{
			Reddit: SourceConfig{
				MinDelay:   getEnvDuration("REDDIT_MIN_DELAY", 1100*time.Millisecond),
				DailyQuota: int64(getEnvInt("REDDIT_DAILY_QUOTA", 10000)),
				CacheTTL:   getEnvDuration("REDDIT_CACHE_TTL", 15*time.Minute),
			},
			StackExchange: SourceConfig{
				MinDelay:   getEnvDuration("STACKEXCHANGE_MIN_DELAY", 100*time.Millisecond),
				DailyQuota: int64(getEnvInt("STACKEXCHANGE_DAILY_QUOTA", 10000)),
				CacheTTL:   getEnvDuration("STACKEXCHANGE_CACHE_TTL", 20*time.Minute),
			},
			RSS: SourceConfig{
				MinDelay:   getEnvDuration("RSS_MIN_DELAY", 500*time.Millisecond),
				DailyQuota: int64(getEnvInt("RSS_DAILY_QUOTA", 10000)),
				CacheTTL:   getEnvDuration("RSS_CACHE_TTL", 20*time.Minute),
			},
			RedditClientID:       getEnv("REDDIT_CLIENT_ID", ""),
			RedditClientSecret:   getEnv("REDDIT_CLIENT_SECRET", ""),
			RedditTokenURL:       getEnv("REDDIT_TOKEN_URL", "https://www.reddit.com/api/v1/access_token"),
			RedditBaseURL:        getEnv("REDDIT_BASE_URL", "https://oauth.reddit.com"),
			UserAgent:            getEnv("USER_AGENT", "painradar-aggregation-service/1.0"),
			StackExchangeBaseURL: getEnv("STACKEXCHANGE_BASE_URL", "https://api.stackexchange.com"),
			Subreddits:           getEnvList("SUBREDDITS", "Entrepreneur,smallbusiness,startups,personalfinance,college"),
			StackSite:            getEnv("STACK_SITE", "stackoverflow"),
			StackTags:            getEnvList("STACK_TAGS", "productivity,automation"),
			FeedURLs:             getEnvList("RSS_FEEDS", ""),
			FetchLimit:           getEnvInt("FETCH_LIMIT", 25),
		},
		Aggregate: AggregateConfig{
			Deadline:        getEnvDuration("AGGREGATION_DEADLINE", 30*time.Second),
			RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 30*time.Minute),
			RefreshEnabled:  getEnvBool("REFRESH_ENABLED", false),
		},
	}

	return cfg, nil
}

// DefaultQueries expands the configured communities, tags and feeds into the
// full set of source queries one aggregation cycle covers.
func (s SourcesConfig) DefaultQueries() []models.SourceQuery {
	var queries []models.SourceQuery
	for _, sub := range s.Subreddits {
		queries = append(queries, models.SourceQuery{
			Source:    models.SourceReddit,
			Community: sub,
			Limit:     s.FetchLimit,
		})
	}
	for _, tag := range s.StackTags {
		queries = append(queries, models.SourceQuery{
			Source: models.SourceStackExchange,
			Site:   s.StackSite,
			Tag:    tag,
			Limit:  s.FetchLimit,
		})
	}
	for _, feed := range s.FeedURLs {
		queries = append(queries, models.SourceQuery{
			Source:  models.SourceRSS,
			FeedURL: feed,
			Limit:   s.FetchLimit,
		})
	}
	return queries
}

// ForSource returns the tuning block for the given source type.
func (s SourcesConfig) ForSource(st models.SourceType) SourceConfig {
	switch st {
	case models.SourceReddit:
		return s.Reddit
	case models.SourceStackExchange:
		return s.StackExchange
	default:
		return s.RSS
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
