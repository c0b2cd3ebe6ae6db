// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Sources SourcesConfig `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls the Postgres connection pool; an empty DSN selects the
// in-memory stores.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
}

// BrokerConfig selects and parameterizes the message channel.
type BrokerConfig struct {
	Provider           string            `mapstructure:"provider"`
	ProjectID          string            `mapstructure:"project_id"`
	SubscriptionPrefix string            `mapstructure:"subscription_prefix"`
	Queues             map[string]string `mapstructure:"queues"`
	QueueDepth         int               `mapstructure:"queue_depth"`
}

// WorkerConfig governs the consumption loop.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// RequireAllSources flips the composite policy: when true an "all" job
	// fails unless every sub-source succeeds.
	RequireAllSources bool `mapstructure:"require_all_sources"`
}

// ScraperConfig holds knobs shared by every strategy.
type ScraperConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SourcesConfig points the strategies at their targets.
type SourcesConfig struct {
	TeamStats  TeamStatsSource  `mapstructure:"team_stats"`
	FilmAwards FilmAwardsSource `mapstructure:"film_awards"`
}

// TeamStatsSource configures the static paginated scraper.
type TeamStatsSource struct {
	URL         string `mapstructure:"url"`
	PageParam   string `mapstructure:"page_param"`
	MaxPages    int    `mapstructure:"max_pages"`
	DelayMs     int    `mapstructure:"delay_ms"`
	RowSelector string `mapstructure:"row_selector"`
}

// FilmAwardsSource configures the headless browser scraper.
type FilmAwardsSource struct {
	URL            string `mapstructure:"url"`
	WaitSelector   string `mapstructure:"wait_selector"`
	WaitTimeoutSec int    `mapstructure:"wait_timeout_seconds"`
	MaxParallel    int    `mapstructure:"max_parallel"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPEJOBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("broker.provider", "memory")
	v.SetDefault("broker.subscription_prefix", "scrapejobs")
	v.SetDefault("broker.queue_depth", 64)
	v.SetDefault("broker.queues.team_stats", "scrape-team-stats")
	v.SetDefault("broker.queues.film_awards", "scrape-film-awards")
	v.SetDefault("broker.queues.all", "scrape-all")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.require_all_sources", false)
	v.SetDefault("scraper.user_agent", "scrapejobs-bot/1.0")
	v.SetDefault("scraper.timeout_seconds", 30)
	v.SetDefault("sources.team_stats.page_param", "page")
	v.SetDefault("sources.team_stats.max_pages", 0)
	v.SetDefault("sources.team_stats.delay_ms", 1000)
	v.SetDefault("sources.team_stats.row_selector", "tr.team")
	v.SetDefault("sources.film_awards.wait_selector", ".film")
	v.SetDefault("sources.film_awards.wait_timeout_seconds", 30)
	v.SetDefault("sources.film_awards.max_parallel", 1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	switch c.Broker.Provider {
	case "memory":
	case "pubsub":
		if c.Broker.ProjectID == "" {
			return fmt.Errorf("broker.project_id must be set when broker.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown broker.provider %q", c.Broker.Provider)
	}
	for _, t := range scraping.JobTypes() {
		if c.Broker.Queues[string(t)] == "" {
			return fmt.Errorf("broker.queues.%s must be set", t)
		}
	}
	if c.Sources.FilmAwards.WaitTimeoutSec <= 0 {
		return fmt.Errorf("sources.film_awards.wait_timeout_seconds must be > 0")
	}
	return nil
}

// QueueFor maps a job type to its configured queue name.
func (c Config) QueueFor(t scraping.JobType) string {
	return c.Broker.Queues[string(t)]
}

// WorkerQueues maps every job type to its queue for the worker loop.
func (c Config) WorkerQueues() map[scraping.JobType]string {
	queues := make(map[scraping.JobType]string, len(scraping.JobTypes()))
	for _, t := range scraping.JobTypes() {
		queues[t] = c.QueueFor(t)
	}
	return queues
}

// ScrapeTimeout converts the scraper timeout into a duration.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}
