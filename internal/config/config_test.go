package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Broker.Provider != "memory" {
		t.Fatalf("expected memory broker by default, got %q", cfg.Broker.Provider)
	}
	if got := cfg.QueueFor(scraping.JobTypeTeamStats); got != "scrape-team-stats" {
		t.Fatalf("unexpected team stats queue: %q", got)
	}
	if got := cfg.ScrapeTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s scrape timeout, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
db:
  dsn: postgres://scrapejobs@localhost/scrapejobs
broker:
  provider: pubsub
  project_id: test-project
  queues:
    team_stats: custom-team-stats
worker:
  concurrency: 4
  require_all_sources: true
scraper:
  user_agent: custom-agent
  timeout_seconds: 45
sources:
  team_stats:
    url: https://example.com/hockey
    max_pages: 10
  film_awards:
    url: https://example.com/oscars
    wait_timeout_seconds: 20
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Broker.Provider != "pubsub" || cfg.Broker.ProjectID != "test-project" {
		t.Fatalf("expected pubsub broker overrides to apply: %+v", cfg.Broker)
	}
	if got := cfg.QueueFor(scraping.JobTypeTeamStats); got != "custom-team-stats" {
		t.Fatalf("expected queue override, got %q", got)
	}
	if got := cfg.QueueFor(scraping.JobTypeAll); got != "scrape-all" {
		t.Fatalf("expected default queue for all, got %q", got)
	}
	if !cfg.Worker.RequireAllSources || cfg.Worker.Concurrency != 4 {
		t.Fatalf("expected worker overrides to apply: %+v", cfg.Worker)
	}
	if cfg.Sources.TeamStats.MaxPages != 10 || cfg.Sources.TeamStats.PageParam != "page" {
		t.Fatalf("expected source overrides plus defaults: %+v", cfg.Sources.TeamStats)
	}
	if got := cfg.ScrapeTimeout(); got != 45*time.Second {
		t.Fatalf("expected 45s scrape timeout, got %v", got)
	}

	queues := cfg.WorkerQueues()
	if len(queues) != 3 || queues[scraping.JobTypeFilmAwards] != "scrape-film-awards" {
		t.Fatalf("unexpected worker queues: %+v", queues)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Broker:  BrokerConfig{Provider: "memory", Queues: defaultQueues()},
		Worker:  WorkerConfig{Concurrency: 2},
		Scraper: ScraperConfig{TimeoutSeconds: 30},
		Sources: SourcesConfig{
			FilmAwards: FilmAwardsSource{WaitTimeoutSec: 30},
		},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Worker.Concurrency = 0
				return c
			}(),
			want: "worker.concurrency",
		},
		{
			name: "invalid scrape timeout",
			cfg: func() Config {
				c := base
				c.Scraper.TimeoutSeconds = 0
				return c
			}(),
			want: "scraper.timeout_seconds",
		},
		{
			name: "pubsub without project",
			cfg: func() Config {
				c := base
				c.Broker.Provider = "pubsub"
				return c
			}(),
			want: "broker.project_id",
		},
		{
			name: "unknown broker",
			cfg: func() Config {
				c := base
				c.Broker.Provider = "rabbitmq"
				return c
			}(),
			want: "broker.provider",
		},
		{
			name: "missing queue",
			cfg: func() Config {
				c := base
				c.Broker.Queues = map[string]string{"team_stats": "q"}
				return c
			}(),
			want: "broker.queues",
		},
		{
			name: "invalid wait timeout",
			cfg: func() Config {
				c := base
				c.Sources.FilmAwards.WaitTimeoutSec = 0
				return c
			}(),
			want: "wait_timeout_seconds",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func defaultQueues() map[string]string {
	return map[string]string{
		"team_stats":  "scrape-team-stats",
		"film_awards": "scrape-film-awards",
		"all":         "scrape-all",
	}
}
