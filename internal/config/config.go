// Package config loads the application configuration from the environment,
// optionally merged with a YAML policy file. Environment variables win over
// file values for scalar settings; the attribution policy (actor roles,
// operator split, label allow-list) is file-only because it does not map
// cleanly onto flat variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultGitHubURL       = "https://api.github.com"
	defaultActivityTTL     = 2 * time.Minute
	defaultMetricsTTL      = 5 * time.Minute
	defaultRefreshInterval = 90 * time.Second
	defaultCacheMaxEntries = 256
)

// Config holds application configuration.
type Config struct {
	Port int

	// GitHub configuration. An empty token works unauthenticated with
	// much lower rate limits.
	GitHubURL   string
	GitHubToken string

	// Repos lists the watched repositories as owner/name. The first entry
	// is the primary repository used for deploy runs and title lookups.
	Repos []string

	// Actors lists the account logins tracked in the per-agent metrics
	// breakdown.
	Actors []string

	ActivityTTL     time.Duration
	MetricsTTL      time.Duration
	RefreshInterval time.Duration
	CacheMaxEntries int

	// Attribution policy, loaded from the YAML file only.
	ActorRoles           map[string]string
	OperatorLogin        string
	OperatorInteractive  string
	OperatorAdmin        string
	AllowedLabels        []string
	AllowedLabelPrefixes []string
}

// fileConfig is the YAML shape of the optional policy file.
type fileConfig struct {
	Port            int      `yaml:"port"`
	GitHubURL       string   `yaml:"github_url"`
	Repos           []string `yaml:"repos"`
	Actors          []string `yaml:"actors"`
	ActivityTTL     string   `yaml:"activity_ttl"`
	MetricsTTL      string   `yaml:"metrics_ttl"`
	RefreshInterval string   `yaml:"refresh_interval"`
	CacheMaxEntries int      `yaml:"cache_max_entries"`

	ActorRoles map[string]string `yaml:"actor_roles"`
	Operator   fileOperator      `yaml:"operator"`
	Labels     fileLabels        `yaml:"labels"`
}

type fileOperator struct {
	Login       string `yaml:"login"`
	Interactive string `yaml:"interactive_role"`
	Admin       string `yaml:"admin_role"`
}

type fileLabels struct {
	Allowed  []string `yaml:"allowed"`
	Prefixes []string `yaml:"prefixes"`
}

// Load builds the configuration. Precedence: defaults, then the YAML file
// named by CONFIG_FILE (if set), then environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            defaultPort,
		GitHubURL:       defaultGitHubURL,
		ActivityTTL:     defaultActivityTTL,
		MetricsTTL:      defaultMetricsTTL,
		RefreshInterval: defaultRefreshInterval,
		CacheMaxEntries: defaultCacheMaxEntries,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if len(cfg.Repos) == 0 {
		return nil, fmt.Errorf("no repositories configured, set WATCHED_REPOS or the repos file key")
	}
	return cfg, nil
}

// PrimaryRepo returns the repository used for deploy runs and pull request
// title lookups.
func (c *Config) PrimaryRepo() string {
	return c.Repos[0]
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.GitHubURL != "" {
		c.GitHubURL = fc.GitHubURL
	}
	if len(fc.Repos) > 0 {
		c.Repos = fc.Repos
	}
	if len(fc.Actors) > 0 {
		c.Actors = fc.Actors
	}
	if fc.CacheMaxEntries > 0 {
		c.CacheMaxEntries = fc.CacheMaxEntries
	}

	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.ActivityTTL, &c.ActivityTTL},
		{fc.MetricsTTL, &c.MetricsTTL},
		{fc.RefreshInterval, &c.RefreshInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse duration %q in %s: %w", d.raw, path, err)
		}
		*d.dst = parsed
	}

	c.ActorRoles = fc.ActorRoles
	c.OperatorLogin = fc.Operator.Login
	c.OperatorInteractive = fc.Operator.Interactive
	c.OperatorAdmin = fc.Operator.Admin
	c.AllowedLabels = fc.Labels.Allowed
	c.AllowedLabelPrefixes = fc.Labels.Prefixes
	return nil
}

func (c *Config) applyEnv() {
	if p, ok := getEnvInt("PORT"); ok {
		c.Port = p
	}
	if v := os.Getenv("GITHUB_URL"); v != "" {
		c.GitHubURL = v
	}
	c.GitHubToken = os.Getenv("GITHUB_TOKEN")
	if repos := splitList(os.Getenv("WATCHED_REPOS")); len(repos) > 0 {
		c.Repos = repos
	}
	if actors := splitList(os.Getenv("TRACKED_ACTORS")); len(actors) > 0 {
		c.Actors = actors
	}
	if d, ok := getEnvDuration("ACTIVITY_TTL"); ok {
		c.ActivityTTL = d
	}
	if d, ok := getEnvDuration("METRICS_TTL"); ok {
		c.MetricsTTL = d
	}
	if d, ok := getEnvDuration("REFRESH_INTERVAL"); ok {
		c.RefreshInterval = d
	}
}

func getEnvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
