package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "NEWS_RADAR_CONFIG"
	databaseDSNEnv   = "DATABASE_DSN"
	openAIAPIKeyEnv  = "OPENAI_API_KEY"
	classifierModel  = "CLASSIFIER_MODEL"
	registryBaseEnv  = "CVE_REGISTRY_URL"
	defaultCveRegex  = `\bCVE-\d{4}-\d{4,7}\b`
	defaultMaxTokens = 70000
)

// Config holds high-level settings required across the application.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Grouping   GroupingConfig   `yaml:"grouping"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Registry   RegistryConfig   `yaml:"registry"`
	Logging    LoggingConfig    `yaml:"logging"`
	Sites      []SiteConfig     `yaml:"sites"`
}

// DatabaseConfig describes the SQL store connection. A postgres:// DSN selects
// the Postgres driver; any other value is treated as a SQLite path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the pipeline should run. An empty cron
// expression means a single pass and exit.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// GroupingConfig carries the explicit knobs of the grouping engine and the
// entity extractor: the ordered category set, the CVE pattern, and the token
// budget per classification batch.
type GroupingConfig struct {
	Categories        []string `yaml:"categories"`
	CvePattern        string   `yaml:"cvePattern"`
	MaxTokensPerBatch int      `yaml:"maxTokensPerBatch"`
	RefreshCveInfo    bool     `yaml:"refreshCveInfo"`
}

// ClassifierConfig defines how to contact the OpenAI-compatible classifier.
type ClassifierConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// RegistryConfig points at the CVE registry service.
type RegistryConfig struct {
	BaseURL string `yaml:"baseUrl"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SiteConfig describes a single news site with its scanner strategy.
type SiteConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	Feeds   []FeedConfig      `yaml:"feeds"`
	Options map[string]string `yaml:"options"`
}

// FeedConfig holds one concrete feed endpoint to poll.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides. A .env file in the working directory is honored when it exists.
func Load() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}

	if v := os.Getenv(classifierModel); v != "" {
		c.Classifier.Model = v
	}

	if v := os.Getenv(registryBaseEnv); v != "" {
		c.Registry.BaseURL = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if len(override.Grouping.Categories) > 0 {
		base.Grouping.Categories = override.Grouping.Categories
	}
	if override.Grouping.CvePattern != "" {
		base.Grouping.CvePattern = override.Grouping.CvePattern
	}
	if override.Grouping.MaxTokensPerBatch > 0 {
		base.Grouping.MaxTokensPerBatch = override.Grouping.MaxTokensPerBatch
	}
	if override.Grouping.RefreshCveInfo {
		base.Grouping.RefreshCveInfo = true
	}

	if override.Classifier.Endpoint != "" {
		base.Classifier.Endpoint = override.Classifier.Endpoint
	}
	if override.Classifier.Model != "" {
		base.Classifier.Model = override.Classifier.Model
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}

	if override.Registry.BaseURL != "" {
		base.Registry.BaseURL = override.Registry.BaseURL
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{DSN: "db/news.db"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Grouping: GroupingConfig{
			Categories: []string{
				"Science & Environment",
				"Business, Finance & Trade",
				"Artificial Intelligence & Machine Learning",
				"Software Development & Open Source",
				"Cybersecurity & Data Privacy",
				"Politics & Government",
				"Consumer Technology & Gadgets",
				"Automotive, Space & Transportation",
				"Enterprise Technology & Cloud Computing",
				"Other",
			},
			CvePattern:        defaultCveRegex,
			MaxTokensPerBatch: defaultMaxTokens,
		},
		Classifier: ClassifierConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "o3-mini",
			APIKey:   "",
		},
		Registry: RegistryConfig{BaseURL: "https://cveawg.mitre.org"},
		Logging:  LoggingConfig{Level: "info"},
		Sites: []SiteConfig{
			{
				Name:    "nist",
				Scanner: "rss",
				Feeds: []FeedConfig{
					{Name: "cybersecurity", URL: "https://www.nist.gov/news-events/cybersecurity/rss.xml"},
				},
			},
		},
	}
}
