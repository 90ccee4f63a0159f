package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Environment variables holding upstream credentials. Credentials are never
// read from the settings file.
const (
	EnvTMDBKey       = "TMDB_API_KEY"
	EnvOMDBKey       = "OMDB_API_KEY"
	EnvTavilyKey     = "TAVILY_API_KEY"
	EnvPerplexityKey = "PERPLEXITY_API_KEY"
	EnvSerpAPIKey    = "SERPAPI_KEY"
	EnvSerpAPIAlias  = "SERPAPI_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvGoogleKey     = "GOOGLE_API_KEY"
)

// DefaultPath is the settings file looked up when no path is given.
const DefaultPath = "movieagent.yaml"

// Config holds all runtime settings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`

	Credentials Credentials `yaml:"-"`
}

type ServerConfig struct {
	Addr               string   `yaml:"addr"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

type CacheConfig struct {
	TTL  Duration `yaml:"ttl"`
	Size int      `yaml:"size"`
}

// UpstreamConfig governs every outbound call to third-party APIs.
type UpstreamConfig struct {
	Timeout           Duration `yaml:"timeout"`
	Retries           int      `yaml:"retries"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	MaxConcurrency    int      `yaml:"max_concurrency"`
	UserAgent         string   `yaml:"user_agent"`
}

type DiscoveryConfig struct {
	Region           string   `yaml:"region"`
	Language         string   `yaml:"language"`
	DefaultPageSize  int      `yaml:"default_page_size"`
	MaxPageSize      int      `yaml:"max_page_size"`
	WeeklyWindowDays int      `yaml:"weekly_window_days"`
	SearchResults    int      `yaml:"search_results"`
	ListReviews      bool     `yaml:"list_reviews"`
	ReviewDomains    []string `yaml:"review_domains"`
	ShortQueryWords  int      `yaml:"short_query_words"`
}

type LLMConfig struct {
	PerplexityModel string `yaml:"perplexity_model"`
	GeminiModel     string `yaml:"gemini_model"`
	// Classifier picks the model used for query classification: "gemini",
	// "perplexity" or empty for whichever is configured (gemini first).
	Classifier string `yaml:"classifier"`
}

type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Debug      bool   `yaml:"debug"`
}

// Credentials are the upstream API keys. An empty value means the provider is
// not configured.
type Credentials struct {
	TMDB       string
	OMDB       string
	Tavily     string
	Perplexity string
	SerpAPI    string
	Gemini     string
}

// Configured lists the providers that have a key, for startup logging.
func (c Credentials) Configured() []string {
	var names []string
	add := func(name, key string) {
		if strings.TrimSpace(key) != "" {
			names = append(names, name)
		}
	}
	add("tmdb", c.TMDB)
	add("omdb", c.OMDB)
	add("tavily", c.Tavily)
	add("serpapi", c.SerpAPI)
	add("perplexity", c.Perplexity)
	add("gemini", c.Gemini)
	return names
}

// Missing returns the names of the given environment keys that have no value.
// Aliases count: SERPAPI_API_KEY satisfies SERPAPI_KEY and GOOGLE_API_KEY
// satisfies GEMINI_API_KEY.
func (c Credentials) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(c.value(name)) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func (c Credentials) value(name string) string {
	switch name {
	case EnvTMDBKey:
		return c.TMDB
	case EnvOMDBKey:
		return c.OMDB
	case EnvTavilyKey:
		return c.Tavily
	case EnvPerplexityKey:
		return c.Perplexity
	case EnvSerpAPIKey, EnvSerpAPIAlias:
		return c.SerpAPI
	case EnvGeminiKey, EnvGoogleKey:
		return c.Gemini
	}
	return ""
}

// Duration is a time.Duration that decodes from strings such as "30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Error reports a settings file that exists but cannot be used.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config %q invalid", e.Path)
	}
	return fmt.Sprintf("config %q invalid: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			RateLimitPerMinute: 60,
			RateLimitBurst:     20,
		},
		Cache: CacheConfig{
			TTL:  Duration(30 * time.Minute),
			Size: 512,
		},
		Upstream: UpstreamConfig{
			Timeout:           Duration(20 * time.Second),
			Retries:           1,
			RequestsPerSecond: 10,
			MaxConcurrency:    8,
			UserAgent:         "movieagent/1.0",
		},
		Discovery: DiscoveryConfig{
			Region:           "IN",
			Language:         "en-US",
			DefaultPageSize:  10,
			MaxPageSize:      50,
			WeeklyWindowDays: 10,
			SearchResults:    8,
			ReviewDomains: []string{
				"indianexpress.com",
				"ndtv.com",
				"timesofindia.indiatimes.com",
			},
			ShortQueryWords: 5,
		},
		LLM: LLMConfig{
			PerplexityModel: "sonar-pro",
			GeminiModel:     "gemini-2.0-flash",
		},
		Logging: LoggingConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load reads the optional YAML settings file at path, an optional .env next to
// it, and then applies environment overrides. A missing settings file is not
// an error; the defaults are used instead.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	data, err := afero.ReadFile(fs, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, &Error{Path: path, Err: err}
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := loadDotEnv(fs, envPath); err != nil {
		return nil, &Error{Path: envPath, Err: err}
	}

	cfg.applyEnvOverrides()
	cfg.Credentials = credentialsFromEnv()
	cfg.normalize()
	return cfg, nil
}

// loadDotEnv exports .env entries that are not already present in the
// process environment.
func loadDotEnv(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for key, value := range values {
		if current, exists := os.LookupEnv(key); exists && strings.TrimSpace(current) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if port := env("PORT", ""); port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	c.Server.Addr = env("MOVIEAGENT_ADDR", c.Server.Addr)
	if origins := env("ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	if ttl := env("CACHE_TTL", ""); ttl != "" {
		if parsed, err := time.ParseDuration(ttl); err == nil {
			c.Cache.TTL = Duration(parsed)
		}
	}
	c.Cache.Size = envInt("CACHE_SIZE", c.Cache.Size)
	c.Logging.File = env("LOG_FILE", c.Logging.File)
	c.Discovery.Region = env("REGION", c.Discovery.Region)
}

func credentialsFromEnv() Credentials {
	return Credentials{
		TMDB:       env(EnvTMDBKey, ""),
		OMDB:       env(EnvOMDBKey, ""),
		Tavily:     env(EnvTavilyKey, ""),
		Perplexity: env(EnvPerplexityKey, ""),
		SerpAPI:    env(EnvSerpAPIKey, env(EnvSerpAPIAlias, "")),
		Gemini:     env(EnvGeminiKey, env(EnvGoogleKey, "")),
	}
}

// normalize replaces unusable values with defaults so consumers never need to
// re-check them.
func (c *Config) normalize() {
	def := Default()
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.RateLimitPerMinute <= 0 {
		c.Server.RateLimitPerMinute = def.Server.RateLimitPerMinute
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = def.Server.RateLimitBurst
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = def.Cache.Size
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = def.Upstream.Timeout
	}
	if c.Upstream.Retries < 0 {
		c.Upstream.Retries = 0
	}
	if c.Upstream.RequestsPerSecond <= 0 {
		c.Upstream.RequestsPerSecond = def.Upstream.RequestsPerSecond
	}
	if c.Upstream.MaxConcurrency <= 0 {
		c.Upstream.MaxConcurrency = def.Upstream.MaxConcurrency
	}
	if strings.TrimSpace(c.Upstream.UserAgent) == "" {
		c.Upstream.UserAgent = def.Upstream.UserAgent
	}
	c.Discovery.Region = strings.ToUpper(strings.TrimSpace(c.Discovery.Region))
	if c.Discovery.Region == "" {
		c.Discovery.Region = def.Discovery.Region
	}
	if strings.TrimSpace(c.Discovery.Language) == "" {
		c.Discovery.Language = def.Discovery.Language
	}
	if c.Discovery.MaxPageSize <= 0 {
		c.Discovery.MaxPageSize = def.Discovery.MaxPageSize
	}
	if c.Discovery.DefaultPageSize <= 0 {
		c.Discovery.DefaultPageSize = def.Discovery.DefaultPageSize
	}
	if c.Discovery.DefaultPageSize > c.Discovery.MaxPageSize {
		c.Discovery.DefaultPageSize = c.Discovery.MaxPageSize
	}
	if c.Discovery.WeeklyWindowDays <= 0 {
		c.Discovery.WeeklyWindowDays = def.Discovery.WeeklyWindowDays
	}
	if c.Discovery.SearchResults <= 0 {
		c.Discovery.SearchResults = def.Discovery.SearchResults
	}
	if c.Discovery.ShortQueryWords <= 0 {
		c.Discovery.ShortQueryWords = def.Discovery.ShortQueryWords
	}
	if strings.TrimSpace(c.LLM.PerplexityModel) == "" {
		c.LLM.PerplexityModel = def.LLM.PerplexityModel
	}
	if strings.TrimSpace(c.LLM.GeminiModel) == "" {
		c.LLM.GeminiModel = def.LLM.GeminiModel
	}
	c.LLM.Classifier = strings.ToLower(strings.TrimSpace(c.LLM.Classifier))
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
