package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "expression-learner/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on HTTP 429 responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// FeedConfig holds settings for the news feed client.
type FeedConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Sources maps a source name to its RSS or Atom feed URL. Empty uses
	// the built-in BBC, NYT and TechCrunch feeds.
	Sources map[string]string `json:"sources" yaml:"sources" mapstructure:"sources"`

	// CacheTTL is how long fetched feeds are served from memory (default 5m).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// Limit is the default number of topics returned per feed (default 10).
	Limit int `json:"limit" yaml:"limit" mapstructure:"limit"`

	// FetchesPerSecond paces outbound feed requests (default 2).
	FetchesPerSecond float64 `json:"fetches_per_second" yaml:"fetches_per_second" mapstructure:"fetches_per_second"`
}

// LLMConfig holds settings for the Azure OpenAI chat deployment.
type LLMConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Endpoint is the Azure OpenAI resource URL
	// (e.g. "https://example.openai.azure.com").
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Deployment is the chat model deployment name.
	Deployment string `json:"deployment" yaml:"deployment" mapstructure:"deployment"`

	// APIVersion is the api-version query parameter (default "2024-02-15-preview").
	APIVersion string `json:"api_version" yaml:"api_version" mapstructure:"api_version"`

	// APIKey is the authentication key for the deployment.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Temperature is the sampling temperature (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// StoreConfig holds settings for the session store.
type StoreConfig struct {
	// Path is the SQLite database file (default "data/sessions.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// MaxResults is the default maximum number of search results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default ":8000").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// AllowedOrigins is sent as Access-Control-Allow-Origin. Empty allows all.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings for long-running commands.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// File, when set, receives a JSON copy of every log record.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// AppConfig groups all component configurations.
type AppConfig struct {
	Feeds  FeedConfig   `json:"feeds" yaml:"feeds" mapstructure:"feeds"`
	LLM    LLMConfig    `json:"llm" yaml:"llm" mapstructure:"llm"`
	Store  StoreConfig  `json:"store" yaml:"store" mapstructure:"store"`
	Server ServerConfig `json:"server" yaml:"server" mapstructure:"server"`
	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`
}
