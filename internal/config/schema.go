package config

// Config holds fable configuration.
// Loaded from ./config.yaml or ~/.fable/config.yaml, with FABLE_-prefixed
// environment variable overrides.
type Config struct {
	Server  ServerCfg  `mapstructure:"server" yaml:"server"`
	Store   StoreCfg   `mapstructure:"store" yaml:"store"`
	OpenAI  OpenAICfg  `mapstructure:"openai" yaml:"openai"`
	Storage StorageCfg `mapstructure:"storage" yaml:"storage"`
	Workers WorkersCfg `mapstructure:"workers" yaml:"workers"`
}

// ServerCfg configures the HTTP listener.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// StoreCfg configures the SQLite database.
type StoreCfg struct {
	// Path is the database file path. A relative path resolves against
	// the working directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// OpenAICfg configures the model provider.
type OpenAICfg struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	StoryModel string `mapstructure:"story_model" yaml:"story_model"`
	ImageModel string `mapstructure:"image_model" yaml:"image_model"`
	// RPM is the request rate ceiling in requests per minute, shared
	// policy for both models.
	RPM int `mapstructure:"rpm" yaml:"rpm"`
}

// StorageCfg configures the illustration object store.
type StorageCfg struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"` // supports ${ENV_VAR} syntax
}

// WorkersCfg bounds per-job-type worker pools.
type WorkersCfg struct {
	Narrative  int `mapstructure:"narrative" yaml:"narrative"`
	Illustrate int `mapstructure:"illustrate" yaml:"illustrate"`
	Finalize   int `mapstructure:"finalize" yaml:"finalize"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Store: StoreCfg{
			Path: "fable.db",
		},
		OpenAI: OpenAICfg{
			APIKey:     "${OPENAI_API_KEY}",
			StoryModel: "gpt-4o",
			ImageModel: "gpt-image-1",
			RPM:        60,
		},
		Storage: StorageCfg{
			Bucket:    "illustrations",
			AuthToken: "${FABLE_STORAGE_TOKEN}",
		},
		Workers: WorkersCfg{
			Narrative:  2,
			Illustrate: 4,
			Finalize:   1,
		},
	}
}
