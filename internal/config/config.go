// Package config provides configuration loading for qaflow.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file
// and QAFLOW_* environment variables, in increasing order of precedence.
// The LLM credential is read once from OPENAI_API_KEY when it is not set
// explicitly.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when the LLM credential is absent.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete qaflow configuration.
type Config struct {
	Project   ProjectConfig   `koanf:"project"`
	Repo      RepoConfig      `koanf:"repo"`
	Docker    DockerConfig    `koanf:"docker"`
	Service   ServiceConfig   `koanf:"service"`
	LLM       LLMConfig       `koanf:"llm"`
	Runner    RunnerConfig    `koanf:"runner"`
	Scrub     ScrubConfig     `koanf:"scrub"`
	Events    EventsConfig    `koanf:"events"`
	Server    ServerConfig    `koanf:"server"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ProjectConfig locates the artifact tree (outputs/, tests/, reports/ ...).
type ProjectConfig struct {
	Root string `koanf:"root"`
}

// RepoConfig describes the repository under test.
type RepoConfig struct {
	URL         string `koanf:"url"`
	TargetDir   string `koanf:"target_dir"`
	Depth       int    `koanf:"depth"`        // 0 clones full history
	Preflight   bool   `koanf:"preflight"`    // Verify GitHub repositories before cloning
	GitHubToken Secret `koanf:"github_token"` // Optional, raises GitHub API limits
}

// DockerConfig controls image build and container startup.
type DockerConfig struct {
	Binary           string     `koanf:"binary"`
	UseSudo          bool       `koanf:"use_sudo"`
	ImageName        string     `koanf:"image_name"`
	Port             int        `koanf:"port"`
	SetupCommands    [][]string `koanf:"setup_commands"`
	PortReleaseDelay Duration   `koanf:"port_release_delay"`
	PortSettleDelay  Duration   `koanf:"port_settle_delay"`
	StartupDelay     Duration   `koanf:"startup_delay"`
}

// ServiceConfig addresses the provisioned application.
type ServiceConfig struct {
	BaseURL      string   `koanf:"base_url"`
	FetchTimeout Duration `koanf:"fetch_timeout"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	APIKey            Secret  `koanf:"api_key"`
	Model             string  `koanf:"model"`
	BaseURL           string  `koanf:"base_url"` // Empty uses the provider default
	Temperature       float64 `koanf:"temperature"`
	MaxRetries        int     `koanf:"max_retries"`
	RequestsPerMinute float64 `koanf:"requests_per_minute"`
	Burst             int     `koanf:"burst"`
}

// RunnerConfig controls generated script execution.
type RunnerConfig struct {
	Python  string   `koanf:"python"`
	Timeout Duration `koanf:"timeout"` // 0 waits for the script to exit
}

// ScrubConfig controls secret scrubbing of page markup and test output.
type ScrubConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// EventsConfig enables stage event publishing. Empty NATSURL disables it.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ServerConfig configures the results server.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures Prometheus export after a run.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"` // Empty disables the textfile export
}

// LoggingConfig is the user-facing subset of logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// TelemetryConfig is the user-facing subset of OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Project: ProjectConfig{Root: "."},
		Repo: RepoConfig{
			URL:       "https://github.com/devmahmud/Django-Poll-App",
			TargetDir: "repo",
		},
		Docker: DockerConfig{
			Binary:    "docker",
			ImageName: "fst_sandbox_app",
			Port:      8000,
			SetupCommands: [][]string{
				{"python", "manage.py", "makemigrations"},
				{"python", "manage.py", "migrate"},
			},
			PortReleaseDelay: Duration(2 * time.Second),
			PortSettleDelay:  Duration(3 * time.Second),
			StartupDelay:     Duration(10 * time.Second),
		},
		Service: ServiceConfig{
			BaseURL:      "http://localhost:8000",
			FetchTimeout: Duration(30 * time.Second),
		},
		LLM: LLMConfig{
			Model:             "gpt-4o-mini",
			Temperature:       0.2,
			MaxRetries:        2,
			RequestsPerMinute: 50,
			Burst:             5,
		},
		Runner: RunnerConfig{Python: "python"},
		Scrub:  ScrubConfig{Enabled: true},
		Events: EventsConfig{SubjectPrefix: "qaflow"},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Protocol:   "grpc",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// Validate checks the configuration. It does not require the API key;
// commands that call the LLM use RequireAPIKey.
func (c *Config) Validate() error {
	var errs []error

	if c.Project.Root == "" {
		errs = append(errs, errors.New("project.root is required"))
	}
	if c.Repo.URL == "" {
		errs = append(errs, errors.New("repo.url is required"))
	}
	if c.Repo.TargetDir == "" {
		errs = append(errs, errors.New("repo.target_dir is required"))
	}
	if c.Repo.Depth < 0 {
		errs = append(errs, fmt.Errorf("repo.depth must be >= 0, got %d", c.Repo.Depth))
	}
	if c.Docker.Binary == "" {
		errs = append(errs, errors.New("docker.binary is required"))
	}
	if c.Docker.ImageName == "" {
		errs = append(errs, errors.New("docker.image_name is required"))
	}
	if c.Docker.Port < 1 || c.Docker.Port > 65535 {
		errs = append(errs, fmt.Errorf("docker.port must be 1-65535, got %d", c.Docker.Port))
	}
	for i, cmd := range c.Docker.SetupCommands {
		if len(cmd) == 0 {
			errs = append(errs, fmt.Errorf("docker.setup_commands[%d] is empty", i))
		}
	}
	if u, err := url.Parse(c.Service.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("service.base_url must be an absolute URL, got %q", c.Service.BaseURL))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("llm.requests_per_minute must be > 0, got %v", c.LLM.RequestsPerMinute))
	}
	if c.LLM.Burst < 1 {
		errs = append(errs, fmt.Errorf("llm.burst must be >= 1, got %d", c.LLM.Burst))
	}
	if c.Runner.Python == "" {
		errs = append(errs, errors.New("runner.python is required"))
	}
	if c.Events.NATSURL != "" && c.Events.SubjectPrefix == "" {
		errs = append(errs, errors.New("events.subject_prefix is required when events.nats_url is set"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RequireAPIKey fails with ErrMissingAPIKey when no LLM credential is set.
func (c *Config) RequireAPIKey() error {
	if !c.LLM.APIKey.IsSet() {
		return ErrMissingAPIKey
	}
	return nil
}
