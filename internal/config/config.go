package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	EnvFile   string  `yaml:"env_file"`
	Backend   Backend `yaml:"backend"`
	Sweep     Sweep   `yaml:"sweep"`
	TasksFile string  `yaml:"tasks_file"`
	Results   Results `yaml:"results"`
}

type Backend struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Docker  Docker        `yaml:"docker"`
}

type Docker struct {
	Enabled   bool   `yaml:"enabled"`
	Image     string `yaml:"image"`
	ModelsDir string `yaml:"models_dir"`
}

type Sweep struct {
	Model        string    `yaml:"model"`
	Quantization string    `yaml:"quantization"`
	Temperatures []float64 `yaml:"temperatures"`
	MaxTokens    []int     `yaml:"max_tokens"`
	Contexts     []int     `yaml:"contexts"`
	Parallel     int       `yaml:"parallel"`
}

type Results struct {
	Dir string `yaml:"dir"`
	DB  string `yaml:"db"`
}

const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultTimeout     = 2 * time.Minute
	DefaultDockerImage = "ollama/ollama:latest"
)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML config at path. A missing file yields Default();
// a file that exists but does not parse or validate is an error. The env
// file named by the config is loaded into the process environment, and
// LLMSWEEP_BASE_URL or OLLAMA_HOST override backend.base_url.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", cfg.EnvFile, err)
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LLMSWEEP_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
		return
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Backend.BaseURL = normalizeHost(v)
	}
}

// normalizeHost turns OLLAMA_HOST values such as "0.0.0.0:11434" into URLs.
func normalizeHost(h string) string {
	if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") {
		return h
	}
	return "http://" + h
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultTimeout
	}
	if cfg.Backend.Docker.Image == "" {
		cfg.Backend.Docker.Image = DefaultDockerImage
	}
	if cfg.Backend.Docker.ModelsDir != "" {
		cfg.Backend.Docker.ModelsDir = expandHome(cfg.Backend.Docker.ModelsDir)
	}
	s := &cfg.Sweep
	if s.Model == "" {
		s.Model = "llama3.2:1b"
	}
	if s.Quantization == "" {
		s.Quantization = "Q4_K_M"
	}
	if len(s.Temperatures) == 0 {
		s.Temperatures = []float64{0.0, 0.3, 0.7, 1.0}
	}
	if len(s.MaxTokens) == 0 {
		s.MaxTokens = []int{128, 256}
	}
	if len(s.Contexts) == 0 {
		s.Contexts = []int{1024, 2048}
	}
	if s.Parallel == 0 {
		s.Parallel = 1
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "./results"
	}
	if cfg.Results.DB == "" {
		cfg.Results.DB = filepath.Join(cfg.Results.Dir, "llmsweep.db")
	}
}

func Validate(cfg *Config) error {
	if cfg.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must not be negative")
	}
	s := cfg.Sweep
	for _, t := range s.Temperatures {
		if t < 0 {
			return fmt.Errorf("temperature %g must not be negative", t)
		}
	}
	for _, m := range s.MaxTokens {
		if m <= 0 {
			return fmt.Errorf("max_tokens %d must be positive", m)
		}
	}
	for _, c := range s.Contexts {
		if c <= 0 {
			return fmt.Errorf("context size %d must be positive", c)
		}
	}
	if s.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1")
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
