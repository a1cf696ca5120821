package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultDBPath       = "document_analysis.db"
	DefaultClustersFile = "tag_clusters.json"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath     string
	CLIDBPath      string
	CLIClusters    string
	CLILogLevel    string
	CLILogFormat   string
	CLIMetricsFile string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath       ResolvedValue `json:"db_path"`
	ClustersPath ResolvedValue `json:"clusters_path"`
	LogLevel     ResolvedValue `json:"log_level"`
	LogFormat    ResolvedValue `json:"log_format"`
	MetricsFile  ResolvedValue `json:"metrics_file"`
}

type fileConfig struct {
	DBPath       string `yaml:"db_path"`
	ClustersPath string `yaml:"clusters_path"`
	MetricsFile  string `yaml:"metrics_file"`
	Log          struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tripletags", "config.yaml")
}

// ResolveConfig layers built-in defaults, the yaml file, environment
// variables and CLI flags, later layers winning.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	apply(&out.DBPath, DefaultDBPath, SourceDefault, "built-in default")
	if wd, err := os.Getwd(); err == nil {
		apply(&out.ClustersPath, filepath.Join(wd, DefaultClustersFile), SourceDefault, "working directory")
	} else {
		apply(&out.ClustersPath, DefaultClustersFile, SourceDefault, "built-in default")
	}
	apply(&out.LogLevel, DefaultLogLevel, SourceDefault, "built-in default")
	apply(&out.LogFormat, DefaultLogFormat, SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.ClustersPath, cfg.ClustersPath, SourceConfig, path)
		apply(&out.MetricsFile, cfg.MetricsFile, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "DB_PATH")
	applyEnv(&out.DBPath, "TRIPLETAGS_DB_PATH")
	applyEnv(&out.ClustersPath, "TRIPLETAGS_CLUSTERS")
	applyEnv(&out.LogLevel, "TRIPLETAGS_LOG_LEVEL")
	applyEnv(&out.LogFormat, "TRIPLETAGS_LOG_FORMAT")
	applyEnv(&out.MetricsFile, "TRIPLETAGS_METRICS_FILE")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.ClustersPath, opts.CLIClusters, SourceCLI, "--clusters")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.LogFormat, opts.CLILogFormat, SourceCLI, "--log-format")
	apply(&out.MetricsFile, opts.CLIMetricsFile, SourceCLI, "--metrics-file")

	for _, v := range []*ResolvedValue{&out.DBPath, &out.ClustersPath, &out.MetricsFile} {
		if v.Value != "" {
			v.Value = expandUserPath(v.Value)
		}
	}

	return out, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
