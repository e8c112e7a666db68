package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FileName is the optional config file read from the working directory.
const FileName = "montage.toml"

// EnvPrefix prefixes environment overrides (e.g. MONTAGE_PORT=9090).
const EnvPrefix = "MONTAGE_"

// Config holds all configuration for the application
type Config struct {
	// Catalog is the field catalog file; empty uses the built-in catalog.
	Catalog string `koanf:"catalog"`
	Port    int    `koanf:"port"`
	// DB is the SQLite file for named portraits; empty disables storage.
	DB    string `koanf:"db"`
	Watch bool   `koanf:"watch"`
	// GeneIndex is a YAML or JSON gene annotation file.
	GeneIndex          string        `koanf:"gene-index"`
	PostProcessTimeout time.Duration `koanf:"postprocess-timeout"`
	Verbosity          string        `koanf:"verbosity"`
	VerboseCnt         int           `koanf:"verbose"`
	JSONLogs           bool          `koanf:"json-logs"`
}

// Defaults returns the lowest-priority configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"catalog":             "",
		"port":                8080,
		"db":                  "",
		"watch":               false,
		"gene-index":          "",
		"postprocess-timeout": "10s",
		"verbosity":           "",
		"verbose":             0,
		"json-logs":           false,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(FileName, f)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider(path), toml.Parser())

	// 3. Environment Variables
	// MONTAGE_GENE_INDEX -> gene-index
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return &cfg, nil
}

// Flags registers the command-line flags Load understands.
func Flags(f *pflag.FlagSet) {
	f.String("catalog", "", "field catalog file (YAML, JSON or TOML); built-in catalog if empty")
	f.IntP("port", "p", 8080, "HTTP port")
	f.String("db", "", "SQLite file for named portraits")
	f.Bool("watch", false, "reload the catalog when its file changes")
	f.String("gene-index", "", "gene annotation file used by the gene lookup")
	f.Duration("postprocess-timeout", 10*time.Second, "upper bound for field post-processing")
	f.String("verbosity", "", "log level (trace, debug, info, warn, error)")
	f.CountP("verbose", "v", "increase log verbosity")
	f.Bool("json-logs", false, "log as JSON")
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]any
}

func makeMapProvider(m map[string]any) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]any, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
