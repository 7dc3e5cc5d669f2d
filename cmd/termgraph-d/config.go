package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddr     = "127.0.0.1:8090"
	defaultStore    = "sqlite"
	defaultCacheTTL = 10 * time.Minute
	defaultLogLevel = "info"
)

type Config struct {
	Store        string
	DBPath       string
	SnapshotPath string
	Addr         string
	RedisAddr    string
	CacheTTL     time.Duration
	LogLevel     string
	TLSCertFile  string
	TLSKeyFile   string
}

// fileConfig is the YAML form of Config. Empty fields keep the lower layer.
type fileConfig struct {
	Store     string `yaml:"store"`
	DB        string `yaml:"db"`
	Snapshot  string `yaml:"snapshot"`
	Addr      string `yaml:"addr"`
	RedisAddr string `yaml:"redis_addr"`
	CacheTTL  string `yaml:"cache_ttl"`
	LogLevel  string `yaml:"log_level"`
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`
}

// LoadConfig layers defaults, the YAML file named by -config or
// TERMGRAPH_CONFIG, TERMGRAPH_* environment variables and flags, each
// overriding the previous one.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	values := map[string]string{
		"store":      defaultStore,
		"db":         filepath.Join(cwd, "termgraph.db"),
		"snapshot":   "",
		"addr":       defaultAddr,
		"redis-addr": "",
		"cache-ttl":  defaultCacheTTL.String(),
		"log-level":  defaultLogLevel,
		"tls-cert":   "",
		"tls-key":    "",
	}

	flagSet := flag.NewFlagSet("termgraph-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagConfig := flagSet.String("config", os.Getenv("TERMGRAPH_CONFIG"), "path to YAML config file")
	flagStore := flagSet.String("store", "", "graph store backend: sqlite|memory")
	flagDB := flagSet.String("db", "", "path to SQLite database")
	flagSnapshot := flagSet.String("snapshot", "", "path to JSON graph snapshot")
	flagAddr := flagSet.String("addr", "", "HTTP listen address")
	flagRedis := flagSet.String("redis-addr", "", "redis address for the query cache (empty disables it)")
	flagTTL := flagSet.String("cache-ttl", "", "query cache entry lifetime")
	flagLogLevel := flagSet.String("log-level", "", "log level: debug|info|warn|error")
	flagTLSCert := flagSet.String("tls-cert", "", "TLS certificate file")
	flagTLSKey := flagSet.String("tls-key", "", "TLS key file")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	if path := strings.TrimSpace(*flagConfig); path != "" {
		fc, err := readConfigFile(resolvePath(path, cwd))
		if err != nil {
			return Config{}, err
		}
		overlay(values, map[string]string{
			"store":      fc.Store,
			"db":         fc.DB,
			"snapshot":   fc.Snapshot,
			"addr":       fc.Addr,
			"redis-addr": fc.RedisAddr,
			"cache-ttl":  fc.CacheTTL,
			"log-level":  fc.LogLevel,
			"tls-cert":   fc.TLSCert,
			"tls-key":    fc.TLSKey,
		})
	}

	env := make(map[string]string, len(values))
	for key := range values {
		env[key] = os.Getenv(envKey(key))
	}
	overlay(values, env)

	flags := map[string]*string{
		"store":      flagStore,
		"db":         flagDB,
		"snapshot":   flagSnapshot,
		"addr":       flagAddr,
		"redis-addr": flagRedis,
		"cache-ttl":  flagTTL,
		"log-level":  flagLogLevel,
		"tls-cert":   flagTLSCert,
		"tls-key":    flagTLSKey,
	}
	flagSet.Visit(func(f *flag.Flag) {
		if p, ok := flags[f.Name]; ok {
			values[f.Name] = *p
		}
	})

	ttl, err := time.ParseDuration(values["cache-ttl"])
	if err != nil {
		return Config{}, fmt.Errorf("invalid cache-ttl: %w", err)
	}

	config := Config{
		Store:        strings.ToLower(strings.TrimSpace(values["store"])),
		DBPath:       resolvePath(values["db"], cwd),
		SnapshotPath: resolvePath(values["snapshot"], cwd),
		Addr:         strings.TrimSpace(values["addr"]),
		RedisAddr:    strings.TrimSpace(values["redis-addr"]),
		CacheTTL:     ttl,
		LogLevel:     strings.ToLower(strings.TrimSpace(values["log-level"])),
		TLSCertFile:  resolvePath(values["tls-cert"], cwd),
		TLSKeyFile:   resolvePath(values["tls-key"], cwd),
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("store=sqlite requires db")
		}
	case "memory":
		if c.SnapshotPath == "" {
			return errors.New("store=memory requires snapshot")
		}
	default:
		return fmt.Errorf("unsupported store: %s", c.Store)
	}
	if c.CacheTTL <= 0 {
		return errors.New("cache-ttl must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log-level: %s", c.LogLevel)
	}
	return nil
}

func readConfigFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

func overlay(dst, src map[string]string) {
	for key, value := range src {
		if strings.TrimSpace(value) != "" {
			dst[key] = value
		}
	}
}

// envKey maps a flag name to its environment variable: redis-addr -> TERMGRAPH_REDIS_ADDR.
func envKey(name string) string {
	return "TERMGRAPH_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
