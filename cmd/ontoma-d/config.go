package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/ontoma/pkg/ontology"
	"github.com/rmax-ai/ontoma/pkg/provider/ols"
	"github.com/rmax-ai/ontoma/pkg/provider/oxo"
	"github.com/rmax-ai/ontoma/pkg/provider/zooma"
	"github.com/rmax-ai/ontoma/pkg/resolver"
)

const (
	defaultAddr        = "127.0.0.1:8090"
	defaultHTTPTimeout = 10 * time.Second
	defaultRetries     = 3
	defaultRedisTTL    = 24 * time.Hour

	defaultEFOSource     = "https://github.com/EBISPOT/efo/releases/download/current/efo.obo"
	defaultHPSource      = "http://purl.obolibrary.org/obo/hp.obo"
	defaultOMIMSource    = "https://raw.githubusercontent.com/opentargets/platform_semantic/master/resources/xref_mappings/omim_to_efo.txt"
	defaultCuratedSource = "https://raw.githubusercontent.com/opentargets/platform_semantic/master/resources/zooma/cttv_indications_3.txt"
)

// Config is the daemon configuration. Values are layered:
// defaults, then the YAML file, then ONTOMA_* env vars, then flags.
type Config struct {
	Addr     string `yaml:"addr"`
	DBPath   string `yaml:"db_path"` // "off" disables the audit log
	LogLevel string `yaml:"log_level"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`

	EFOSource     string `yaml:"efo_source"`
	HPSource      string `yaml:"hp_source"`
	OMIMSource    string `yaml:"omim_source"`
	CuratedSource string `yaml:"curated_source"`

	OLSURL       string        `yaml:"ols_url"`
	OxOURL       string        `yaml:"oxo_url"`
	ZoomaURL     string        `yaml:"zooma_url"`
	ZoomaEnabled bool          `yaml:"zooma_enabled"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	HTTPRetries  int           `yaml:"http_retries"`

	Mode            string `yaml:"mode"`
	XrefDistance    int    `yaml:"xref_distance"`
	DuplicatePolicy string `yaml:"duplicate_policy"`
	SynonymMatch    bool   `yaml:"synonym_match"`

	RedisAddr  string        `yaml:"redis_addr"`
	RedisTTL   time.Duration `yaml:"redis_ttl"`
	FlushCache bool          `yaml:"flush_cache"` // drop cached answers at startup
}

func defaultConfig(cwd string) Config {
	return Config{
		Addr:            defaultAddr,
		DBPath:          filepath.Join(cwd, "ontoma.db"),
		LogLevel:        "info",
		EFOSource:       defaultEFOSource,
		HPSource:        defaultHPSource,
		OMIMSource:      defaultOMIMSource,
		CuratedSource:   defaultCuratedSource,
		OLSURL:          ols.DefaultBaseURL,
		OxOURL:          oxo.DefaultBaseURL,
		ZoomaURL:        zooma.DefaultBaseURL,
		HTTPTimeout:     defaultHTTPTimeout,
		HTTPRetries:     defaultRetries,
		Mode:            resolver.ModeStrict.String(),
		XrefDistance:    resolver.DefaultCrossRefDistance,
		DuplicatePolicy: ontology.KeepFirst.String(),
		SynonymMatch:    true,
		RedisTTL:        defaultRedisTTL,
	}
}

// LoadConfig builds the configuration from the environment and args.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	// .env never overrides variables already set in the environment.
	envFile := envOrDefault("ONTOMA_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := defaultConfig(cwd)

	configPath := configFlag(args)
	if configPath == "" {
		configPath = os.Getenv("ONTOMA_CONFIG")
	}
	if configPath != "" {
		if err := loadYAML(resolvePath(configPath, cwd), &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	flagSet := flag.NewFlagSet("ontoma-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to YAML config file")
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flagSet.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to SQLite audit log, or off")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flagSet.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate file (requires -tls-key)")
	flagSet.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key file (requires -tls-cert)")
	flagSet.StringVar(&cfg.EFOSource, "efo", cfg.EFOSource, "EFO OBO file or URL")
	flagSet.StringVar(&cfg.HPSource, "hp", cfg.HPSource, "HP OBO file or URL")
	flagSet.StringVar(&cfg.OMIMSource, "omim", cfg.OMIMSource, "OMIM to EFO mapping table file or URL")
	flagSet.StringVar(&cfg.CuratedSource, "curated", cfg.CuratedSource, "curated label mapping table file or URL")
	flagSet.StringVar(&cfg.OLSURL, "ols-url", cfg.OLSURL, "OLS base URL")
	flagSet.StringVar(&cfg.OxOURL, "oxo-url", cfg.OxOURL, "OxO base URL")
	flagSet.StringVar(&cfg.ZoomaURL, "zooma-url", cfg.ZoomaURL, "Zooma base URL")
	flagSet.BoolVar(&cfg.ZoomaEnabled, "zooma", cfg.ZoomaEnabled, "consult Zooma after the fuzzy search")
	flagSet.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "per-request timeout for remote services")
	flagSet.IntVar(&cfg.HTTPRetries, "http-retries", cfg.HTTPRetries, "attempts per remote request")
	flagSet.StringVar(&cfg.Mode, "mode", cfg.Mode, "cascade mode: strict|degraded")
	flagSet.IntVar(&cfg.XrefDistance, "xref-distance", cfg.XrefDistance, "maximum cross-reference distance")
	flagSet.StringVar(&cfg.DuplicatePolicy, "duplicates", cfg.DuplicatePolicy, "duplicate name policy: first|last|reject")
	flagSet.BoolVar(&cfg.SynonymMatch, "synonyms", cfg.SynonymMatch, "match exact synonyms")
	flagSet.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address for the service cache (empty disables)")
	flagSet.DurationVar(&cfg.RedisTTL, "redis-ttl", cfg.RedisTTL, "service cache TTL")
	flagSet.BoolVar(&cfg.FlushCache, "flush-cache", cfg.FlushCache, "drop cached service answers at startup")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.DBPath != "off" {
		cfg.DBPath = resolvePath(cfg.DBPath, cwd)
	}
	cfg.TLSCert = resolvePath(cfg.TLSCert, cwd)
	cfg.TLSKey = resolvePath(cfg.TLSKey, cwd)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if c.EFOSource == "" {
		return errors.New("efo source cannot be empty")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	if c.FlushCache && c.RedisAddr == "" {
		return errors.New("flush cache requires a redis address")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	if c.HTTPRetries < 1 {
		return errors.New("http retries must be at least 1")
	}
	if c.XrefDistance < 1 {
		return errors.New("xref distance must be at least 1")
	}
	if _, err := resolver.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := ontology.ParseDuplicatePolicy(c.DuplicatePolicy); err != nil {
		return err
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"ONTOMA_ADDR":             &cfg.Addr,
		"ONTOMA_DB_PATH":          &cfg.DBPath,
		"ONTOMA_LOG_LEVEL":        &cfg.LogLevel,
		"ONTOMA_TLS_CERT":         &cfg.TLSCert,
		"ONTOMA_TLS_KEY":          &cfg.TLSKey,
		"ONTOMA_EFO_SOURCE":       &cfg.EFOSource,
		"ONTOMA_HP_SOURCE":        &cfg.HPSource,
		"ONTOMA_OMIM_SOURCE":      &cfg.OMIMSource,
		"ONTOMA_CURATED_SOURCE":   &cfg.CuratedSource,
		"ONTOMA_OLS_URL":          &cfg.OLSURL,
		"ONTOMA_OXO_URL":          &cfg.OxOURL,
		"ONTOMA_ZOOMA_URL":        &cfg.ZoomaURL,
		"ONTOMA_MODE":             &cfg.Mode,
		"ONTOMA_DUPLICATE_POLICY": &cfg.DuplicatePolicy,
		"ONTOMA_REDIS_ADDR":       &cfg.RedisAddr,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if port := os.Getenv("ONTOMA_PORT"); port != "" && os.Getenv("ONTOMA_ADDR") == "" {
		cfg.Addr = fmt.Sprintf("127.0.0.1:%s", port)
	}

	bools := map[string]*bool{
		"ONTOMA_ZOOMA_ENABLED": &cfg.ZoomaEnabled,
		"ONTOMA_SYNONYM_MATCH": &cfg.SynonymMatch,
		"ONTOMA_FLUSH_CACHE":   &cfg.FlushCache,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"ONTOMA_HTTP_RETRIES":  &cfg.HTTPRetries,
		"ONTOMA_XREF_DISTANCE": &cfg.XrefDistance,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"ONTOMA_HTTP_TIMEOUT": &cfg.HTTPTimeout,
		"ONTOMA_REDIS_TTL":    &cfg.RedisTTL,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// configFlag finds -config before the full flag set is parsed, since the
// file supplies the flag defaults.
func configFlag(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
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
