// Package config loads the run configuration from defaults, an optional
// YAML/JSON file, a .env file and CNPJ_-prefixed environment variables, in
// increasing order of precedence.
//
// Nested keys map to environment variables by replacing dots with
// underscores: gate.max_changed_ratio is CNPJ_GATE_MAX_CHANGED_RATIO.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/danalec/CNPJ-Receita-Federal/internal/gate"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CNPJ"

// Config is the full run configuration.
type Config struct {
	Database   Database     `mapstructure:"database"`
	Source     Source       `mapstructure:"source"`
	Load       LoadSettings `mapstructure:"load"`
	Repair     Repair       `mapstructure:"repair"`
	Quarantine Quarantine   `mapstructure:"quarantine"`
	Gate       Gate         `mapstructure:"gate"`
	Telemetry  Telemetry    `mapstructure:"telemetry"`
	Integrity  Integrity    `mapstructure:"integrity"`
	Metrics    Metrics      `mapstructure:"metrics"`
	State      State        `mapstructure:"state"`
	Download   Download     `mapstructure:"download"`
}

// Database configures the Postgres target.
type Database struct {
	DSN      string `mapstructure:"dsn"`
	Schema   string `mapstructure:"schema"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Source locates the extracted bulk files.
type Source struct {
	Dir        string `mapstructure:"dir"`
	Encoding   string `mapstructure:"encoding"`
	Delimiter  string `mapstructure:"delimiter"`
	LazyQuotes bool   `mapstructure:"lazy_quotes"`
	StripBOM   bool   `mapstructure:"strip_bom"`
}

// LoadSettings tunes the bulk load.
type LoadSettings struct {
	ChunkSize          int      `mapstructure:"chunk_size"`
	Workers            int      `mapstructure:"workers"`
	Buffer             int      `mapstructure:"buffer"`
	UseUnlogged        bool     `mapstructure:"use_unlogged"`
	SetLoggedAfterCopy bool     `mapstructure:"set_logged_after_copy"`
	SkipConstraints    bool     `mapstructure:"skip_constraints"`
	Analyze            bool     `mapstructure:"analyze"`
	Tables             []string `mapstructure:"tables"`
}

// Repair selects the normalization profile and enrichment lookups.
type Repair struct {
	Profile      string `mapstructure:"profile"`
	CEPMap       string `mapstructure:"cep_map"`
	MunicipioMap string `mapstructure:"municipio_map"`
}

// Quarantine configures routing strictness and the quarantine store.
type Quarantine struct {
	StrictFK         bool   `mapstructure:"strict_fk"`
	NullUnresolvedFK bool   `mapstructure:"null_unresolved_fk"`
	Dir              string `mapstructure:"dir"`
	MaxBytes         int64  `mapstructure:"max_bytes"`
	RetentionDays    int    `mapstructure:"retention_days"`
}

// Gate holds the quality gate thresholds.
type Gate struct {
	Enabled           bool    `mapstructure:"enabled"`
	MinRows           int     `mapstructure:"min_rows"`
	MaxChangedRatio   float64 `mapstructure:"max_changed_ratio"`
	MaxNullDeltaRatio float64 `mapstructure:"max_null_delta_ratio"`
	Severity          string  `mapstructure:"severity"`
}

// Telemetry configures the telemetry store.
type Telemetry struct {
	Dir           string `mapstructure:"dir"`
	MaxBytes      int64  `mapstructure:"max_bytes"`
	RetentionDays int    `mapstructure:"retention_days"`
	MaxSamples    int    `mapstructure:"max_samples"`
}

// Integrity toggles post-load stages.
type Integrity struct {
	Backfill      bool   `mapstructure:"backfill"`
	SentinelLabel string `mapstructure:"sentinel_label"`
}

// Metrics selects a metrics backend. Destination is the push gateway URL,
// the textfile path or the DogStatsD address, depending on Backend.
type Metrics struct {
	Enabled     bool   `mapstructure:"enabled"`
	Backend     string `mapstructure:"backend"`
	Destination string `mapstructure:"destination"`
	Job         string `mapstructure:"job"`
}

// State locates the single-instance lock and the run ledger.
type State struct {
	LockPath   string `mapstructure:"lock_path"`
	LedgerPath string `mapstructure:"ledger_path"`
}

// Download configures fetching the monthly release from the Receita Federal.
type Download struct {
	BaseURL string `mapstructure:"base_url"`
	// Release pins a YYYY-MM folder; empty picks the latest one listed.
	Release            string        `mapstructure:"release"`
	Dir                string        `mapstructure:"dir"`
	Workers            int           `mapstructure:"workers"`
	Retries            int           `mapstructure:"retries"`
	Timeout            time.Duration `mapstructure:"timeout"`
	BytesPerSec        int           `mapstructure:"bytes_per_sec"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// DefaultBaseURL is the Receita Federal open data folder.
const DefaultBaseURL = "https://arquivos.receitafederal.gov.br/dados/cnpj/dados_abertos_cnpj/"

// Metrics backends.
const (
	BackendProm     = "prom"
	BackendDatadog  = "datadog"
	BackendTextfile = "textfile"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.schema", schema.DefaultSchema)
	v.SetDefault("database.max_conns", 8)

	v.SetDefault("source.dir", "data")
	v.SetDefault("source.encoding", "latin1")
	v.SetDefault("source.delimiter", ";")
	v.SetDefault("source.lazy_quotes", true)
	v.SetDefault("source.strip_bom", true)

	v.SetDefault("load.chunk_size", 200000)
	v.SetDefault("load.workers", 4)
	v.SetDefault("load.buffer", 4096)
	v.SetDefault("load.use_unlogged", true)
	v.SetDefault("load.set_logged_after_copy", false)
	v.SetDefault("load.skip_constraints", false)
	v.SetDefault("load.analyze", true)
	v.SetDefault("load.tables", []string{})

	v.SetDefault("repair.profile", string(transformer.ProfileBasic))
	v.SetDefault("repair.cep_map", "")
	v.SetDefault("repair.municipio_map", "")

	v.SetDefault("quarantine.strict_fk", false)
	v.SetDefault("quarantine.null_unresolved_fk", false)
	v.SetDefault("quarantine.dir", "var/quarantine")
	v.SetDefault("quarantine.max_bytes", int64(256<<20))
	v.SetDefault("quarantine.retention_days", 30)

	v.SetDefault("gate.enabled", true)
	v.SetDefault("gate.min_rows", 1000)
	v.SetDefault("gate.max_changed_ratio", 0.5)
	v.SetDefault("gate.max_null_delta_ratio", 0.5)
	v.SetDefault("gate.severity", "warn")

	v.SetDefault("telemetry.dir", "var/telemetry")
	v.SetDefault("telemetry.max_bytes", int64(64<<20))
	v.SetDefault("telemetry.retention_days", 30)
	v.SetDefault("telemetry.max_samples", 20)

	v.SetDefault("integrity.backfill", true)
	v.SetDefault("integrity.sentinel_label", "NOT PRESENT IN SOURCE")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.backend", BackendTextfile)
	v.SetDefault("metrics.destination", "")
	v.SetDefault("metrics.job", "cnpj")

	v.SetDefault("state.lock_path", "var/cnpj.lock")
	v.SetDefault("state.ledger_path", "var/runstate.db")

	v.SetDefault("download.base_url", DefaultBaseURL)
	v.SetDefault("download.release", "")
	v.SetDefault("download.dir", "var/zip")
	v.SetDefault("download.workers", 4)
	v.SetDefault("download.retries", 5)
	v.SetDefault("download.timeout", 30*time.Minute)
	v.SetDefault("download.bytes_per_sec", 0)
	v.SetDefault("download.insecure_skip_verify", false)
	v.SetDefault("download.user_agent", "cnpj-loader")
}

// LoadOptions locates the optional inputs of Load.
type LoadOptions struct {
	// File is a YAML or JSON config file; empty skips it.
	File string
	// EnvFile is loaded into the process environment first; a missing file
	// is ignored. Empty means ".env".
	EnvFile string
}

// Load resolves the configuration. It does not validate it.
func Load(opts LoadOptions) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return c, nil
}

// RepairProfile parses Repair.Profile.
func (c Config) RepairProfile() (transformer.Profile, error) {
	return transformer.ParseProfile(c.Repair.Profile)
}

// GateConfig converts the gate section into gate.Config.
func (c Config) GateConfig() (gate.Config, error) {
	lvl, err := zapcore.ParseLevel(c.Gate.Severity)
	if err != nil {
		return gate.Config{}, fmt.Errorf("gate.severity: %w", err)
	}
	return gate.Config{
		Enabled:           c.Gate.Enabled,
		MinRows:           c.Gate.MinRows,
		MaxChangedRatio:   c.Gate.MaxChangedRatio,
		MaxNullDeltaRatio: c.Gate.MaxNullDeltaRatio,
		Severity:          lvl,
	}, nil
}

// Delimiter returns the source delimiter as a rune.
func (c Config) Delimiter() rune {
	r := []rune(c.Source.Delimiter)
	if len(r) != 1 {
		return ';'
	}
	return r[0]
}

// Tables resolves Load.Tables against the catalog, keeping catalog order.
// An empty list selects every table.
func (c Config) Tables() ([]schema.Table, error) {
	all := schema.Tables()
	if len(c.Load.Tables) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(c.Load.Tables))
	for _, n := range c.Load.Tables {
		n = strings.TrimSpace(n)
		if _, ok := schema.Lookup(n); !ok {
			return nil, fmt.Errorf("load.tables: unknown table %q", n)
		}
		want[n] = true
	}
	var out []schema.Table
	for _, t := range all {
		if want[t.Name] {
			out = append(out, t)
		}
	}
	return out, nil
}
