package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/danalec/CNPJ-Receita-Federal/internal/source"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
)

// ErrInvalid wraps every configuration that has error-severity issues.
var ErrInvalid = errors.New("invalid configuration")

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is the dotted config key.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate performs static checks over c. It does not touch the database or
// the filesystem.
func Validate(c Config) []Issue {
	var issues []Issue
	errf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		errf("database.dsn", "must not be empty")
	}
	if strings.TrimSpace(c.Database.Schema) == "" {
		errf("database.schema", "must not be empty")
	}
	if c.Database.MaxConns < 0 {
		errf("database.max_conns", "must be >= 0")
	}

	if strings.TrimSpace(c.Source.Dir) == "" {
		errf("source.dir", "must not be empty")
	}
	if _, err := source.Decode(strings.NewReader(""), c.Source.Encoding); err != nil {
		errf("source.encoding", "%v", err)
	}
	if len([]rune(c.Source.Delimiter)) != 1 {
		errf("source.delimiter", "must be a single character, got %q", c.Source.Delimiter)
	}

	if c.Load.ChunkSize <= 0 {
		errf("load.chunk_size", "must be > 0")
	}
	if c.Load.Workers <= 0 {
		errf("load.workers", "must be > 0")
	}
	if c.Load.Buffer < 0 {
		errf("load.buffer", "must be >= 0")
	}
	if _, err := c.Tables(); err != nil {
		errf("load.tables", "%v", err)
	}
	if c.Load.SetLoggedAfterCopy && !c.Load.UseUnlogged {
		warnf("load.set_logged_after_copy", "has no effect unless load.use_unlogged is true")
	}
	if c.Load.SkipConstraints && c.Load.SetLoggedAfterCopy {
		warnf("load.skip_constraints", "tables stay UNLOGGED because the post-load sequence is skipped")
	}

	if _, err := transformer.ParseProfile(c.Repair.Profile); err != nil {
		errf("repair.profile", "%v", err)
	}
	if c.Repair.MunicipioMap != "" && c.Repair.CEPMap == "" {
		warnf("repair.municipio_map", "unused without repair.cep_map")
	}
	if c.Repair.CEPMap != "" && !strings.EqualFold(strings.TrimSpace(c.Repair.Profile), string(transformer.ProfileAggressive)) {
		warnf("repair.cep_map", "enrichment only runs under the aggressive profile")
	}

	if c.Quarantine.StrictFK && c.Quarantine.NullUnresolvedFK {
		warnf("quarantine.null_unresolved_fk", "ignored when quarantine.strict_fk is true")
	}
	if c.Quarantine.NullUnresolvedFK && c.Integrity.Backfill {
		warnf("quarantine.null_unresolved_fk", "nulled codes leave nothing for integrity.backfill to resolve")
	}
	issues = append(issues, validateStore("quarantine", c.Quarantine.Dir, c.Quarantine.MaxBytes, c.Quarantine.RetentionDays)...)
	issues = append(issues, validateStore("telemetry", c.Telemetry.Dir, c.Telemetry.MaxBytes, c.Telemetry.RetentionDays)...)
	if c.Telemetry.MaxSamples < 0 {
		errf("telemetry.max_samples", "must be >= 0")
	}

	if c.Gate.MinRows < 0 {
		errf("gate.min_rows", "must be >= 0")
	}
	for path, r := range map[string]float64{
		"gate.max_changed_ratio":    c.Gate.MaxChangedRatio,
		"gate.max_null_delta_ratio": c.Gate.MaxNullDeltaRatio,
	} {
		if r < 0 || r > 1 {
			errf(path, "must be within [0, 1], got %g", r)
		}
	}
	if _, err := zapcore.ParseLevel(c.Gate.Severity); err != nil {
		errf("gate.severity", "%v", err)
	}

	if c.Integrity.Backfill && strings.TrimSpace(c.Integrity.SentinelLabel) == "" {
		errf("integrity.sentinel_label", "must not be empty when integrity.backfill is true")
	}
	if c.Integrity.Backfill && c.Quarantine.StrictFK {
		warnf("integrity.backfill", "has little to resolve when quarantine.strict_fk quarantines unresolved codes")
	}

	if c.Metrics.Enabled {
		switch c.Metrics.Backend {
		case BackendProm, BackendDatadog, BackendTextfile:
			if strings.TrimSpace(c.Metrics.Destination) == "" {
				errf("metrics.destination", "required for backend %q", c.Metrics.Backend)
			}
		default:
			errf("metrics.backend", "unknown backend %q (want prom, datadog or textfile)", c.Metrics.Backend)
		}
	}

	issues = append(issues, validateDownload(c.Download)...)

	if strings.TrimSpace(c.State.LockPath) == "" {
		errf("state.lock_path", "must not be empty")
	}
	if strings.TrimSpace(c.State.LedgerPath) == "" {
		errf("state.ledger_path", "must not be empty")
	}
	return issues
}

var releasePattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

func validateDownload(d Download) []Issue {
	var issues []Issue
	errf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	if u, err := url.Parse(d.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errf("download.base_url", "must be an absolute http(s) URL, got %q", d.BaseURL)
	}
	if d.Release != "" && !releasePattern.MatchString(d.Release) {
		errf("download.release", "must be YYYY-MM, got %q", d.Release)
	}
	if strings.TrimSpace(d.Dir) == "" {
		errf("download.dir", "must not be empty")
	}
	if d.Workers <= 0 {
		errf("download.workers", "must be > 0")
	}
	if d.Retries < 0 {
		errf("download.retries", "must be >= 0")
	}
	if d.Timeout < 0 {
		errf("download.timeout", "must be >= 0")
	}
	if d.BytesPerSec < 0 {
		errf("download.bytes_per_sec", "must be >= 0")
	}
	if d.InsecureSkipVerify {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: "download.insecure_skip_verify", Message: "TLS certificates are not verified"})
	}
	return issues
}

// WithoutDatabase drops database issues, for commands that never connect.
func WithoutDatabase(issues []Issue) []Issue {
	out := issues[:0:0]
	for _, iss := range issues {
		if !strings.HasPrefix(iss.Path, "database.") {
			out = append(out, iss)
		}
	}
	return out
}

func validateStore(prefix, dir string, maxBytes int64, retention int) []Issue {
	var issues []Issue
	if strings.TrimSpace(dir) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: prefix + ".dir", Message: "must not be empty"})
	}
	if maxBytes < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: prefix + ".max_bytes", Message: "must be >= 0"})
	}
	if retention < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: prefix + ".retention_days", Message: "must be >= 0"})
	}
	return issues
}

// Check returns an error wrapping ErrInvalid when issues contains at least
// one error-severity entry.
func Check(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
