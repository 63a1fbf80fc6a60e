package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/quarantine"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// Dir serves tables from the extracted files under Root, matched by each
// table's FilePattern. Lines that cannot be parsed are written to
// Quarantine, when set, as malformed_line records.
type Dir struct {
	Root       string
	Opts       Options
	Log        *zap.Logger
	Quarantine quarantine.Sink
	RunID      string
}

// Files returns t's files in name order.
func (d Dir) Files(t schema.Table) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.Root, t.FilePattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", t.FilePattern, err)
	}
	var files []string
	for _, m := range matches {
		if st, err := os.Stat(m); err == nil && st.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Rows streams every file of t, in order, into out.
func (d Dir) Rows(ctx context.Context, t schema.Table, out chan<- records.Record) error {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	files, err := d.Files(t)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Warn("no source files", zap.String("table", t.Name), zap.String("pattern", t.FilePattern))
		return nil
	}

	cols := t.SourceColumns()
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		name := filepath.Base(path)
		var bad []quarantine.Record
		onErr := func(line int, err error) {
			if errors.Is(err, ErrExtraFields) {
				log.Debug("long source line", zap.String("table", t.Name), zap.String("file", name), zap.Int("line", line), zap.Error(err))
				return
			}
			log.Warn("malformed source line",
				zap.String("table", t.Name),
				zap.String("file", name),
				zap.Int("line", line),
				zap.Error(err),
			)
			bad = append(bad, d.malformed(t, name, line, err))
		}
		log.Info("reading source file", zap.String("table", t.Name), zap.String("file", name))
		if err := StreamRows(ctx, f, cols, d.Opts, out, onErr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if len(bad) == 0 {
			continue
		}
		log.Warn("source file had malformed lines", zap.String("file", name), zap.Int("lines", len(bad)))
		if d.Quarantine != nil {
			if err := d.Quarantine.Write(t.Name, bad); err != nil {
				return fmt.Errorf("quarantine malformed lines of %s: %w", name, err)
			}
		}
	}
	return nil
}

func (d Dir) malformed(t schema.Table, file string, line int, err error) quarantine.Record {
	return quarantine.Record{
		Time:   time.Now().UTC(),
		RunID:  d.RunID,
		Table:  t.Name,
		Reason: quarantine.MalformedLine,
		Payload: records.Record{
			"file":  file,
			"line":  line,
			"error": err.Error(),
		},
	}
}
