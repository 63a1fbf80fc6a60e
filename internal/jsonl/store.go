// Package jsonl is an append-only, record-per-line file store partitioned by
// day and table:
//
//	<dir>/<YYYY-MM-DD>/<table>.jsonl
//	<dir>/<YYYY-MM-DD>/<table>_1.jsonl   (after the first rotation)
//
// A partition rotates to the next numbered file once it reaches MaxBytes.
// Day directories older than RetentionDays are pruned when the store opens.
// Appends from many goroutines are safe; each partition has its own lock, so
// writers of different tables never contend.
package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// Options configures a Store.
type Options struct {
	Dir string
	// MaxBytes caps a single file; 0 disables rotation.
	MaxBytes int64
	// RetentionDays keeps this many day directories; 0 keeps all.
	RetentionDays int
	// Now is the clock used for partitioning. Defaults to time.Now.
	Now func() time.Time
}

// Store is a partitioned JSONL writer.
type Store struct {
	opts Options

	mu    sync.Mutex
	parts map[string]*partition
}

type partition struct {
	mu    sync.Mutex
	day   string
	table string
	seq   int
	f     *os.File
	w     *bufio.Writer
	size  int64
}

// Open creates the base directory and prunes expired day directories.
func Open(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("jsonl: dir is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: create dir %s: %w", opts.Dir, err)
	}
	s := &Store{opts: opts, parts: make(map[string]*partition)}
	if opts.RetentionDays > 0 {
		if err := s.prune(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the base directory.
func (s *Store) Dir() string { return s.opts.Dir }

// Append writes one record per value to table's current partition and flushes
// before returning.
func (s *Store) Append(table string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	p := s.partition(table)

	p.mu.Lock()
	defer p.mu.Unlock()

	day := s.opts.Now().UTC().Format(dayLayout)
	if p.f == nil || p.day != day {
		if err := p.open(s.opts.Dir, day); err != nil {
			return err
		}
	}
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("jsonl: encode %s record: %w", table, err)
		}
		b = append(b, '\n')
		if s.opts.MaxBytes > 0 && p.size > 0 && p.size+int64(len(b)) > s.opts.MaxBytes {
			if err := p.rotate(s.opts.Dir); err != nil {
				return err
			}
		}
		n, err := p.w.Write(b)
		p.size += int64(n)
		if err != nil {
			return fmt.Errorf("jsonl: write %s: %w", p.path(s.opts.Dir), err)
		}
	}
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("jsonl: flush %s: %w", p.path(s.opts.Dir), err)
	}
	return nil
}

// WriteDocument writes v as indented JSON to <dir>/<day>/<name>.json,
// replacing any previous document of that name atomically.
func (s *Store) WriteDocument(name string, v any) (string, error) {
	day := s.opts.Now().UTC().Format(dayLayout)
	dir := filepath.Join(s.opts.Dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("jsonl: create dir %s: %w", dir, err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("jsonl: encode %s: %w", name, err)
	}
	path := filepath.Join(dir, name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("jsonl: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("jsonl: rename %s: %w", path, err)
	}
	return path, nil
}

// Close flushes and closes every open partition.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, p := range s.parts {
		p.mu.Lock()
		errs = append(errs, p.close())
		p.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *Store) partition(table string) *partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[table]
	if !ok {
		p = &partition{table: table}
		s.parts[table] = p
	}
	return p
}

// prune removes day directories older than the retention window.
func (s *Store) prune() error {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return fmt.Errorf("jsonl: list %s: %w", s.opts.Dir, err)
	}
	cutoff := s.opts.Now().UTC().AddDate(0, 0, -s.opts.RetentionDays)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, err := time.Parse(dayLayout, e.Name())
		if err != nil || !d.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.opts.Dir, e.Name())); err != nil {
			return fmt.Errorf("jsonl: prune %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (p *partition) path(base string) string {
	return filepath.Join(base, p.day, fileName(p.table, p.seq))
}

func fileName(table string, seq int) string {
	if seq == 0 {
		return table + ".jsonl"
	}
	return table + "_" + strconv.Itoa(seq) + ".jsonl"
}

// open switches the partition to day, resuming the newest existing file so a
// restarted run keeps appending instead of truncating.
func (p *partition) open(base, day string) error {
	if err := p.close(); err != nil {
		return err
	}
	dir := filepath.Join(base, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonl: create dir %s: %w", dir, err)
	}
	p.day = day
	p.seq = latestSeq(dir, p.table)
	return p.openFile(base)
}

func (p *partition) rotate(base string) error {
	if err := p.close(); err != nil {
		return err
	}
	p.seq++
	return p.openFile(base)
}

func (p *partition) openFile(base string) error {
	path := p.path(base)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("jsonl: stat %s: %w", path, err)
	}
	p.f, p.w, p.size = f, bufio.NewWriterSize(f, 64<<10), st.Size()
	return nil
}

func (p *partition) close() error {
	if p.f == nil {
		return nil
	}
	ferr := p.w.Flush()
	cerr := p.f.Close()
	p.f, p.w = nil, nil
	return errors.Join(ferr, cerr)
}

func latestSeq(dir, table string) int {
	matches, _ := filepath.Glob(filepath.Join(dir, table+"_*.jsonl"))
	seqs := []int{0}
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".jsonl")
		n, err := strconv.Atoi(strings.TrimPrefix(base, table+"_"))
		if err == nil {
			seqs = append(seqs, n)
		}
	}
	sort.Ints(seqs)
	return seqs[len(seqs)-1]
}
