// Package source reads the Receita Federal bulk files: headerless,
// ';'-delimited, ISO-8859-1 encoded CSV, one or more files per table.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// Encodings accepted by Decode.
const (
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf-8"
)

// Options configures the CSV reader.
type Options struct {
	// Comma is the field delimiter; zero means ';'.
	Comma rune
	// Encoding of the files; empty means latin1.
	Encoding string
	// LazyQuotes tolerates the stray quotes found in free-text fields.
	LazyQuotes bool
	// StripBOM drops a leading byte order mark from each file.
	StripBOM bool
}

// ErrExtraFields marks a line that had more fields than the table has
// columns. The line is still emitted with the extra fields dropped.
var ErrExtraFields = errors.New("extra fields ignored")

// Decode wraps r so it yields UTF-8.
func Decode(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingLatin1, "iso-8859-1", "iso8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case EncodingUTF8, "utf8":
		return r, nil
	}
	return nil, fmt.Errorf("source: unsupported encoding %q", encoding)
}

// StreamRows reads src positionally into records keyed by columns and sends
// them to out. Empty cells are left out of the record. A malformed line is
// reported to onErr and skipped. A long line is reported with ErrExtraFields
// and still emitted. Any other read failure is returned.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt Options,
	out chan<- records.Record,
	onErr func(line int, err error),
) error {
	defer src.Close()

	var in io.Reader = src
	if opt.StripBOM {
		in = stripBOM(in)
	}
	r, err := Decode(in, opt.Encoding)
	if err != nil {
		return err
	}
	comma := opt.Comma
	if comma == 0 {
		comma = ';'
	}
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	line := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return fmt.Errorf("read line %d: %w", line, err)
			}
			if onErr != nil {
				onErr(line, err)
			}
			continue
		}
		if len(rec) > len(columns) && onErr != nil {
			onErr(line, fmt.Errorf("got %d fields, want %d: %w", len(rec), len(columns), ErrExtraFields))
		}

		row := make(records.Record, len(columns))
		for i, c := range columns {
			if i >= len(rec) || rec[i] == "" {
				continue
			}
			row[c] = rec[i]
		}

		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
