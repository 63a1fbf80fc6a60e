package bench

import (
	"context"
	"io"
	"testing"

	"github.com/danalec/CNPJ-Receita-Federal/internal/quarantine"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/source"
	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

const estabLine = `"11222333";"0001";"81";"1";"PADARIA CENTRAL";"02";"20200115";"00";"";"";"20050301";"4721102";"4711302,5611203";"RUA";"DAS FLORES";"123";"SALA 2";"CENTRO";"01001000";"SP";"7107";"11";"99988776";"";"";"";"";"contato@padaria.com.br";"";""` + "\n"

type repeatReader struct {
	line []byte
	left int
	off  int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.off == len(r.line) {
			if r.left == 0 {
				break
			}
			r.left--
			r.off = 0
		}
		c := copy(p[n:], r.line[r.off:])
		r.off += c
		n += c
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// BenchmarkEndToEnd measures the read, normalize, route and batch path for
// establishment rows with a no-op COPY.
//
//	go test -run=^$ -bench ^BenchmarkEndToEnd$ -benchmem ./internal/bench
func BenchmarkEndToEnd(b *testing.B) {
	for _, prof := range []transformer.Profile{transformer.ProfileNone, transformer.ProfileBasic, transformer.ProfileAggressive} {
		b.Run(string(prof), func(b *testing.B) {
			benchmarkProfile(b, prof)
		})
	}
}

func benchmarkProfile(b *testing.B, prof transformer.Profile) {
	ctx := context.Background()
	t, _ := schema.Lookup(schema.Estabelecimentos)
	norm := transformer.New(transformer.Options{Profile: prof})
	router := quarantine.Router{}

	raw := make(chan records.Record, 4096)
	src := io.NopCloser(&repeatReader{line: []byte(estabLine), left: b.N - 1})
	go func() {
		defer close(raw)
		_ = source.StreamRows(ctx, src, t.SourceColumns(), source.Options{Encoding: source.EncodingUTF8}, raw, nil)
	}()

	cols := t.ColumnNames()
	clean := make(chan []any, 4096)
	go func() {
		defer close(clean)
		for r := range raw {
			res := norm.Normalize(t, r)
			if !router.Route(t, res).Accept {
				continue
			}
			clean <- res.Row.Values(cols)
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()
	n, err := storage.LoadBatches(ctx, clean, 5000, func(_ context.Context, _ int, batch [][]any) (int64, error) {
		return int64(len(batch)), nil
	}, nil)
	b.StopTimer()
	if err != nil {
		b.Fatal(err)
	}
	if n != int64(b.N) {
		b.Fatalf("loaded %d rows, want %d", n, b.N)
	}
}
