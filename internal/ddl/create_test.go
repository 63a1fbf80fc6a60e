package ddl

import (
	"strconv"
	"strings"
	"testing"
)

// TestBuildCreateTableSQL verifies the rendered statements and the validation
// errors for malformed definitions.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "rfb.t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{SQLType: "INT"}}},
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "missing SQLType",
		},
		{
			name: "nullable and not-null columns",
			def: TableDef{
				FQN: "rfb.paises",
				Columns: []ColumnDef{
					{Name: "codigo", SQLType: "INTEGER"},
					{Name: "nome", SQLType: "TEXT", Nullable: true},
				},
			},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"rfb\".\"paises\" (\n  \"codigo\" INTEGER NOT NULL,\n  \"nome\" TEXT\n);",
		},
		{
			name: "unlogged keeps column order and declares no key",
			def: TableDef{
				FQN:      "t",
				Unlogged: true,
				Columns: []ColumnDef{
					{Name: "b", SQLType: "INT"},
					{Name: "a", SQLType: "INT"},
					{Name: "c", SQLType: "TEXT", Nullable: true},
				},
			},
			wantSQL: "CREATE UNLOGGED TABLE IF NOT EXISTS \"t\" (\n  \"b\" INT NOT NULL,\n  \"a\" INT NOT NULL,\n  \"c\" TEXT\n);",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCreateTableSQL(tc.def)
			if tc.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("err=%v; want containing %q", err, tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.wantSQL {
				t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, tc.wantSQL)
			}
		})
	}
}

func TestQuoting(t *testing.T) {
	t.Parallel()

	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent=%s", got)
	}
	if got := QuoteFQN("rfb..x"); got != `"rfb"."x"` {
		t.Fatalf("QuoteFQN=%s", got)
	}
	if got := QuoteList([]string{"a", "b"}); got != `"a", "b"` {
		t.Fatalf("QuoteList=%s", got)
	}
	if got := DropTableSQL("rfb.x"); got != `DROP TABLE IF EXISTS "rfb"."x" CASCADE;` {
		t.Fatalf("DropTableSQL=%s", got)
	}
	if got := SetLoggedSQL("rfb.x"); got != `ALTER TABLE "rfb"."x" SET LOGGED;` {
		t.Fatalf("SetLoggedSQL=%s", got)
	}
}

func BenchmarkBuildCreateTableSQL(b *testing.B) {
	cols := make([]ColumnDef, 0, 64)
	for i := 0; i < 64; i++ {
		cols = append(cols, ColumnDef{Name: "c" + strconv.Itoa(i), SQLType: "TEXT", Nullable: true})
	}
	def := TableDef{FQN: "rfb.wide", Columns: cols, Unlogged: true}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := BuildCreateTableSQL(def); err != nil {
			b.Fatal(err)
		}
	}
}
